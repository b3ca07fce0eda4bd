package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/llm"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
)

// Diff is what a re-extraction changes on a stored bill.
type Diff struct {
	BillChanged bool
	Changes     []string // "field: 'old' -> 'new'"
	Add         []entity.LineItem
	Update      []entity.LineItem // new values carrying the stored line's ID
	Remove      []int64
}

// Empty reports whether applying d would write nothing.
func (d Diff) Empty() bool {
	return !d.BillChanged && len(d.Add) == 0 && len(d.Update) == 0 && len(d.Remove) == 0
}

// Compute compares a fresh extraction against the stored bill and its lines.
// Lines pair up by Key; repeated keys pair in stored order.
func Compute(b *entity.Bill, stored []entity.LineItem, f llm.HCFAFields, log *slog.Logger) Diff {
	var d Diff

	newTotal := parseTotal(b.ID, f.BillingInfo.TotalCharge, log)
	fields := []struct {
		name     string
		old, new string
	}{
		{"patient_name", b.PatientName, f.PatientInfo.PatientName},
		{"total_charge", entity.FormatMoney(b.TotalCharge), entity.FormatMoney(newTotal)},
		{"billing_provider_name", b.BillingProviderName, f.BillingInfo.BillingProviderName},
		{"billing_provider_npi", b.BillingProviderNPI, f.BillingInfo.BillingProviderNPI},
	}
	for _, fc := range fields {
		if fc.old != fc.new {
			d.BillChanged = true
			d.Changes = append(d.Changes, fmt.Sprintf("%s: '%s' -> '%s'", fc.name, fc.old, fc.new))
		}
	}

	byKey := make(map[string][]entity.LineItem, len(stored))
	for _, it := range stored {
		k := Key(it)
		byKey[k] = append(byKey[k], it)
	}

	for _, it := range LinesFromFields(b.ID, f, log) {
		k := Key(it)
		queue := byKey[k]
		if len(queue) == 0 {
			d.Add = append(d.Add, it)
			continue
		}
		old := queue[0]
		byKey[k] = queue[1:]
		if old.Modifier != it.Modifier || old.Units != it.Units {
			it.ID = old.ID
			d.Update = append(d.Update, it)
		}
	}

	for _, it := range stored {
		for _, left := range byKey[Key(it)] {
			if left.ID == it.ID {
				d.Remove = append(d.Remove, it.ID)
				break
			}
		}
	}
	return d
}

// Reconciler writes diffs through the line item repository.
type Reconciler struct {
	lines repository.LineItemRepository
	log   *slog.Logger
}

func NewReconciler(lines repository.LineItemRepository, log *slog.Logger) *Reconciler {
	return &Reconciler{lines: lines, log: logger(log)}
}

// Apply removes, updates and adds lines of billID. Call inside the bill's
// transaction.
func (r *Reconciler) Apply(ctx context.Context, billID string, d Diff) error {
	if len(d.Changes) > 0 {
		r.log.Info("reconcile.bill.changes", "bill_id", billID, "changes", d.Changes)
	}
	if err := r.lines.Delete(ctx, d.Remove); err != nil {
		return fmt.Errorf("remove lines: %w", err)
	}
	for _, it := range d.Update {
		if err := r.lines.Update(ctx, it); err != nil {
			return fmt.Errorf("update line %d: %w", it.ID, err)
		}
	}
	for i := range d.Add {
		d.Add[i].BillID = billID
		if err := r.lines.Insert(ctx, &d.Add[i]); err != nil {
			return fmt.Errorf("add line: %w", err)
		}
	}
	r.log.Info("reconcile.applied", "bill_id", billID,
		"added", len(d.Add), "updated", len(d.Update), "removed", len(d.Remove))
	return nil
}

// Replace stores a first-pass extraction, dropping any lines already present.
func (r *Reconciler) Replace(ctx context.Context, billID string, items []entity.LineItem) error {
	return r.lines.ReplaceAll(ctx, billID, items)
}
