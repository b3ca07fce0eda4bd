// Package reconcile turns extracted claim form fields into bill rows and
// merges a re-extraction into what is already stored without rewriting
// unchanged lines.
package reconcile

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/llm"
)

// ApplyHeader copies the extracted patient and billing boxes onto b. An
// unparseable total is stored as null.
func ApplyHeader(b *entity.Bill, f llm.HCFAFields, log *slog.Logger) {
	b.PatientName = f.PatientInfo.PatientName
	b.PatientDOB = f.PatientInfo.PatientDOB
	b.PatientZip = f.PatientInfo.PatientZip
	b.BillingProviderName = f.BillingInfo.BillingProviderName
	b.BillingProviderAddress = f.BillingInfo.BillingProviderAddress
	b.BillingProviderTIN = f.BillingInfo.BillingProviderTIN
	b.BillingProviderNPI = f.BillingInfo.BillingProviderNPI
	b.PatientAccountNo = f.BillingInfo.PatientAccountNo
	b.TotalCharge = parseTotal(b.ID, f.BillingInfo.TotalCharge, log)
	b.BillPaid = "N"
}

func parseTotal(billID, raw string, log *slog.Logger) decimal.NullDecimal {
	total, err := entity.ParseMoney(raw)
	if err != nil {
		logger(log).Warn("reconcile.total.unparseable", "bill_id", billID, "total_charge", raw)
		return decimal.NullDecimal{}
	}
	return total
}

// LinesFromFields builds line items from the extracted service lines in
// order. Lines with an unparseable charge are skipped.
func LinesFromFields(billID string, f llm.HCFAFields, log *slog.Logger) []entity.LineItem {
	out := make([]entity.LineItem, 0, len(f.ServiceLines))
	for i, sl := range f.ServiceLines {
		it, ok := lineFromService(billID, sl)
		if !ok {
			logger(log).Warn("reconcile.line.skipped", "bill_id", billID, "index", i,
				"cpt", sl.CPTCode, "charge_amount", sl.ChargeAmount)
			continue
		}
		out = append(out, it)
	}
	return out
}

func lineFromService(billID string, sl llm.ServiceLine) (entity.LineItem, bool) {
	charge, err := entity.ParseMoney(sl.ChargeAmount)
	if err != nil {
		return entity.LineItem{}, false
	}
	units := 1
	if sl.Units != nil {
		units = *sl.Units
	}
	return entity.LineItem{
		BillID:           billID,
		CPTCode:          strings.TrimSpace(sl.CPTCode),
		Modifier:         strings.Join(sl.Modifiers, ","),
		Units:            units,
		ChargeAmount:     charge,
		Decision:         entity.DecisionPending,
		DateOfService:    sl.DateOfService,
		PlaceOfService:   sl.PlaceOfService,
		DiagnosisPointer: sl.DiagnosisPointer,
	}, true
}

// Key identifies a line across extractions: cpt, date of service and the
// charge at two decimals.
func Key(it entity.LineItem) string {
	return it.CPTCode + "_" + it.DateOfService + "_" + entity.FormatMoney(it.ChargeAmount)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
