package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
)

const billsTable = "provider_bills"

var billColumns = []string{
	"id", "claim_id", "uploaded_by", "source_file", "status", "action", "last_error",
	"patient_name", "patient_dob", "patient_zip",
	"billing_provider_name", "billing_provider_address", "billing_provider_tin", "billing_provider_npi",
	"total_charge", "patient_account_no", "bill_paid", "created_at", "updated_at",
}

type BillRepository interface {
	Create(ctx context.Context, bill *entity.Bill) error
	Get(ctx context.Context, id string) (*entity.Bill, error)
	// ListClaimable returns ids of unleased bills in status (and one of
	// actions when given), oldest first.
	ListClaimable(ctx context.Context, status constants.BillStatus, actions []constants.BillAction, limit int) ([]string, error)
	ListByStatus(ctx context.Context, statuses []constants.BillStatus) ([]*entity.Bill, error)
	// Claim leases a bill still in status; ok is false when another worker
	// holds it or the bill moved on.
	Claim(ctx context.Context, id string, status constants.BillStatus, lease time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, id, token string) error
	// GetClaimed re-reads a bill and fails with ErrLeaseLost unless token still holds it.
	GetClaimed(ctx context.Context, id, token string) (*entity.Bill, error)
	// Save writes every mutable field, bumps updated_at and clears any lease.
	// A bill identical to the stored row only has its lease cleared.
	Save(ctx context.Context, bill *entity.Bill) error
}

type billRepo struct {
	db  *DB
	log *slog.Logger
}

func NewBillRepository(db *DB, log *slog.Logger) BillRepository {
	if log == nil {
		log = slog.Default()
	}
	return &billRepo{db: db, log: log}
}

func (r *billRepo) Create(ctx context.Context, b *entity.Bill) error {
	if b.ID == "" {
		b.ID = NewBillID()
	}
	if b.BillPaid == "" {
		b.BillPaid = "N"
	}
	if b.Status == "" {
		b.Status = constants.StatusScanned
	}
	if !constants.IsValidPair(b.Status, b.Action) {
		return fmt.Errorf("create bill %s (%s/%q): %w", b.ID, b.Status, b.Action, common.ErrInvalidTransition)
	}
	ts := now()
	b.CreatedAt, b.UpdatedAt = ts, ts

	q, args := r.db.sql().Insert(billsTable).
		Columns(billColumns...).
		Values(
			b.ID, nullString(b.ClaimID), b.UploadedBy, b.SourceFile, string(b.Status), string(b.Action), nullString(b.LastError),
			b.PatientName, b.PatientDOB, b.PatientZip,
			b.BillingProviderName, b.BillingProviderAddress, b.BillingProviderTIN, b.BillingProviderNPI,
			b.TotalCharge, b.PatientAccountNo, b.BillPaid, unix(ts), unix(ts),
		).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("bill create failed", "bill_id", b.ID, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	r.log.Info("bill created", "bill_id", b.ID, "source_file", b.SourceFile)
	return nil
}

func (r *billRepo) Get(ctx context.Context, id string) (*entity.Bill, error) {
	d := r.db.sql()
	q, args := d.Select(billColumns...).From(d.Table(billsTable)).Where(entsql.EQ("id", id)).Query()
	var out *entity.Bill
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		b, err := scanBill(rows)
		out = b
		return err
	})
	if err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	if out == nil {
		return nil, fmt.Errorf("bill %s: %w", id, common.ErrNotFound)
	}
	return out, nil
}

func (r *billRepo) ListClaimable(ctx context.Context, status constants.BillStatus, actions []constants.BillAction, limit int) ([]string, error) {
	d := r.db.sql()
	sel := d.Select("id").From(d.Table(billsTable)).
		Where(entsql.And(
			entsql.EQ("status", string(status)),
			leaseFree(unix(now())),
		)).
		OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))
	if len(actions) > 0 {
		vals := make([]any, len(actions))
		for i, a := range actions {
			vals[i] = string(a)
		}
		sel.Where(entsql.In("action", vals...))
	}
	if limit > 0 {
		sel.Limit(limit)
	}
	q, args := sel.Query()
	var ids []string
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	return ids, nil
}

func (r *billRepo) ListByStatus(ctx context.Context, statuses []constants.BillStatus) ([]*entity.Bill, error) {
	d := r.db.sql()
	sel := d.Select(billColumns...).From(d.Table(billsTable)).OrderBy(entsql.Asc("created_at"), entsql.Asc("id"))
	if len(statuses) > 0 {
		vals := make([]any, len(statuses))
		for i, s := range statuses {
			vals[i] = string(s)
		}
		sel.Where(entsql.In("status", vals...))
	}
	q, args := sel.Query()
	var out []*entity.Bill
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		b, err := scanBill(rows)
		if err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	if err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	return out, nil
}

func (r *billRepo) Claim(ctx context.Context, id string, status constants.BillStatus, lease time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ts := now()
	q, args := r.db.sql().Update(billsTable).
		Set("claim_token", token).
		Set("claim_expires_at", unix(ts.Add(lease))).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(status)),
			leaseFree(unix(ts)),
		)).Query()
	res, err := r.db.exec(ctx, q, args)
	if err != nil {
		r.log.Error("bill claim failed", "bill_id", id, "err", err)
		return "", false, errors.Join(common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, errors.Join(common.ErrDatabase, err)
	}
	if n == 0 {
		r.log.Debug("bill claim skipped", "bill_id", id, "status", status)
		return "", false, nil
	}
	return token, true, nil
}

func (r *billRepo) Release(ctx context.Context, id, token string) error {
	q, args := r.db.sql().Update(billsTable).
		SetNull("claim_token").
		SetNull("claim_expires_at").
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("claim_token", token))).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Warn("bill release failed", "bill_id", id, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	return nil
}

func (r *billRepo) GetClaimed(ctx context.Context, id, token string) (*entity.Bill, error) {
	d := r.db.sql()
	q, args := d.Select(billColumns...).From(d.Table(billsTable)).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("claim_token", token))).
		Query()
	var out *entity.Bill
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		b, err := scanBill(rows)
		out = b
		return err
	})
	if err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	if out == nil {
		return nil, fmt.Errorf("bill %s: %w", id, common.ErrLeaseLost)
	}
	return out, nil
}

func (r *billRepo) Save(ctx context.Context, b *entity.Bill) error {
	if !constants.IsValidPair(b.Status, b.Action) {
		r.log.Error("bill save rejected", "bill_id", b.ID, "status", b.Status, "action", b.Action)
		return fmt.Errorf("save bill %s (%s/%q): %w", b.ID, b.Status, b.Action, common.ErrInvalidTransition)
	}
	stored, err := r.Get(ctx, b.ID)
	if err != nil {
		return err
	}
	if sameFields(stored, b) {
		if err := r.clearLease(ctx, b.ID); err != nil {
			return err
		}
		b.UpdatedAt = stored.UpdatedAt
		r.log.Debug("bill unchanged", "bill_id", b.ID, "status", b.Status, "action", b.Action)
		return nil
	}

	ts := now()
	q, args := r.db.sql().Update(billsTable).
		Set("claim_id", nullString(b.ClaimID)).
		Set("status", string(b.Status)).
		Set("action", string(b.Action)).
		Set("last_error", nullString(b.LastError)).
		Set("patient_name", b.PatientName).
		Set("patient_dob", b.PatientDOB).
		Set("patient_zip", b.PatientZip).
		Set("billing_provider_name", b.BillingProviderName).
		Set("billing_provider_address", b.BillingProviderAddress).
		Set("billing_provider_tin", b.BillingProviderTIN).
		Set("billing_provider_npi", b.BillingProviderNPI).
		Set("total_charge", b.TotalCharge).
		Set("patient_account_no", b.PatientAccountNo).
		Set("bill_paid", b.BillPaid).
		Set("updated_at", unix(ts)).
		SetNull("claim_token").
		SetNull("claim_expires_at").
		Where(entsql.EQ("id", b.ID)).
		Query()
	res, err := r.db.exec(ctx, q, args)
	if err != nil {
		r.log.Error("bill save failed", "bill_id", b.ID, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("bill %s: %w", b.ID, common.ErrNotFound)
	}
	b.UpdatedAt = ts
	r.log.Info("bill saved", "bill_id", b.ID, "status", b.Status, "action", b.Action)
	return nil
}

func (r *billRepo) clearLease(ctx context.Context, id string) error {
	q, args := r.db.sql().Update(billsTable).
		SetNull("claim_token").
		SetNull("claim_expires_at").
		Where(entsql.EQ("id", id)).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("bill lease clear failed", "bill_id", id, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	return nil
}

// sameFields reports whether Save would write nothing new for b.
func sameFields(a, b *entity.Bill) bool {
	return equalPtr(a.ClaimID, b.ClaimID) &&
		a.Status == b.Status &&
		a.Action == b.Action &&
		equalPtr(a.LastError, b.LastError) &&
		a.PatientName == b.PatientName &&
		a.PatientDOB == b.PatientDOB &&
		a.PatientZip == b.PatientZip &&
		a.BillingProviderName == b.BillingProviderName &&
		a.BillingProviderAddress == b.BillingProviderAddress &&
		a.BillingProviderTIN == b.BillingProviderTIN &&
		a.BillingProviderNPI == b.BillingProviderNPI &&
		a.TotalCharge.Valid == b.TotalCharge.Valid &&
		(!a.TotalCharge.Valid || a.TotalCharge.Decimal.Equal(b.TotalCharge.Decimal)) &&
		a.PatientAccountNo == b.PatientAccountNo &&
		a.BillPaid == b.BillPaid
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// NewBillID returns a 32 hex character id.
func NewBillID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])
}

func leaseFree(nowUnix int64) *entsql.Predicate {
	return entsql.Or(entsql.IsNull("claim_token"), entsql.LT("claim_expires_at", nowUnix))
}

func scanBill(rows *entsql.Rows) (*entity.Bill, error) {
	var (
		b                  entity.Bill
		claimID, lastError sql.NullString
		status, action     string
		created, updated   int64
	)
	err := rows.Scan(
		&b.ID, &claimID, &b.UploadedBy, &b.SourceFile, &status, &action, &lastError,
		&b.PatientName, &b.PatientDOB, &b.PatientZip,
		&b.BillingProviderName, &b.BillingProviderAddress, &b.BillingProviderTIN, &b.BillingProviderNPI,
		&b.TotalCharge, &b.PatientAccountNo, &b.BillPaid, &created, &updated,
	)
	if err != nil {
		return nil, fmt.Errorf("scan bill: %w", err)
	}
	b.ClaimID = stringPtr(claimID)
	b.LastError = stringPtr(lastError)
	b.Status = constants.BillStatus(status)
	b.Action = constants.BillAction(action)
	b.CreatedAt = fromUnix(created)
	b.UpdatedAt = fromUnix(updated)
	return &b, nil
}
