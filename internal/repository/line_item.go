package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
)

const lineItemsTable = "bill_line_items"

var lineItemColumns = []string{
	"provider_bill_id", "cpt_code", "modifier", "units", "charge_amount", "allowed_amount",
	"decision", "reason_code", "date_of_service", "place_of_service", "diagnosis_pointer",
}

type LineItemRepository interface {
	ListByBill(ctx context.Context, billID string) ([]entity.LineItem, error)
	// Insert stores item and sets its ID.
	Insert(ctx context.Context, item *entity.LineItem) error
	// ReplaceAll drops every line of billID and inserts items in order.
	ReplaceAll(ctx context.Context, billID string, items []entity.LineItem) error
	// Update rewrites the extracted fields of an existing line; decision,
	// allowed amount and reason code are left alone.
	Update(ctx context.Context, item entity.LineItem) error
	Delete(ctx context.Context, ids []int64) error
}

type lineItemRepo struct {
	db  *DB
	log *slog.Logger
}

func NewLineItemRepository(db *DB, log *slog.Logger) LineItemRepository {
	if log == nil {
		log = slog.Default()
	}
	return &lineItemRepo{db: db, log: log}
}

func (r *lineItemRepo) ListByBill(ctx context.Context, billID string) ([]entity.LineItem, error) {
	d := r.db.sql()
	cols := append([]string{"id"}, lineItemColumns...)
	q, args := d.Select(cols...).From(d.Table(lineItemsTable)).
		Where(entsql.EQ("provider_bill_id", billID)).
		OrderBy(entsql.Asc("id")).
		Query()
	var out []entity.LineItem
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var it entity.LineItem
		if err := rows.Scan(
			&it.ID, &it.BillID, &it.CPTCode, &it.Modifier, &it.Units, &it.ChargeAmount, &it.AllowedAmount,
			&it.Decision, &it.ReasonCode, &it.DateOfService, &it.PlaceOfService, &it.DiagnosisPointer,
		); err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		out = append(out, it)
		return nil
	})
	if err != nil {
		r.log.Error("line items list failed", "bill_id", billID, "err", err)
		return nil, errors.Join(common.ErrDatabase, err)
	}
	return out, nil
}

func (r *lineItemRepo) Insert(ctx context.Context, it *entity.LineItem) error {
	if it.Decision == "" {
		it.Decision = entity.DecisionPending
	}
	q, args := r.db.sql().Insert(lineItemsTable).
		Columns(lineItemColumns...).
		Values(
			it.BillID, it.CPTCode, it.Modifier, it.Units, it.ChargeAmount, it.AllowedAmount,
			it.Decision, it.ReasonCode, it.DateOfService, it.PlaceOfService, it.DiagnosisPointer,
		).
		Returning("id").
		Query()
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		return rows.Scan(&it.ID)
	})
	if err != nil {
		r.log.Error("line item insert failed", "bill_id", it.BillID, "cpt", it.CPTCode, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	return nil
}

func (r *lineItemRepo) ReplaceAll(ctx context.Context, billID string, items []entity.LineItem) error {
	return r.db.InTx(ctx, func(ctx context.Context) error {
		q, args := r.db.sql().Delete(lineItemsTable).Where(entsql.EQ("provider_bill_id", billID)).Query()
		if _, err := r.db.exec(ctx, q, args); err != nil {
			return errors.Join(common.ErrDatabase, err)
		}
		for i := range items {
			items[i].BillID = billID
			if err := r.Insert(ctx, &items[i]); err != nil {
				return err
			}
		}
		r.log.Debug("line items replaced", "bill_id", billID, "count", len(items))
		return nil
	})
}

func (r *lineItemRepo) Update(ctx context.Context, it entity.LineItem) error {
	q, args := r.db.sql().Update(lineItemsTable).
		Set("cpt_code", it.CPTCode).
		Set("modifier", it.Modifier).
		Set("units", it.Units).
		Set("charge_amount", it.ChargeAmount).
		Set("date_of_service", it.DateOfService).
		Set("place_of_service", it.PlaceOfService).
		Set("diagnosis_pointer", it.DiagnosisPointer).
		Where(entsql.EQ("id", it.ID)).
		Query()
	res, err := r.db.exec(ctx, q, args)
	if err != nil {
		r.log.Error("line item update failed", "id", it.ID, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("line item %d: %w", it.ID, common.ErrNotFound)
	}
	return nil
}

func (r *lineItemRepo) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	q, args := r.db.sql().Delete(lineItemsTable).Where(entsql.In("id", vals...)).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("line item delete failed", "ids", ids, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	return nil
}
