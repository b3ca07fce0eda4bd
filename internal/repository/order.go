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

const (
	ordersTable     = "orders"
	orderLinesTable = "order_line_items"
)

var orderColumns = []string{
	"order_id", "patient_first_name", "patient_last_name", "patient_name",
	"jurisdiction_state", "provider_id", "fully_paid", "bills_paid", "bills_rec",
}

type OrderRepository interface {
	Create(ctx context.Context, o *entity.Order) error
	Get(ctx context.Context, orderID string) (*entity.Order, error)
	// CandidateOrders returns orders, with all their lines, that have at least
	// one line whose dos falls within [from, to] (YYYY-MM-DD).
	CandidateOrders(ctx context.Context, from, to string) ([]*entity.Order, error)
	// IncrementBillsReceived adds one to bills_rec, treating NULL as zero.
	IncrementBillsReceived(ctx context.Context, orderID string) error
}

type orderRepo struct {
	db  *DB
	log *slog.Logger
}

func NewOrderRepository(db *DB, log *slog.Logger) OrderRepository {
	if log == nil {
		log = slog.Default()
	}
	return &orderRepo{db: db, log: log}
}

func (r *orderRepo) Create(ctx context.Context, o *entity.Order) error {
	if o.FullyPaid == "" {
		o.FullyPaid = "N"
	}
	return r.db.InTx(ctx, func(ctx context.Context) error {
		q, args := r.db.sql().Insert(ordersTable).
			Columns(orderColumns...).
			Values(o.OrderID, o.PatientFirstName, o.PatientLastName, o.PatientName,
				o.JurisdictionState, o.ProviderID, o.FullyPaid, o.BillsPaid, o.BillsRec).
			Query()
		if _, err := r.db.exec(ctx, q, args); err != nil {
			r.log.Error("order create failed", "order_id", o.OrderID, "err", err)
			return errors.Join(common.ErrDatabase, err)
		}
		for i := range o.Lines {
			ln := &o.Lines[i]
			ln.OrderID = o.OrderID
			q, args := r.db.sql().Insert(orderLinesTable).
				Columns("order_id", "dos", "cpt", "modifier", "units", "charge").
				Values(ln.OrderID, ln.DOS, ln.CPT, ln.Modifier, ln.Units, ln.Charge).
				Returning("id").
				Query()
			if err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error { return rows.Scan(&ln.ID) }); err != nil {
				return errors.Join(common.ErrDatabase, err)
			}
		}
		return nil
	})
}

func (r *orderRepo) Get(ctx context.Context, orderID string) (*entity.Order, error) {
	d := r.db.sql()
	q, args := d.Select(orderColumns...).From(d.Table(ordersTable)).Where(entsql.EQ("order_id", orderID)).Query()
	orders, err := r.loadOrders(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, common.ErrNotFound)
	}
	return orders[0], nil
}

func (r *orderRepo) CandidateOrders(ctx context.Context, from, to string) ([]*entity.Order, error) {
	d := r.db.sql()
	inWindow := d.Select("order_id").From(d.Table(orderLinesTable)).
		Where(entsql.And(entsql.GTE("dos", from), entsql.LTE("dos", to)))
	q, args := d.Select(orderColumns...).From(d.Table(ordersTable)).
		Where(entsql.In("order_id", inWindow)).
		OrderBy(entsql.Asc("order_id")).
		Query()
	orders, err := r.loadOrders(ctx, q, args)
	if err != nil {
		r.log.Error("candidate orders query failed", "from", from, "to", to, "err", err)
		return nil, err
	}
	r.log.Debug("candidate orders loaded", "count", len(orders), "from", from, "to", to)
	return orders, nil
}

func (r *orderRepo) IncrementBillsReceived(ctx context.Context, orderID string) error {
	q, args := r.db.sql().Update(ordersTable).
		Add("bills_rec", 1).
		Where(entsql.EQ("order_id", orderID)).
		Query()
	res, err := r.db.exec(ctx, q, args)
	if err != nil {
		r.log.Error("order bills_rec increment failed", "order_id", orderID, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("order %s: %w", orderID, common.ErrNotFound)
	}
	return nil
}

func (r *orderRepo) loadOrders(ctx context.Context, q string, args []any) ([]*entity.Order, error) {
	var (
		out  []*entity.Order
		byID = map[string]*entity.Order{}
	)
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var (
			o        entity.Order
			billsRec *int64
		)
		if err := rows.Scan(&o.OrderID, &o.PatientFirstName, &o.PatientLastName, &o.PatientName,
			&o.JurisdictionState, &o.ProviderID, &o.FullyPaid, &o.BillsPaid, &billsRec); err != nil {
			return fmt.Errorf("scan order: %w", err)
		}
		if billsRec != nil {
			o.BillsRec = int(*billsRec)
		}
		out = append(out, &o)
		byID[o.OrderID] = &o
		return nil
	})
	if err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]any, 0, len(out))
	for _, o := range out {
		ids = append(ids, o.OrderID)
	}
	d := r.db.sql()
	lq, largs := d.Select("id", "order_id", "dos", "cpt", "modifier", "units", "charge").
		From(d.Table(orderLinesTable)).
		Where(entsql.In("order_id", ids...)).
		OrderBy(entsql.Asc("id")).
		Query()
	err = r.db.query(ctx, lq, largs, func(rows *entsql.Rows) error {
		var ln entity.OrderLineItem
		if err := rows.Scan(&ln.ID, &ln.OrderID, &ln.DOS, &ln.CPT, &ln.Modifier, &ln.Units, &ln.Charge); err != nil {
			return fmt.Errorf("scan order line: %w", err)
		}
		if o, ok := byID[ln.OrderID]; ok {
			o.Lines = append(o.Lines, ln)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	return out, nil
}
