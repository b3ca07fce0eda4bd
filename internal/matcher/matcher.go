// Package matcher links validated bills to the orders they were billed
// against by patient name similarity and date of service proximity.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/metrics"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
	"github.com/joseph-ayodele/provider-bills/internal/utils"
)

const (
	MsgNotReady    = "Bill not ready for mapping"
	MsgNoMatch     = "No matching claim found for patient and dates"
	MsgFullyPaid   = "Order already fully paid"
	defaultTopN    = 10
	defaultWindow  = 21
	defaultMinimum = 0.80
)

// Config tunes candidate selection.
type Config struct {
	Threshold  float64
	DateWindow int    // days
	DOSFrom    string // YYYY-MM-DD
	DOSTo      string
	TopN       int
}

// ConfigFrom adapts the matcher section of the app config.
func ConfigFrom(c common.MatcherConfig) Config {
	return Config{Threshold: c.Threshold, DateWindow: c.DateWindow, DOSFrom: c.DOSFrom, DOSTo: c.DOSTo, TopN: c.TopN}
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = defaultMinimum
	}
	if c.DateWindow <= 0 {
		c.DateWindow = defaultWindow
	}
	if c.DOSFrom == "" {
		c.DOSFrom = "2024-01-01"
	}
	if c.DOSTo == "" {
		c.DOSTo = "2025-12-31"
	}
	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}
	return c
}

// Candidate is an order that passed the date gate and the threshold.
type Candidate struct {
	OrderID    string    `json:"order_id"`
	Similarity float64   `json:"similarity"`
	Date       time.Time `json:"date"` // order line date that satisfied the gate
	FullyPaid  bool      `json:"fully_paid"`
}

// Result is the mapping outcome of one bill.
type Result struct {
	BillID  string
	Status  constants.BillStatus
	Action  constants.BillAction
	ClaimID string
	Message string
}

// Matcher maps VALID bills onto orders.
type Matcher struct {
	db     *repository.DB
	bills  repository.BillRepository
	lines  repository.LineItemRepository
	orders repository.OrderRepository
	cfg    Config
	log    *slog.Logger

	Metrics *metrics.Metrics // optional
}

func New(db *repository.DB, bills repository.BillRepository, lines repository.LineItemRepository,
	orders repository.OrderRepository, cfg Config, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{db: db, bills: bills, lines: lines, orders: orders, cfg: cfg.withDefaults(), log: log}
}

// Match scores orders for a bill. It returns every qualifying candidate, in
// the order encountered, and the index of the best one or -1.
func (m *Matcher) Match(b *entity.Bill, items []entity.LineItem, orders []*entity.Order) ([]Candidate, int) {
	billDates := serviceDates(items)
	if len(billDates) == 0 {
		m.log.Warn("matcher.no_service_dates", "bill_id", b.ID)
		return nil, -1
	}

	var (
		out  []Candidate
		best = -1
	)
	for _, o := range orders {
		first, last := o.PatientFirstName, o.PatientLastName
		if first == "" && last == "" {
			first, last = SplitName(o.PatientName)
		}
		sim := Similarity(b.PatientName, first, last)
		if sim < m.cfg.Threshold {
			continue
		}
		date, ok := m.closeDate(o, billDates)
		if !ok {
			continue
		}
		out = append(out, Candidate{OrderID: o.OrderID, Similarity: sim, Date: date, FullyPaid: o.IsFullyPaid()})
		if best < 0 || sim > out[best].Similarity {
			best = len(out) - 1
		}
	}
	return out, best
}

// closeDate returns the first order line date within the window of any bill date.
func (m *Matcher) closeDate(o *entity.Order, billDates []time.Time) (time.Time, bool) {
	for _, ln := range o.Lines {
		d, ok := utils.NormalizeDate(ln.DOS)
		if !ok {
			continue
		}
		for _, bd := range billDates {
			if utils.DaysApart(d, bd) <= m.cfg.DateWindow {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func serviceDates(items []entity.LineItem) []time.Time {
	var out []time.Time
	for _, it := range items {
		if d, ok := utils.NormalizeDate(it.DateOfService); ok {
			out = append(out, d)
		}
	}
	return out
}

// MapBill maps one bill inside a transaction. Only VALID/to_map bills are
// touched; anything else comes back with MsgNotReady and no writes.
func (m *Matcher) MapBill(ctx context.Context, billID string) (Result, error) {
	var res Result
	err := m.db.InTx(ctx, func(ctx context.Context) error {
		b, err := m.bills.Get(ctx, billID)
		if err != nil {
			return err
		}
		res, err = m.mapLoaded(ctx, b)
		return err
	})
	m.observe(res, err)
	return res, err
}

func (m *Matcher) mapLoaded(ctx context.Context, b *entity.Bill) (Result, error) {
	res := Result{BillID: b.ID, Status: b.Status, Action: b.Action}
	if b.Status != constants.StatusValid || b.Action != constants.ActionToMap {
		res.Message = MsgNotReady
		return res, nil
	}

	items, err := m.lines.ListByBill(ctx, b.ID)
	if err != nil {
		return res, err
	}
	orders, err := m.orders.CandidateOrders(ctx, m.cfg.DOSFrom, m.cfg.DOSTo)
	if err != nil {
		return res, err
	}
	cands, best := m.Match(b, items, orders)

	switch {
	case best < 0:
		m.log.Info("matcher.unmapped", "bill_id", b.ID, "patient", b.PatientName, "orders", len(orders))
		res.Status, res.Action, res.Message = constants.StatusUnmapped, constants.ActionToMap, MsgNoMatch
	case cands[best].FullyPaid:
		c := cands[best]
		if err := m.orders.IncrementBillsReceived(ctx, c.OrderID); err != nil {
			return res, fmt.Errorf("increment bills_rec on %s: %w", c.OrderID, err)
		}
		m.log.Info("matcher.duplicate", "bill_id", b.ID, "order_id", c.OrderID, "similarity", c.Similarity)
		res.Status, res.Action, res.ClaimID, res.Message = constants.StatusDuplicate, constants.ActionToReview, c.OrderID, MsgFullyPaid
	default:
		c := cands[best]
		m.logOverlap(b.ID, items, orderByID(orders, c.OrderID))
		m.log.Info("matcher.mapped", "bill_id", b.ID, "order_id", c.OrderID, "similarity", c.Similarity)
		res.Status, res.Action, res.ClaimID = constants.StatusMapped, constants.ActionToReview, c.OrderID
	}

	b.Status, b.Action = res.Status, res.Action
	if res.ClaimID != "" {
		claim := res.ClaimID
		b.ClaimID = &claim
	}
	if res.Message != "" {
		msg := res.Message
		b.LastError = &msg
	} else {
		b.LastError = nil
	}
	if err := m.bills.Save(ctx, b); err != nil {
		return res, err
	}
	return res, nil
}

// observe counts a committed mapping outcome.
func (m *Matcher) observe(res Result, err error) {
	if err != nil || res.Message == MsgNotReady {
		return
	}
	m.Metrics.ObserveMapping(strings.ToLower(string(res.Status)))
}

// logOverlap reports shared procedure codes. It never affects the match.
func (m *Matcher) logOverlap(billID string, items []entity.LineItem, o *entity.Order) {
	if o == nil {
		return
	}
	billCPT := map[string]struct{}{}
	for _, it := range items {
		if c := strings.TrimSpace(it.CPTCode); c != "" {
			billCPT[c] = struct{}{}
		}
	}
	var overlap []string
	seen := map[string]struct{}{}
	for _, ln := range o.Lines {
		c := strings.TrimSpace(ln.CPT)
		if _, ok := billCPT[c]; ok {
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				overlap = append(overlap, c)
			}
		}
	}
	sort.Strings(overlap)
	m.log.Info("matcher.cpt_overlap", "bill_id", billID, "order_id", o.OrderID, "overlap", overlap, "count", len(overlap))
}

func orderByID(orders []*entity.Order, id string) *entity.Order {
	for _, o := range orders {
		if o.OrderID == id {
			return o
		}
	}
	return nil
}

// Stats counts a mapping pass by outcome.
type Stats struct {
	Mapped, Duplicate, Unmapped, Skipped, Failed int
}

// MapAll maps every unleased VALID/to_map bill. A failing bill is counted and
// the pass continues.
func (m *Matcher) MapAll(ctx context.Context, lease time.Duration) (Stats, error) {
	var st Stats
	ids, err := m.bills.ListClaimable(ctx, constants.StatusValid, []constants.BillAction{constants.ActionToMap}, 0)
	if err != nil {
		return st, err
	}
	m.log.Info("matcher.pass.start", "bills", len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res, err := m.mapClaimed(ctx, id, lease)
		switch {
		case errors.Is(err, errSkipped):
			st.Skipped++
		case err != nil:
			st.Failed++
			m.log.Error("matcher.bill.failed", "bill_id", id, "err", err)
		case res.Status == constants.StatusMapped:
			st.Mapped++
		case res.Status == constants.StatusDuplicate:
			st.Duplicate++
		case res.Status == constants.StatusUnmapped:
			st.Unmapped++
		default:
			st.Skipped++
		}
	}
	m.log.Info("matcher.pass.done", "mapped", st.Mapped, "duplicate", st.Duplicate,
		"unmapped", st.Unmapped, "skipped", st.Skipped, "failed", st.Failed)
	return st, ctx.Err()
}

var errSkipped = errors.New("bill claimed elsewhere")

func (m *Matcher) mapClaimed(ctx context.Context, id string, lease time.Duration) (Result, error) {
	token, ok, err := m.bills.Claim(ctx, id, constants.StatusValid, lease)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, errSkipped
	}
	// Save clears the lease; this only matters when nothing was saved.
	defer func() { _ = m.bills.Release(context.WithoutCancel(ctx), id, token) }()

	var res Result
	err = m.db.InTx(ctx, func(ctx context.Context) error {
		b, err := m.bills.GetClaimed(ctx, id, token)
		if err != nil {
			return err
		}
		res, err = m.mapLoaded(ctx, b)
		return err
	})
	m.observe(res, err)
	return res, err
}

// Diagnosis is a read-only view of how a bill scores against every order.
type Diagnosis struct {
	BillID      string
	CleanedName string
	Dates       []time.Time
	Top         []Candidate
	Best        *Candidate
}

// Diagnose scores a bill without writing. Top holds up to TopN candidates by
// similarity, ignoring the threshold but not the date gate.
func (m *Matcher) Diagnose(ctx context.Context, billID string) (*Diagnosis, error) {
	b, err := m.bills.Get(ctx, billID)
	if err != nil {
		return nil, err
	}
	items, err := m.lines.ListByBill(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	orders, err := m.orders.CandidateOrders(ctx, m.cfg.DOSFrom, m.cfg.DOSTo)
	if err != nil {
		return nil, err
	}

	d := &Diagnosis{BillID: b.ID, CleanedName: CleanName(b.PatientName), Dates: serviceDates(items)}
	loose := *m
	loose.cfg.Threshold = 0
	all, _ := loose.Match(b, items, orders)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })
	if len(all) > m.cfg.TopN {
		all = all[:m.cfg.TopN]
	}
	d.Top = all

	cands, best := m.Match(b, items, orders)
	if best >= 0 {
		c := cands[best]
		d.Best = &c
	}
	return d, nil
}
