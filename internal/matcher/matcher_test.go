package matcher

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/metrics"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"John Smith":          "john smith",
		"Smith, John":         "smith john",
		"  José   Núñez Jr. ": "jose nunez",
		"Mary-Ann O'Neil III": "mary-ann oneil",
		"Dr. Alan Doe, MD":    "dr alan doe",
		"":                    "",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, CleanName(in))
		})
	}
}

func TestSimilarity_IsOrderInsensitive(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("John Smith", "John", "Smith"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("John Smith", "Smith", "John"), 1e-9)

	first, last := SplitName("Smith, John")
	assert.Equal(t, "John", first)
	assert.Equal(t, "Smith", last)
	assert.GreaterOrEqual(t, Similarity("John Smith", first, last), 0.80)
	assert.GreaterOrEqual(t, Similarity("Smith John", first, last), 0.80)

	assert.Less(t, Similarity("John Smith", "Maria", "Gonzalez"), 0.5)
	assert.InDelta(t, 0.75, Ratio("abcd", "abce"), 1e-9)
}

func billLines(dates ...string) []entity.LineItem {
	out := make([]entity.LineItem, len(dates))
	for i, d := range dates {
		out[i] = entity.LineItem{CPTCode: "73221", DateOfService: d}
	}
	return out
}

func order(id, first, last string, dates ...string) *entity.Order {
	o := &entity.Order{OrderID: id, PatientFirstName: first, PatientLastName: last, FullyPaid: "N"}
	for _, d := range dates {
		o.Lines = append(o.Lines, entity.OrderLineItem{DOS: d, CPT: "73221", Units: 1})
	}
	return o
}

func TestMatch_DateGate(t *testing.T) {
	m := New(nil, nil, nil, nil, Config{}, quiet)
	b := &entity.Bill{ID: "b1", PatientName: "John Smith"}

	far := order("FAR", "John", "Smith", "2024-01-01", "2024-06-30")
	near := order("NEAR", "Jon", "Smith", "2024-03-22")

	cands, best := m.Match(b, billLines("03/01/2024"), []*entity.Order{far})
	assert.Empty(t, cands, "exact name outside the window is never selected")
	assert.Equal(t, -1, best)

	cands, best = m.Match(b, billLines("03/01/2024"), []*entity.Order{far, near})
	require.Equal(t, 0, best)
	assert.Equal(t, "NEAR", cands[best].OrderID)
	assert.Equal(t, "2024-03-22", cands[best].Date.Format("2006-01-02"))
}

func TestMatch_PicksHighestFirstOnTie(t *testing.T) {
	m := New(nil, nil, nil, nil, Config{}, quiet)
	b := &entity.Bill{ID: "b1", PatientName: "John Smith"}
	orders := []*entity.Order{
		order("A", "Jon", "Smith", "2024-03-01"),
		order("B", "John", "Smith", "2024-03-01"),
		order("C", "Smith", "John", "2024-03-02"),
	}
	cands, best := m.Match(b, billLines("2024-03-01"), orders)
	require.Len(t, cands, 3)
	assert.Equal(t, "B", cands[best].OrderID)
}

func TestMatch_NoServiceDates(t *testing.T) {
	m := New(nil, nil, nil, nil, Config{}, quiet)
	_, best := m.Match(&entity.Bill{PatientName: "John Smith"}, billLines("", "garbage"),
		[]*entity.Order{order("A", "John", "Smith", "2024-03-01")})
	assert.Equal(t, -1, best)
}

type fixture struct {
	ctx    context.Context
	m      *Matcher
	bills  repository.BillRepository
	lines  repository.LineItemRepository
	orders repository.OrderRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bills.db"), quiet)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	f := &fixture{
		ctx:    ctx,
		bills:  repository.NewBillRepository(db, quiet),
		lines:  repository.NewLineItemRepository(db, quiet),
		orders: repository.NewOrderRepository(db, quiet),
	}
	f.m = New(db, f.bills, f.lines, f.orders, Config{}, quiet)
	return f
}

func (f *fixture) validBill(t *testing.T, name string, dates ...string) *entity.Bill {
	t.Helper()
	b := &entity.Bill{Status: constants.StatusValid, Action: constants.ActionToMap, PatientName: name}
	require.NoError(t, f.bills.Create(f.ctx, b))
	require.NoError(t, f.lines.ReplaceAll(f.ctx, b.ID, billLines(dates...)))
	return b
}

func TestMapBill_Mapped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orders.Create(f.ctx, order("ORD-1", "John", "Smith", "2024-03-05")))
	b := f.validBill(t, "Smith, John", "03/01/2024")

	res, err := f.m.MapBill(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusMapped, res.Status)
	assert.Equal(t, "ORD-1", res.ClaimID)

	got, err := f.bills.Get(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusMapped, got.Status)
	assert.Equal(t, constants.ActionToReview, got.Action)
	require.NotNil(t, got.ClaimID)
	assert.Equal(t, "ORD-1", *got.ClaimID)
	assert.Nil(t, got.LastError)

	again, err := f.m.MapBill(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, MsgNotReady, again.Message)
}

func TestMapBill_DuplicateIncrementsOnce(t *testing.T) {
	f := newFixture(t)
	paid := order("ORD-P", "John", "Smith", "2024-03-05")
	paid.FullyPaid = "Y"
	require.NoError(t, f.orders.Create(f.ctx, paid))
	b := f.validBill(t, "John Smith", "2024-03-01")

	res, err := f.m.MapBill(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDuplicate, res.Status)

	// A second run finds the bill no longer VALID and writes nothing.
	_, err = f.m.MapBill(f.ctx, b.ID)
	require.NoError(t, err)

	o, err := f.orders.Get(f.ctx, "ORD-P")
	require.NoError(t, err)
	assert.Equal(t, 1, o.BillsRec)

	got, err := f.bills.Get(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDuplicate, got.Status)
	assert.Equal(t, constants.ActionToReview, got.Action)
	assert.Equal(t, MsgFullyPaid, got.LastErrorString())
}

func TestMapAll_CountsOutcomes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orders.Create(f.ctx, order("ORD-1", "John", "Smith", "2024-03-05")))
	mapped := f.validBill(t, "John Smith", "2024-03-01")
	unmapped := f.validBill(t, "Zed Zulu", "2024-03-01")

	st, err := f.m.MapAll(f.ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Stats{Mapped: 1, Unmapped: 1}, st)

	got, err := f.bills.Get(f.ctx, unmapped.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusUnmapped, got.Status)
	assert.Equal(t, constants.ActionToMap, got.Action)
	assert.Equal(t, MsgNoMatch, got.LastErrorString())

	got, err = f.bills.Get(f.ctx, mapped.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusMapped, got.Status)
}

func TestDiagnose_DoesNotWrite(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orders.Create(f.ctx, order("ORD-1", "John", "Smith", "2024-03-05")))
	require.NoError(t, f.orders.Create(f.ctx, order("ORD-2", "Jane", "Smythe", "2024-03-05")))
	b := f.validBill(t, "John Smith", "2024-03-01")

	d, err := f.m.Diagnose(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "john smith", d.CleanedName)
	require.Len(t, d.Top, 2)
	assert.Equal(t, "ORD-1", d.Top[0].OrderID)
	require.NotNil(t, d.Best)
	assert.Equal(t, "ORD-1", d.Best.OrderID)

	got, err := f.bills.Get(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusValid, got.Status)
}

func TestMapBill_RecordsMetrics(t *testing.T) {
	f := newFixture(t)
	f.m.Metrics = metrics.New()
	require.NoError(t, f.orders.Create(f.ctx, order("ORD-1", "John", "Smith", "2024-03-05")))
	b := f.validBill(t, "John Smith", "2024-03-01")

	_, err := f.m.MapBill(f.ctx, b.ID)
	require.NoError(t, err)
	_, err = f.m.MapBill(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.Metrics.Mapping.WithLabelValues("mapped")))
}
