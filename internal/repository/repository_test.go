package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "bills.db"), logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestBillRepository_CreateGetSave(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)

	b := &entity.Bill{UploadedBy: "intake", SourceFile: "batch_1.pdf"}
	require.NoError(t, bills.Create(ctx, b))
	assert.Len(t, b.ID, 32)

	got, err := bills.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusScanned, got.Status)
	assert.Equal(t, constants.ActionNone, got.Action)
	assert.Equal(t, "N", got.BillPaid)
	assert.False(t, got.TotalCharge.Valid)
	assert.Nil(t, got.LastError)

	msg := "Missing Patient name"
	got.Status = constants.StatusInvalid
	got.Action = constants.ActionToValidate
	got.LastError = &msg
	got.TotalCharge = money("150.50")
	require.NoError(t, bills.Save(ctx, got))

	again, err := bills.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusInvalid, again.Status)
	assert.Equal(t, "Missing Patient name", again.LastErrorString())
	assert.Equal(t, "150.50", again.TotalCharge.Decimal.StringFixed(2))

	_, err = bills.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBillRepository_SaveUnchangedKeepsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)

	b := &entity.Bill{UploadedBy: "intake", SourceFile: "batch_2.pdf", TotalCharge: money("80.00")}
	require.NoError(t, bills.Create(ctx, b))
	before, err := bills.Get(ctx, b.ID)
	require.NoError(t, err)
	token, ok, err := bills.Claim(ctx, b.ID, constants.StatusScanned, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// updated_at has one second resolution.
	time.Sleep(1100 * time.Millisecond)

	held, err := bills.GetClaimed(ctx, b.ID, token)
	require.NoError(t, err)
	require.NoError(t, bills.Save(ctx, held))

	got, err := bills.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, before.UpdatedAt, held.UpdatedAt)
	ids, err := bills.ListClaimable(ctx, constants.StatusScanned, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids, "lease is cleared even when nothing changed")

	got.TotalCharge = money("80.10")
	require.NoError(t, bills.Save(ctx, got))
	again, err := bills.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, again.UpdatedAt.After(before.UpdatedAt))
}

func TestBillRepository_SaveRejectsInvalidPair(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)

	b := &entity.Bill{}
	require.NoError(t, bills.Create(ctx, b))

	b.Status = constants.StatusMapped
	b.Action = constants.ActionToValidate
	err := bills.Save(ctx, b)
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	stored, err := bills.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusScanned, stored.Status)
}

func TestBillRepository_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)

	b := &entity.Bill{}
	require.NoError(t, bills.Create(ctx, b))

	token, ok, err := bills.Claim(ctx, b.ID, constants.StatusScanned, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = bills.Claim(ctx, b.ID, constants.StatusScanned, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must not succeed while leased")

	ids, err := bills.ListClaimable(ctx, constants.StatusScanned, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = bills.GetClaimed(ctx, b.ID, "other-token")
	assert.ErrorIs(t, err, common.ErrLeaseLost)

	held, err := bills.GetClaimed(ctx, b.ID, token)
	require.NoError(t, err)
	held.Status = constants.StatusScraped
	held.Action = constants.ActionToValidate
	require.NoError(t, bills.Save(ctx, held))

	// Save releases the lease; the bill is no longer SCANNED so it cannot be re-claimed as such.
	_, ok, err = bills.Claim(ctx, b.ID, constants.StatusScanned, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = bills.Claim(ctx, b.ID, constants.StatusScraped, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBillRepository_ExpiredLeaseIsClaimable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)

	b := &entity.Bill{}
	require.NoError(t, bills.Create(ctx, b))
	_, ok, err := bills.Claim(ctx, b.ID, constants.StatusScanned, -time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := bills.ListClaimable(ctx, constants.StatusScanned, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids)
}

func TestBillRepository_ListClaimableFiltersAction(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)

	a := &entity.Bill{Status: constants.StatusInvalid, Action: constants.ActionToValidate}
	c := &entity.Bill{Status: constants.StatusInvalid, Action: constants.ActionAddLineItems}
	require.NoError(t, bills.Create(ctx, a))
	require.NoError(t, bills.Create(ctx, c))

	ids, err := bills.ListClaimable(ctx, constants.StatusInvalid, []constants.BillAction{constants.ActionAddLineItems}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids)

	ids, err = bills.ListClaimable(ctx, constants.StatusInvalid, nil, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, ids)
}

func TestLineItemRepository_ReplaceUpdateDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)
	lines := NewLineItemRepository(db, nil)

	b := &entity.Bill{}
	require.NoError(t, bills.Create(ctx, b))

	items := []entity.LineItem{
		{CPTCode: "73221", Units: 1, ChargeAmount: money("100.00"), DateOfService: "2024-03-01"},
		{CPTCode: "72148", Units: 2, ChargeAmount: money("250.25"), DateOfService: "2024-03-02"},
	}
	require.NoError(t, lines.ReplaceAll(ctx, b.ID, items))
	assert.NotZero(t, items[0].ID)
	assert.NotEqual(t, items[0].ID, items[1].ID)

	got, err := lines.ListByBill(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, entity.DecisionPending, got[0].Decision)
	assert.Equal(t, "250.25", got[1].ChargeAmount.Decimal.StringFixed(2))

	got[0].Modifier = "RT"
	got[0].ChargeAmount = money("120.00")
	require.NoError(t, lines.Update(ctx, got[0]))
	require.NoError(t, lines.Delete(ctx, []int64{got[1].ID}))

	extra := &entity.LineItem{BillID: b.ID, CPTCode: "70551", Units: 1}
	require.NoError(t, lines.Insert(ctx, extra))
	assert.NotZero(t, extra.ID)

	got, err = lines.ListByBill(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "RT", got[0].Modifier)
	assert.Equal(t, "120.00", got[0].ChargeAmount.Decimal.StringFixed(2))
	assert.Equal(t, "70551", got[1].CPTCode)
	assert.False(t, got[1].ChargeAmount.Valid)
}

func TestOrderRepository_CandidatesAndIncrement(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := NewOrderRepository(db, nil)

	in := &entity.Order{
		OrderID: "ORD-1", PatientName: "Jane Doe",
		Lines: []entity.OrderLineItem{
			{DOS: "2024-02-10", CPT: "73221", Units: 1, Charge: money("100")},
			{DOS: "2023-06-01", CPT: "72148", Units: 1},
		},
	}
	out := &entity.Order{
		OrderID: "ORD-2", PatientName: "John Roe",
		Lines: []entity.OrderLineItem{{DOS: "2023-01-05", CPT: "70551", Units: 1}},
	}
	require.NoError(t, orders.Create(ctx, in))
	require.NoError(t, orders.Create(ctx, out))

	cands, err := orders.CandidateOrders(ctx, "2024-01-01", "2025-12-31")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "ORD-1", cands[0].OrderID)
	assert.Len(t, cands[0].Lines, 2, "all lines of a candidate are loaded")

	require.NoError(t, orders.IncrementBillsReceived(ctx, "ORD-1"))
	got, err := orders.Get(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.BillsRec)

	assert.ErrorIs(t, orders.IncrementBillsReceived(ctx, "ORD-404"), common.ErrNotFound)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)
	errRollback := errors.New("rollback")

	var id string
	err := db.InTx(ctx, func(ctx context.Context) error {
		b := &entity.Bill{}
		if err := bills.Create(ctx, b); err != nil {
			return err
		}
		id = b.ID
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	_, err = bills.Get(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestExtractionRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	bills := NewBillRepository(db, nil)
	runs := NewExtractionRunRepository(db, nil)

	b := &entity.Bill{}
	require.NoError(t, bills.Create(ctx, b))

	ok := &entity.ExtractionRun{BillID: b.ID, Pass: 1, Strategy: "standard", Quality: "good"}
	require.NoError(t, runs.Start(ctx, ok))
	require.NoError(t, runs.FinishSuccess(ctx, ok.ID, "gpt-4o", []byte(`{"service_lines":[]}`)))

	failed := &entity.ExtractionRun{BillID: b.ID, Pass: 2, Strategy: "ultra_enhanced"}
	require.NoError(t, runs.Start(ctx, failed))
	require.NoError(t, runs.FinishFailure(ctx, failed.ID, constants.CategoryAPIError, "rate limited"))

	list, err := runs.ListByBill(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, string(constants.RunStatusOK), list[0].Status)
	assert.JSONEq(t, `{"service_lines":[]}`, string(list[0].RawJSON))
	assert.NotNil(t, list[0].FinishedAt)
	assert.Equal(t, string(constants.RunStatusFailed), list[1].Status)
	require.NotNil(t, list[1].ErrorCategory)
	assert.Equal(t, "api_error", *list[1].ErrorCategory)
}
