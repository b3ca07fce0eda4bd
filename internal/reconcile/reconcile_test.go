package reconcile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/llm"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func intp(n int) *int { return &n }

func extraction() llm.HCFAFields {
	return llm.HCFAFields{
		PatientInfo: llm.PatientInfo{PatientName: "Jane Doe", PatientDOB: "01/02/1980"},
		BillingInfo: llm.BillingInfo{
			BillingProviderName: "Acme Imaging",
			BillingProviderNPI:  "1234567890",
			TotalCharge:         "$350.25",
		},
		ServiceLines: []llm.ServiceLine{
			{CPTCode: "73221", DateOfService: "03/01/2024", ChargeAmount: "100.00", Modifiers: []string{"RT"}},
			{CPTCode: "72148", DateOfService: "03/01/2024", ChargeAmount: "$250.25", Units: intp(2)},
		},
	}
}

func setup(t *testing.T) (context.Context, *repository.DB, *entity.Bill, *Reconciler) {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bills.db"), quiet)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	b := &entity.Bill{}
	require.NoError(t, repository.NewBillRepository(db, quiet).Create(ctx, b))
	return ctx, db, b, NewReconciler(repository.NewLineItemRepository(db, quiet), quiet)
}

func TestLinesFromFields(t *testing.T) {
	f := extraction()
	f.ServiceLines = append(f.ServiceLines, llm.ServiceLine{CPTCode: "70551", ChargeAmount: "abc"})

	lines := LinesFromFields("b1", f, quiet)
	require.Len(t, lines, 2, "unparseable charge is skipped")
	assert.Equal(t, "RT", lines[0].Modifier)
	assert.Equal(t, 1, lines[0].Units)
	assert.Equal(t, 2, lines[1].Units)
	assert.Equal(t, "250.25", entity.FormatMoney(lines[1].ChargeAmount))
	assert.Equal(t, entity.DecisionPending, lines[1].Decision)
	assert.Equal(t, "72148_03/01/2024_250.25", Key(lines[1]))
}

func TestApplyHeader(t *testing.T) {
	b := &entity.Bill{ID: "b1"}
	f := extraction()
	ApplyHeader(b, f, quiet)
	assert.Equal(t, "Jane Doe", b.PatientName)
	assert.Equal(t, "350.25", entity.FormatMoney(b.TotalCharge))
	assert.Equal(t, "N", b.BillPaid)

	f.BillingInfo.TotalCharge = "n/a"
	ApplyHeader(b, f, quiet)
	assert.False(t, b.TotalCharge.Valid)
}

func TestCompute_IsIdempotent(t *testing.T) {
	ctx, db, b, rec := setup(t)
	lines := repository.NewLineItemRepository(db, quiet)

	f := extraction()
	ApplyHeader(b, f, quiet)
	require.NoError(t, rec.Replace(ctx, b.ID, LinesFromFields(b.ID, f, quiet)))

	stored, err := lines.ListByBill(ctx, b.ID)
	require.NoError(t, err)

	d := Compute(b, stored, f, quiet)
	assert.True(t, d.Empty(), "%+v", d)

	require.NoError(t, rec.Apply(ctx, b.ID, d))
	again, err := lines.ListByBill(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, again)
}

func TestCompute_AddUpdateRemove(t *testing.T) {
	ctx, db, b, rec := setup(t)
	lines := repository.NewLineItemRepository(db, quiet)

	f := extraction()
	ApplyHeader(b, f, quiet)
	require.NoError(t, rec.Replace(ctx, b.ID, LinesFromFields(b.ID, f, quiet)))
	stored, err := lines.ListByBill(ctx, b.ID)
	require.NoError(t, err)

	next := extraction()
	next.BillingInfo.TotalCharge = "400.00"
	next.ServiceLines = []llm.ServiceLine{
		{CPTCode: "73221", DateOfService: "03/01/2024", ChargeAmount: "100", Modifiers: []string{"RT", "LT"}},
		{CPTCode: "70551", DateOfService: "03/02/2024", ChargeAmount: "300.00"},
	}

	d := Compute(b, stored, next, quiet)
	require.False(t, d.Empty())
	assert.True(t, d.BillChanged)
	assert.Equal(t, []string{"total_charge: '350.25' -> '400.00'"}, d.Changes)
	require.Len(t, d.Update, 1)
	assert.Equal(t, stored[0].ID, d.Update[0].ID)
	assert.Equal(t, "RT,LT", d.Update[0].Modifier)
	require.Len(t, d.Add, 1)
	assert.Equal(t, "70551", d.Add[0].CPTCode)
	assert.Equal(t, []int64{stored[1].ID}, d.Remove)

	require.NoError(t, rec.Apply(ctx, b.ID, d))
	got, err := lines.ListByBill(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "RT,LT", got[0].Modifier)
	assert.Equal(t, "70551", got[1].CPTCode)

	ApplyHeader(b, next, quiet)
	assert.True(t, Compute(b, got, next, quiet).Empty())
}

func TestCompute_RepeatedKeysPairInOrder(t *testing.T) {
	same := llm.ServiceLine{CPTCode: "97110", DateOfService: "2024-03-01", ChargeAmount: "40.00"}
	stored := []entity.LineItem{
		{ID: 1, CPTCode: "97110", DateOfService: "2024-03-01", ChargeAmount: mustMoney("40"), Units: 1},
		{ID: 2, CPTCode: "97110", DateOfService: "2024-03-01", ChargeAmount: mustMoney("40"), Units: 1},
	}
	b := &entity.Bill{ID: "b1"}

	d := Compute(b, stored, llm.HCFAFields{ServiceLines: []llm.ServiceLine{same}}, quiet)
	assert.Empty(t, d.Add)
	assert.Equal(t, []int64{2}, d.Remove)

	d = Compute(b, stored, llm.HCFAFields{ServiceLines: []llm.ServiceLine{same, same, same}}, quiet)
	assert.Len(t, d.Add, 1)
	assert.Empty(t, d.Remove)
}

func mustMoney(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}
