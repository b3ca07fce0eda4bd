package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		want  string
	}{
		{"$1,234.50", true, "1234.50"},
		{"100", true, "100.00"},
		{" 99.999 ", true, "100.00"},
		{"", false, ""},
		{"  $ ", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.want, FormatMoney(got))
		})
	}
}

func TestParseMoney_Garbage(t *testing.T) {
	_, err := ParseMoney("twelve dollars")
	require.Error(t, err)
}

func TestSumCharges_SkipsNulls(t *testing.T) {
	items := []LineItem{
		{ChargeAmount: decimal.NewNullDecimal(decimal.RequireFromString("60.00"))},
		{},
		{ChargeAmount: decimal.NewNullDecimal(decimal.RequireFromString("40.25"))},
	}
	assert.Equal(t, "100.25", SumCharges(items).StringFixed(2))
	assert.Equal(t, "None", FormatMoneyOrNone(decimal.NullDecimal{}))
}
