package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseMoney parses an extracted amount like "$1,234.50". Blank input is a
// valid null; anything else that is not a number is an error.
func ParseMoney(s string) (decimal.NullDecimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return decimal.NewNullDecimal(d.Round(2)), nil
}

// FormatMoney renders a nullable amount with two decimals, or "" for null.
func FormatMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

// FormatMoneyOrNone renders like FormatMoney but prints None for null, the
// way validation messages report missing amounts.
func FormatMoneyOrNone(d decimal.NullDecimal) string {
	if !d.Valid {
		return "None"
	}
	return d.Decimal.StringFixed(2)
}
