// Package validation decides where an extracted bill goes next from the
// consistency of its header and line items.
package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/utils"
)

// CPTLength is the length of a well-formed procedure code.
const CPTLength = 5

var (
	FirstPassTolerance  = decimal.RequireFromString("0.01")
	SecondPassTolerance = decimal.RequireFromString("10.00")
)

// Outcome is the next status/action of a bill and the errors behind it.
type Outcome struct {
	Status  constants.BillStatus
	Action  constants.BillAction
	Errors  []string
	Message string // Errors joined by "; "
}

// Valid reports whether the bill passed every check.
func (o Outcome) Valid() bool {
	return len(o.Errors) == 0
}

// Apply copies the outcome onto b. last_error is cleared on success.
func (o Outcome) Apply(b *entity.Bill) {
	b.Status = o.Status
	b.Action = o.Action
	if o.Valid() {
		b.LastError = nil
		return
	}
	msg := o.Message
	b.LastError = &msg
}

// Tolerance returns the allowed gap between the total and the line sum for pass.
func Tolerance(pass constants.Pass) decimal.Decimal {
	if pass == constants.SecondPass {
		return SecondPassTolerance
	}
	return FirstPassTolerance
}

// Validate runs the bill checks in order and accumulates every failure.
func Validate(b *entity.Bill, items []entity.LineItem, pass constants.Pass) Outcome {
	failed := constants.StatusInvalid
	if pass == constants.SecondPass {
		failed = constants.StatusInvalid2
	}

	if len(items) == 0 {
		msg := fmt.Sprintf("No line items found for ProviderBill %s", b.ID)
		return Outcome{Status: failed, Action: constants.ActionAddLineItems, Errors: []string{msg}, Message: msg}
	}

	var errs []string
	if strings.TrimSpace(b.PatientName) == "" {
		errs = append(errs, "Missing Patient name")
	}
	if !b.TotalCharge.Valid {
		errs = append(errs, "Missing Total charge")
	}

	for _, it := range items {
		if len(it.CPTCode) != CPTLength {
			errs = append(errs, fmt.Sprintf("Invalid CPT code format: %s", it.CPTCode))
		}
		if !it.ChargeAmount.Valid || !it.ChargeAmount.Decimal.IsPositive() {
			errs = append(errs, fmt.Sprintf("Invalid charge amount: %s", entity.FormatMoneyOrNone(it.ChargeAmount)))
		}
		if raw := strings.TrimSpace(it.DateOfService); raw != "" {
			if _, ok := utils.NormalizeDate(raw); !ok {
				errs = append(errs, fmt.Sprintf("Date of service error: invalid date format '%s'", it.DateOfService))
			}
		}
	}

	errs = append(errs, totalErrors(b.TotalCharge, entity.SumCharges(items), Tolerance(pass))...)

	if len(errs) == 0 {
		return Outcome{Status: constants.StatusValid, Action: constants.ActionToMap}
	}
	return Outcome{Status: failed, Action: constants.ActionToValidate, Errors: errs, Message: strings.Join(errs, "; ")}
}

// totalErrors keeps missing, zero and mismatched totals apart.
func totalErrors(total decimal.NullDecimal, sum, tol decimal.Decimal) []string {
	hasSum := sum.IsPositive()
	switch {
	case !total.Valid:
		if hasSum {
			return []string{"Line item charges exist but no total charge found"}
		}
	case total.Decimal.IsZero():
		if hasSum {
			return []string{fmt.Sprintf("Total charge is $0.00 but line items sum to $%s", amount(sum))}
		}
	case total.Decimal.IsPositive():
		if !hasSum {
			return []string{"Total charge exists but no line item charges found"}
		}
		if sum.Sub(total.Decimal).Abs().GreaterThan(tol) {
			return []string{fmt.Sprintf("Total charge mismatch: %s vs %s", amount(total.Decimal), amount(sum))}
		}
	}
	return nil
}

// amount prints at least two decimals without hiding extra precision.
func amount(d decimal.Decimal) string {
	if d.Exponent() < -2 {
		return d.String()
	}
	return d.StringFixed(2)
}
