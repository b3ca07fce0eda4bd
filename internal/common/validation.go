package common

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError is one failed rule.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationRule checks one value; nil means it passed.
type ValidationRule func(field string, value any) *ValidationError

// Validator collects every failed rule instead of stopping at the first.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field applies rules to value.
func (v *Validator) Field(field string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(field, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorMessage joins every failure with "; ".
func (v *Validator) ErrorMessage() string {
	msgs := make([]string, len(v.errors))
	for i, err := range v.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// AppError returns nil when every rule passed, otherwise an AppError with
// code wrapping ErrInvalidInput.
func (v *Validator) AppError(code string) error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError(code, v.ErrorMessage(), ErrInvalidInput)
}

// Required rejects empty or blank strings.
func Required(field string, value any) *ValidationError {
	switch s := value.(type) {
	case nil:
		return &ValidationError{Field: field, Value: value, Message: "is required"}
	case string:
		if strings.TrimSpace(s) == "" {
			return &ValidationError{Field: field, Value: value, Message: "is required"}
		}
	}
	return nil
}

// OneOf accepts only the listed strings, case-insensitively.
func OneOf(allowed ...string) ValidationRule {
	return func(field string, value any) *ValidationError {
		s, _ := value.(string)
		if slices.ContainsFunc(allowed, func(a string) bool { return strings.EqualFold(a, s) }) {
			return nil
		}
		return &ValidationError{Field: field, Value: value, Message: "must be one of " + strings.Join(allowed, ", ")}
	}
}

// Positive rejects ints that are zero or negative.
func Positive(field string, value any) *ValidationError {
	if n, ok := value.(int); ok && n <= 0 {
		return &ValidationError{Field: field, Value: value, Message: "must be positive"}
	}
	return nil
}

// InRange accepts floats in (lo, hi].
func InRange(lo, hi float64) ValidationRule {
	return func(field string, value any) *ValidationError {
		f, ok := value.(float64)
		if ok && f > lo && f <= hi {
			return nil
		}
		return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be in (%g, %g]", lo, hi)}
	}
}
