package strategy

import (
	"strings"

	"github.com/joseph-ayodele/provider-bills/constants"
)

type rule struct {
	category constants.ErrorCategory
	match    func(msg string) bool
}

func anyOf(words ...string) func(string) bool {
	return func(msg string) bool {
		for _, w := range words {
			if strings.Contains(msg, w) {
				return true
			}
		}
		return false
	}
}

func allOf(preds ...func(string) bool) func(string) bool {
	return func(msg string) bool {
		for _, p := range preds {
			if !p(msg) {
				return false
			}
		}
		return true
	}
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{constants.CategoryNoServiceLines, anyOf("no service lines", "service lines")},
	{constants.CategoryInvalidCPT, anyOf("cpt", "invalid")},
	{constants.CategoryMissingPatientInfo, allOf(anyOf("patient"), anyOf("missing", "name"))},
	{constants.CategoryMissingBillingInfo, allOf(anyOf("billing"), anyOf("missing"))},
	{constants.CategoryTotalChargeMismatch, anyOf("total charge", "mismatch")},
	{constants.CategoryDateFormatError, anyOf("date")},
	{constants.CategoryImageQuality, anyOf("image", "quality")},
	{constants.CategoryAPIError, anyOf("api", "rate limit")},
}

// Classify buckets a bill's last_error by keyword. It is a heuristic: a
// message is filed under the first rule it mentions, not the one that
// caused the failure.
func Classify(lastError string) constants.ErrorCategory {
	msg := strings.ToLower(strings.TrimSpace(lastError))
	if msg == "" {
		return constants.CategoryUnknown
	}
	for _, r := range rules {
		if r.match(msg) {
			return r.category
		}
	}
	return constants.CategoryUnknown
}
