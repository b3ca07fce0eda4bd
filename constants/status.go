package constants

// BillStatus is the lifecycle status stored on provider_bills.status.
type BillStatus string

// Stable values (store these exact strings in DB).
const (
	StatusScanned   BillStatus = "SCANNED"   // uploaded, not yet extracted
	StatusScraped   BillStatus = "SCRAPED"   // extracted, not yet validated
	StatusValid     BillStatus = "VALID"     // passed validation, waiting for mapping
	StatusInvalid   BillStatus = "INVALID"   // failed first-pass validation
	StatusInvalid2  BillStatus = "INVALID_2" // failed second-pass validation
	StatusMapped    BillStatus = "MAPPED"
	StatusUnmapped  BillStatus = "UNMAPPED"
	StatusDuplicate BillStatus = "DUPLICATE"
	StatusReviewed  BillStatus = "REVIEWED" // set by the review portal only
)

// BillAction is the next step an operator or worker should take for a bill.
type BillAction string

const (
	ActionNone         BillAction = ""
	ActionToValidate   BillAction = "to_validate"
	ActionAddLineItems BillAction = "add_line_items"
	ActionToMap        BillAction = "to_map"
	ActionToReview     BillAction = "to_review"
)

var allStatuses = []BillStatus{
	StatusScanned,
	StatusScraped,
	StatusValid,
	StatusInvalid,
	StatusInvalid2,
	StatusMapped,
	StatusUnmapped,
	StatusDuplicate,
	StatusReviewed,
}

var validPairs = map[BillStatus][]BillAction{
	StatusScanned:   {ActionNone},
	StatusScraped:   {ActionNone, ActionToValidate},
	StatusValid:     {ActionToMap},
	StatusInvalid:   {ActionToValidate, ActionAddLineItems},
	StatusInvalid2:  {ActionToValidate, ActionAddLineItems},
	StatusMapped:    {ActionToReview},
	StatusUnmapped:  {ActionToMap},
	StatusDuplicate: {ActionToReview},
	StatusReviewed:  {ActionNone},
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []BillStatus {
	out := make([]BillStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsValidPair reports whether a bill may rest in status s with action a.
func IsValidPair(s BillStatus, a BillAction) bool {
	for _, allowed := range validPairs[s] {
		if allowed == a {
			return true
		}
	}
	return false
}

// ParseStatus maps a stored string to a known status.
func ParseStatus(s string) (BillStatus, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether automation stops at s. REVIEWED is set by people.
func IsTerminal(s BillStatus) bool {
	switch s {
	case StatusMapped, StatusUnmapped, StatusDuplicate, StatusInvalid2, StatusReviewed:
		return true
	}
	return false
}

// RunStatus is the canonical status for rows in extraction_runs.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusOK      RunStatus = "OK"
	RunStatusFailed  RunStatus = "FAILED"
)
