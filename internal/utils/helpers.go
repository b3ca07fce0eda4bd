package utils

import (
	"strings"
	"time"
)

// Date-of-service layouts, tried in order. The unpadded variants cover
// hand-written dates like 3/1/2024.
var dosLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	"2006/01/02",
	"01/02/06",
	"01-02-06",
	"20060102",
	"01022006",
	"010206",
	"1/2/2006",
	"1-2-2006",
	"1/2/06",
}

// Years outside this range are treated as misreads.
const (
	MinServiceYear = 2020
	MaxServiceYear = 2035
)

// NormalizeDate parses a free-form date of service. Ranges ("03/01/2024 - 03/05/2024")
// keep their first date and anything after the first space is ignored.
func NormalizeDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.Index(s, " - "); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	for _, layout := range dosLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		if t.Year() >= MinServiceYear && t.Year() <= MaxServiceYear {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatYMD renders a date the way dates are stored on orders.
func FormatYMD(t time.Time) string {
	return t.Format("2006-01-02")
}

func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	// strip time to midnight UTC to match DATE semantics
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// DaysApart is the absolute whole-day distance between two dates.
func DaysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}
