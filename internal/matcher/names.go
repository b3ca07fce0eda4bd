package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonNameChars = regexp.MustCompile(`[^a-z\s-]`)
	nameSuffixes = regexp.MustCompile(`\b(?:jr|sr|ii|iii|iv|v|phd|md|do)\b`)
	spaces       = regexp.MustCompile(`\s+`)
)

// CleanName lower-cases a person name, folds accents, and drops punctuation
// and generational or degree suffixes.
func CleanName(name string) string {
	if name == "" {
		return ""
	}
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	s := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(folded), ",", ""))
	s = nonNameChars.ReplaceAllString(s, "")
	s = nameSuffixes.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Ratio is the sequence-matcher similarity of a and b in [0, 1].
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(chars(a), chars(b))
	return m.Ratio()
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Similarity compares a bill patient name with an order's name parts in both
// "first last" and "last first" order and keeps the better score.
func Similarity(billName, first, last string) float64 {
	b := CleanName(billName)
	f, l := CleanName(first), CleanName(last)
	return max(Ratio(b, joinName(f, l)), Ratio(b, joinName(l, f)))
}

func joinName(a, b string) string {
	return strings.TrimSpace(a + " " + b)
}

// SplitName breaks a full name into first and last parts. "Last, First"
// is honoured; otherwise the first word is the first name.
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ','); i >= 0 {
		return strings.TrimSpace(full[i+1:]), strings.TrimSpace(full[:i])
	}
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
