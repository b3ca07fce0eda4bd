package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

var (
	patientKeys = []string{"patient_name", "patient_dob", "patient_zip"}
	billingKeys = []string{
		"billing_provider_name", "billing_provider_address", "billing_provider_tin",
		"billing_provider_npi", "total_charge", "patient_account_no",
	}
	lineStringKeys = []string{"date_of_service", "place_of_service", "cpt_code", "diagnosis_pointer", "charge_amount"}
	moneyKeys      = map[string]bool{"total_charge": true, "charge_amount": true}
)

// NormalizeAndSanitizeJSON
// - Fills missing sections with empty values
// - Drops null/empty optionals and unknown keys
// - Coerces numbers to strings for text fields (money to two decimals)
// - Coerces units to integers and modifiers to a string array
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}
	if m == nil {
		return nil, nil, fmt.Errorf("sanitize: document is not an object")
	}

	var dropped []string
	section := func(name string, keys []string) {
		obj, _ := m[name].(map[string]any)
		if obj == nil {
			if m[name] != nil {
				dropped = append(dropped, name+"(type)")
			}
			obj = map[string]any{}
		}
		m[name] = sanitizeObject(obj, name, keys, &dropped)
	}
	section("patient_info", patientKeys)
	section("billing_info", billingKeys)

	var lines []any
	switch t := m["service_lines"].(type) {
	case []any:
		for i, v := range t {
			obj, ok := v.(map[string]any)
			if !ok {
				dropped = append(dropped, fmt.Sprintf("service_lines[%d](type)", i))
				continue
			}
			prefix := fmt.Sprintf("service_lines[%d]", i)
			modifiers := obj["modifiers"]
			units := obj["units"]
			out := sanitizeObject(obj, prefix, lineStringKeys, &dropped)
			if mods := coerceModifiers(modifiers); len(mods) > 0 {
				out["modifiers"] = mods
			}
			if u, ok := coerceUnits(units); ok {
				out["units"] = u
			} else if units != nil {
				dropped = append(dropped, prefix+".units")
			}
			lines = append(lines, out)
		}
	case nil:
	default:
		dropped = append(dropped, "service_lines(type)")
	}
	if lines == nil {
		lines = []any{}
	}

	out := map[string]any{
		"patient_info":  m["patient_info"],
		"billing_info":  m["billing_info"],
		"service_lines": lines,
	}
	for k := range m {
		if _, ok := out[k]; !ok {
			dropped = append(dropped, k+"(unknown)")
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return b, dropped, nil
}

// sanitizeObject keeps only keys, as trimmed non-empty strings.
func sanitizeObject(obj map[string]any, prefix string, keys []string, dropped *[]string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		s, ok := coerceString(v, moneyKeys[k])
		if !ok {
			*dropped = append(*dropped, prefix+"."+k)
			continue
		}
		if s != "" {
			out[k] = s
		}
	}
	return out
}

func coerceString(v any, money bool) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		s := strings.TrimSpace(t)
		if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") || strings.EqualFold(s, "n/a") {
			return "", true
		}
		return s, true
	case float64:
		if money {
			return strconv.FormatFloat(t, 'f', 2, 64), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return "", false
	default:
		return "", false
	}
}

func coerceModifiers(v any) []string {
	var out []string
	add := func(s string) {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	switch t := v.(type) {
	case string:
		for _, f := range strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ' ' }) {
			add(f)
		}
	case []any:
		for _, e := range t {
			if s, ok := coerceString(e, false); ok {
				add(s)
			}
		}
	}
	return out
}

func coerceUnits(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t >= 0 && t == math.Trunc(t) {
			return int(t), true
		}
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f == math.Trunc(f) {
			return int(f), true
		}
	}
	return 0, false
}
