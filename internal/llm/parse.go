package llm

import (
	"encoding/json"
	"log/slog"
)

// ParseFields sanitizes and schema-validates raw function arguments and decodes
// them. Failures are MALFORMED_RESPONSE extraction errors.
func ParseFields(raw []byte, model string, logger *slog.Logger) (*Result, error) {
	cleaned, _, err := NormalizeAndSanitizeJSON(raw, logger)
	if err != nil {
		return nil, Malformed("arguments are not a JSON object", err)
	}
	if err := ValidateHCFA(cleaned); err != nil {
		return nil, Malformed("schema validation failed", err)
	}
	var f HCFAFields
	if err := json.Unmarshal(cleaned, &f); err != nil {
		return nil, Malformed("unmarshal fields", err)
	}
	return &Result{
		Fields:     f,
		Raw:        cleaned,
		Model:      model,
		Confidence: Confidence(f),
		Warnings:   Warnings(f),
	}, nil
}
