package llm

// FunctionName is the tool the model is forced to call.
const FunctionName = "extract_hcfa1500"

// BuildHCFAJSONSchema returns the JSON-Schema (draft 2020-12 subset) of HCFAFields as a generic map.
// We pass this to the model as the function parameters and also use it locally to validate.
func BuildHCFAJSONSchema() map[string]any {
	str := func() map[string]any { return map[string]any{"type": "string"} }
	object := func(props map[string]any, required ...string) map[string]any {
		m := map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           props,
		}
		if len(required) > 0 {
			m["required"] = required
		}
		return m
	}

	line := object(map[string]any{
		"date_of_service":   map[string]any{"type": "string", "description": "Box 24A date, as printed"},
		"place_of_service":  str(),
		"cpt_code":          map[string]any{"type": "string", "description": "Box 24D CPT/HCPCS code"},
		"modifiers":         map[string]any{"type": "array", "items": str()},
		"diagnosis_pointer": str(),
		"charge_amount":     decimalProp(),
		"units":             map[string]any{"type": "integer", "minimum": 0},
	})

	return object(map[string]any{
		"patient_info": object(map[string]any{
			"patient_name": str(),
			"patient_dob":  str(),
			"patient_zip":  str(),
		}),
		"billing_info": object(map[string]any{
			"billing_provider_name":    str(),
			"billing_provider_address": str(),
			"billing_provider_tin":     str(),
			"billing_provider_npi":     str(),
			"total_charge":             decimalProp(),
			"patient_account_no":       str(),
		}),
		"service_lines": map[string]any{"type": "array", "items": line},
	}, "patient_info", "billing_info", "service_lines")
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^\$?\s*-?[\d,]*\.?\d*$`,
	}
}
