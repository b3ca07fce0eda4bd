package constants

// ErrorCategory is the coarse class of a bill's last_error, used to pick the
// second-pass extraction strategy.
type ErrorCategory string

const (
	CategoryNoServiceLines      ErrorCategory = "no_service_lines"
	CategoryInvalidCPT          ErrorCategory = "invalid_cpt"
	CategoryMissingPatientInfo  ErrorCategory = "missing_patient_info"
	CategoryMissingBillingInfo  ErrorCategory = "missing_billing_info"
	CategoryTotalChargeMismatch ErrorCategory = "total_charge_mismatch"
	CategoryDateFormatError     ErrorCategory = "date_format_error"
	CategoryImageQuality        ErrorCategory = "image_quality"
	CategoryAPIError            ErrorCategory = "api_error"
	CategoryUnknown             ErrorCategory = "unknown"
)
