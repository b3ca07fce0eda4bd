package llm

import (
	"strings"

	"github.com/joseph-ayodele/provider-bills/constants"
)

// SystemPrompt frames the model as a claim-form reader.
const SystemPrompt = "You are an expert medical billing AI specializing in extracting structured data from " +
	"CMS-1500 (HCFA-1500) medical claim forms. Call " + FunctionName + " exactly once with the fields you can read. " +
	"Copy values as printed; do not infer values that are not on the form. " +
	"Never output null. If a field is not present, omit it."

// UserHint is the base instruction sent with every page.
const UserHint = "Extract structured data from this medical claim form. " +
	"Read patient name, date of birth and ZIP from boxes 2, 3 and 5. " +
	"Read the billing provider name, address, TIN and NPI from boxes 25 and 33, the patient account number from box 26 " +
	"and the total charge from box 28. " +
	"Return every service line from box 24 with its date of service, place of service, CPT/HCPCS code, modifiers, " +
	"diagnosis pointer, charge and units. Skip blank rows."

var strategyHints = map[constants.Strategy]string{
	constants.StrategyEnhancedContrast: "The image was contrast enhanced. Check every CPT code is five characters and dates are complete.",
	constants.StrategyUltraEnhanced:    "The image was heavily enhanced. Re-add the service line charges and make sure they agree with the total in box 28.",
	constants.StrategyZoneBased:        "A second image shows the service lines region (box 24) enlarged; use it for the line items.",
}

// BuildUserPrompt composes the user text for req: the base hint, strategy
// guidance, the zone map, and on the second pass the previous error.
func BuildUserPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(UserHint)
	if h, ok := strategyHints[req.Strategy]; ok {
		b.WriteString("\n\n")
		b.WriteString(h)
	}
	if zm := strings.TrimSpace(req.ZoneMap); zm != "" {
		b.WriteString("\n\n")
		b.WriteString(zm)
	}
	if req.Pass == constants.SecondPass {
		if prior := strings.TrimSpace(req.PriorError); prior != "" {
			b.WriteString("\n\nPrevious extraction failed with: ")
			b.WriteString(prior)
			b.WriteString(". Please pay extra attention to these areas and ensure all required fields are extracted accurately.")
		}
	}
	return b.String()
}
