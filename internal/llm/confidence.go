package llm

// CommonCPTCodes are the imaging and DME codes most often billed to us.
var CommonCPTCodes = map[string]struct{}{}

func init() {
	for _, c := range []string{
		"73221", "73721", "72148", "72141", "73218", "73718", "72146", "70551", "95886", "70450",
		"95910", "72110", "73700", "72195", "72100", "A9576", "73222", "73130", "74176", "73564",
		"73200", "73030", "72131", "72125", "72070", "71250", "G9500", "93971", "73562", "73040",
		"72050", "23350", "95911", "95887", "77080", "76882", "76870", "76376", "73590", "73580",
		"73223", "73080", "72197", "72158", "72072", "72040", "70544", "27369", "Q9967", "E1399",
		"E0731", "A9901", "A9573", "A4595", "99215", "99213", "95912", "93880", "77003", "76856",
		"75561", "73723", "73722", "73610", "73600", "73560", "73552", "73521", "73502", "73202",
		"73110", "72192", "72156", "72052", "71552", "71550", "70150",
	} {
		CommonCPTCodes[c] = struct{}{}
	}
}

// Confidence scores each service line by its CPT code: 0.9 for a common
// code, 0.6 for any other, 0 when the code is missing. The slice is aligned
// with ServiceLines.
func Confidence(f HCFAFields) []float64 {
	out := make([]float64, len(f.ServiceLines))
	for i, l := range f.ServiceLines {
		if l.CPTCode == "" {
			continue
		}
		out[i] = 0.6
		if _, ok := CommonCPTCodes[l.CPTCode]; ok {
			out[i] = 0.9
		}
	}
	return out
}

// Warnings flags results the validator will reject anyway.
func Warnings(f HCFAFields) []string {
	if len(f.ServiceLines) == 0 {
		return []string{"No service lines found"}
	}
	return nil
}
