package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/provider-bills/constants"
)

func TestParseFields_FillsMissingSections(t *testing.T) {
	res, err := ParseFields([]byte(`{"service_lines": null}`), "m", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Fields.ServiceLines)
	assert.Equal(t, "", res.Fields.PatientInfo.PatientName)
	assert.JSONEq(t, `{"patient_info":{},"billing_info":{},"service_lines":[]}`, string(res.Raw))
	assert.Equal(t, []string{"No service lines found"}, res.Warnings)
}

func TestParseFields_Malformed(t *testing.T) {
	tests := map[string]string{
		"truncated json":   `{"patient_info": {"patient_name": "Jo`,
		"not an object":    `[1,2,3]`,
		"non-money charge": `{"service_lines":[{"charge_amount":"twelve"}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFields([]byte(raw), "m", nil)
			require.Error(t, err)
			assert.Equal(t, CodeMalformedResponse, ErrorCode(err))
		})
	}
}

func TestParseFields_DropsBadUnits(t *testing.T) {
	res, err := ParseFields([]byte(`{"service_lines":[{"cpt_code":"73221","units":-1}]}`), "m", nil)
	require.NoError(t, err)
	require.Len(t, res.Fields.ServiceLines, 1)
	assert.Nil(t, res.Fields.ServiceLines[0].Units)
}

func TestBuildUserPrompt(t *testing.T) {
	first := BuildUserPrompt(Request{Pass: constants.FirstPass, PriorError: "ignored", Strategy: constants.StrategyStandard})
	assert.Equal(t, UserHint, first)

	second := BuildUserPrompt(Request{
		Pass:       constants.SecondPass,
		Strategy:   constants.StrategyZoneBased,
		ZoneMap:    "Form regions:",
		PriorError: "No line items found for ProviderBill x",
	})
	assert.Contains(t, second, "service lines region")
	assert.Contains(t, second, "Form regions:")
	assert.Contains(t, second, "\n\nPrevious extraction failed with: No line items found for ProviderBill x. Please pay extra attention")
}

func TestClassifyHTTP(t *testing.T) {
	ctx := context.Background()

	err := ClassifyHTTP(ctx, 0, nil, fmt.Errorf("dial: %w", context.DeadlineExceeded))
	assert.Equal(t, CodeTimeout, ErrorCode(err))
	assert.True(t, IsRetryable(err))

	err = ClassifyHTTP(ctx, 0, nil, errors.New("connection reset"))
	assert.Equal(t, CodeAPIError, ErrorCode(err))
	assert.True(t, IsRetryable(err))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = ClassifyHTTP(cancelled, 0, nil, context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))

	assert.NoError(t, ClassifyHTTP(ctx, 200, nil, nil))
}

func TestConfidence(t *testing.T) {
	f := HCFAFields{ServiceLines: []ServiceLine{
		{CPTCode: "G9500", DateOfService: "03/01/2024"},
		{CPTCode: "12345"},
		{},
		{CPTCode: "G9500", DateOfService: "03/02/2024"},
	}}
	assert.Equal(t, []float64{0.9, 0.6, 0, 0.9}, Confidence(f), "repeated codes keep one score per line")
	assert.Empty(t, Confidence(HCFAFields{}))
}
