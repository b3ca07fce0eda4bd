package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/llm"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func toolResponse(t *testing.T, args string) string {
	t.Helper()
	resp := map[string]any{
		"model": "gpt-4o-2024-08-06",
		"choices": []any{map[string]any{
			"finish_reason": "stop",
			"message": map[string]any{
				"tool_calls": []any{map[string]any{
					"type":     "function",
					"function": map[string]any{"name": "extract_hcfa1500", "arguments": args},
				}},
			},
		}},
	}
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(b)
}

func newTestClient(url string) *Client {
	return NewClient(Config{APIKey: "test-key", BaseURL: url, Timeout: 5 * time.Second}, quietLogger())
}

func TestExtract_ParsesFunctionCall(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		args := `{
			"patient_info": {"patient_name": "DOE, JANE", "patient_dob": "01/02/1980"},
			"billing_info": {"billing_provider_name": "Acme Imaging", "total_charge": 350, "billing_provider_npi": 1234567890},
			"service_lines": [
				{"cpt_code": "73221", "modifiers": "RT, 26", "units": "1", "charge_amount": "$150.00", "date_of_service": "03/01/24"},
				{"cpt_code": "99999", "charge_amount": 200, "units": null}
			],
			"notes": "extra"
		}`
		_, _ = io.WriteString(w, toolResponse(t, args))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Extract(context.Background(), llm.Request{
		BillID:      "b1",
		Pass:        constants.SecondPass,
		Strategy:    constants.StrategyZoneBased,
		Image:       []byte{0x89, 'P', 'N', 'G'},
		ZoneImage:   []byte{0x89, 'P', 'N', 'G'},
		PriorError:  "Missing Patient name",
		Temperature: 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-2024-08-06", res.Model)
	assert.Equal(t, "DOE, JANE", res.Fields.PatientInfo.PatientName)
	assert.Equal(t, "350.00", res.Fields.BillingInfo.TotalCharge)
	assert.Equal(t, "1234567890", res.Fields.BillingInfo.BillingProviderNPI)
	require.Len(t, res.Fields.ServiceLines, 2)
	assert.Equal(t, []string{"RT", "26"}, res.Fields.ServiceLines[0].Modifiers)
	require.NotNil(t, res.Fields.ServiceLines[0].Units)
	assert.Equal(t, 1, *res.Fields.ServiceLines[0].Units)
	assert.Nil(t, res.Fields.ServiceLines[1].Units)
	assert.Equal(t, "200.00", res.Fields.ServiceLines[1].ChargeAmount)
	assert.Equal(t, []float64{0.9, 0.6}, res.Confidence)
	assert.NotContains(t, string(res.Raw), "notes")

	assert.Equal(t, 0.1, got["temperature"])
	assert.EqualValues(t, 4000, got["max_tokens"])
	msgs := got["messages"].([]any)
	user := msgs[1].(map[string]any)["content"].([]any)
	assert.Len(t, user, 3, "text, page and zone crop")
	text := user[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, "Previous extraction failed with: Missing Patient name.")
}

func TestExtract_NoFunctionCallIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"I cannot read this form."}}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Extract(context.Background(), llm.Request{Pass: constants.FirstPass})
	require.Error(t, err)
	assert.Equal(t, llm.CodeMalformedResponse, llm.ErrorCode(err))
	assert.False(t, llm.IsRetryable(err))
	assert.Contains(t, err.Error(), "No function call in response")
}

func TestExtract_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		retryable bool
	}{
		{http.StatusTooManyRequests, llm.CodeRateLimited, true},
		{http.StatusBadGateway, llm.CodeAPIError, true},
		{http.StatusBadRequest, llm.CodeAPIError, false},
		{http.StatusGatewayTimeout, llm.CodeTimeout, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Extract(context.Background(), llm.Request{})
			require.Error(t, err)
			assert.Equal(t, tt.code, llm.ErrorCode(err))
			assert.Equal(t, tt.retryable, llm.IsRetryable(err))
		})
	}
}

func TestRetrying_RecoversFromRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, toolResponse(t, `{"patient_info":{},"billing_info":{},"service_lines":[]}`))
	}))
	defer srv.Close()

	ex := llm.NewRetrying(newTestClient(srv.URL), common.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}, quietLogger())
	res, err := ex.Extract(context.Background(), llm.Request{Pass: constants.FirstPass})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"No service lines found"}, res.Warnings)
}
