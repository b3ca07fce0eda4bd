package openai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/joseph-ayodele/provider-bills/internal/llm"
)

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function functionCall `json:"function"`
			} `json:"tool_calls"`
			FunctionCall *functionCall `json:"function_call"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Extract implements llm.Extractor with vision chat/completions and a forced
// function call whose parameters are the HCFA schema.
func (c *Client) Extract(ctx context.Context, req llm.Request) (*llm.Result, error) {
	start := time.Now()
	log := c.log.With("bill_id", req.BillID, "pass", req.Pass, "strategy", req.Strategy)

	log.Info("llm.extract.start",
		"model", c.cfg.Model,
		"image_bytes", len(req.Image),
		"zone_image", len(req.ZoneImage) > 0,
	)

	content := []map[string]any{
		{"type": "text", "text": llm.BuildUserPrompt(req)},
		{"type": "image_url", "image_url": map[string]any{"url": llm.PNGDataURL(req.Image)}},
	}
	if len(req.ZoneImage) > 0 {
		content = append(content, map[string]any{
			"type": "image_url", "image_url": map[string]any{"url": llm.PNGDataURL(req.ZoneImage)},
		})
	}

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": req.Temperature,
		"max_tokens":  c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt},
			{"role": "user", "content": content},
		},
		"tools": []map[string]any{{
			"type": "function",
			"function": map[string]any{
				"name":        llm.FunctionName,
				"description": "Record the fields read from a CMS-1500 claim form.",
				"parameters":  llm.BuildHCFAJSONSchema(),
			},
		}},
		"tool_choice": map[string]any{
			"type":     "function",
			"function": map[string]any{"name": llm.FunctionName},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.PostJSON(ctx, c.httpClient, endpoint, body, headers, c.log)
	if err != nil {
		log.Error("llm.extract.http_error",
			"code", llm.ErrorCode(err), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	args, model, err := functionArguments(raw)
	if err != nil {
		log.Error("llm.extract.decode_error", "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	if model == "" {
		model = c.cfg.Model
	}

	res, err := llm.ParseFields(args, model, c.log)
	if err != nil {
		log.Error("llm.extract.schema_validation_failed", "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	log.Info("llm.extract.ok",
		"model", model,
		"patient", res.Fields.PatientInfo.PatientName != "",
		"lines", len(res.Fields.ServiceLines),
		"total", res.Fields.BillingInfo.TotalCharge,
		"confidence", res.Confidence,
		"warnings", res.Warnings,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// functionArguments pulls the extract_hcfa1500 arguments out of a chat
// completion, accepting tool_calls and the legacy function_call shape.
func functionArguments(raw []byte) ([]byte, string, error) {
	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, "", llm.Malformed("decode openai response", err)
	}
	if len(cc.Choices) == 0 {
		return nil, cc.Model, llm.Malformed("no choices in openai response", nil)
	}
	msg := cc.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == llm.FunctionName {
			return []byte(tc.Function.Arguments), cc.Model, nil
		}
	}
	if msg.FunctionCall != nil && msg.FunctionCall.Name == llm.FunctionName {
		return []byte(msg.FunctionCall.Arguments), cc.Model, nil
	}
	return nil, cc.Model, llm.Malformed("No function call in response", nil)
}
