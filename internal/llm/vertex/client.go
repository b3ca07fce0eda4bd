// Package vertex extracts claim forms with Gemini on Vertex AI.
package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/provider-bills/internal/llm"
)

// Config for the Vertex client.
type Config struct {
	Project  string
	Location string
	Model    string // default gemini-1.5-pro
}

// Client implements llm.Extractor.
type Client struct {
	cfg    Config
	client *genai.Client
	log    *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, fmt.Errorf("vertex: project and location cannot be empty")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	if logger == nil {
		logger = slog.Default()
	}
	c, err := genai.NewClient(ctx, cfg.Project, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Client{cfg: cfg, client: c, log: logger}, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) model(temp float32) *genai.GenerativeModel {
	m := c.client.GenerativeModel(c.cfg.Model)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction())},
	}
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(temp),
		MaxOutputTokens:  genai.Ptr[int32](8192),
	}
	return m
}

// systemInstruction embeds the schema; Gemini has no forced function call here.
func systemInstruction() string {
	schema, _ := json.MarshalIndent(llm.BuildHCFAJSONSchema(), "", "  ")
	return llm.SystemPrompt + "\nRespond with a single JSON object that is the argument of " +
		llm.FunctionName + ", matching this JSON Schema:\n" + string(schema)
}

func (c *Client) Extract(ctx context.Context, req llm.Request) (*llm.Result, error) {
	start := time.Now()
	log := c.log.With("bill_id", req.BillID, "pass", req.Pass, "strategy", req.Strategy)
	log.Info("llm.extract.start", "model", c.cfg.Model, "image_bytes", len(req.Image))

	parts := []genai.Part{genai.ImageData("png", req.Image)}
	if len(req.ZoneImage) > 0 {
		parts = append(parts, genai.ImageData("png", req.ZoneImage))
	}
	parts = append(parts, genai.Text(llm.BuildUserPrompt(req)))

	resp, err := c.model(req.Temperature).GenerateContent(ctx, parts...)
	if err != nil {
		typed := classify(ctx, err)
		log.Error("llm.extract.api_error", "code", llm.ErrorCode(typed), "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, typed
	}

	raw, err := responseJSON(resp)
	if err != nil {
		log.Error("llm.extract.decode_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	res, err := llm.ParseFields(raw, c.cfg.Model, c.log)
	if err != nil {
		log.Error("llm.extract.schema_validation_failed", "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}
	log.Info("llm.extract.ok", "lines", len(res.Fields.ServiceLines), "confidence", res.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

// responseJSON concatenates the text parts of the first candidate and strips
// a code fence if the model added one.
func responseJSON(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, llm.Malformed("no candidates in vertex response", nil)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	s := strings.TrimSpace(b.String())
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, llm.Malformed("empty vertex response", nil)
	}
	return []byte(s), nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return llm.ClassifyHTTP(ctx, gerr.Code, []byte(gerr.Message), err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return &llm.ExtractionError{Code: llm.CodeRateLimited, Message: st.Message(), Retryable: true, Cause: err}
		case codes.DeadlineExceeded:
			return &llm.ExtractionError{Code: llm.CodeTimeout, Message: st.Message(), Retryable: true, Cause: err}
		case codes.Unavailable, codes.Internal, codes.Aborted:
			return &llm.ExtractionError{Code: llm.CodeAPIError, Message: st.Message(), Retryable: true, Cause: err}
		case codes.Unknown:
		default:
			return &llm.ExtractionError{Code: llm.CodeAPIError, Message: st.Message(), Cause: err}
		}
	}
	return llm.ClassifyHTTP(ctx, 0, nil, err)
}
