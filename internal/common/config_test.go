package common

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "bills.db")
	t.Setenv("STORAGE_ROOT", t.TempDir())

	cfg := LoadConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default sqlite config: %v", err)
	}

	cfg.Database.Driver = "mysql"
	cfg.Storage.Backend = "gcs"
	cfg.Matcher.Threshold = 1.5
	cfg.Pipeline.Workers = 0
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "CONFIG_ERROR" {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
	for _, field := range []string{"DB_DRIVER", "GCS_BUCKET", "MATCH_THRESHOLD", "PIPELINE_WORKERS"} {
		if !strings.Contains(appErr.Message, field) {
			t.Errorf("message %q does not mention %s", appErr.Message, field)
		}
	}
}

func TestConfigValidateLLM(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "vertex"}}
	if err := cfg.ValidateLLM(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("vertex without project: %v", err)
	}
	cfg.LLM.Project = "bills-prod"
	if err := cfg.ValidateLLM(); err != nil {
		t.Fatalf("vertex with project: %v", err)
	}
	cfg.LLM.Provider = "anthropic"
	if err := cfg.ValidateLLM(); err == nil {
		t.Fatal("unknown provider accepted")
	}
}

func TestValidatorRules(t *testing.T) {
	v := NewValidator().
		Field("name", "  ", Required).
		Field("format", "JSON", OneOf("text", "json")).
		Field("workers", 3, Positive).
		Field("ratio", 0.0, InRange(0, 1))
	if got := len(v.Errors()); got != 2 {
		t.Fatalf("errors = %d (%s), want 2", got, v.ErrorMessage())
	}
	if v.Errors()[0].Field != "name" || v.Errors()[1].Field != "ratio" {
		t.Errorf("unexpected failures: %s", v.ErrorMessage())
	}
	if NewValidator().AppError("X") != nil {
		t.Error("empty validator should not error")
	}
}
