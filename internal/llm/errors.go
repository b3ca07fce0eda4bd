package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error codes of ExtractionError.
const (
	CodeRateLimited       = "RATE_LIMITED"
	CodeAPIError          = "API_ERROR"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeTimeout           = "TIMEOUT"
)

// ExtractionError is the typed failure of an extraction call.
type ExtractionError struct {
	Code      string
	Message   string
	Status    int // HTTP status when there was one
	Retryable bool
	Cause     error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

func Malformed(msg string, cause error) *ExtractionError {
	return &ExtractionError{Code: CodeMalformedResponse, Message: msg, Cause: cause}
}

// IsRetryable reports whether err is an extraction error worth retrying.
func IsRetryable(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Retryable
}

// ErrorCode returns the code of an ExtractionError in err's chain, or "".
func ErrorCode(err error) string {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// ClassifyHTTP turns a transport error or non-2xx status into an ExtractionError.
// ctx is the caller's context, used to tell a deadline from a cancellation.
func ClassifyHTTP(ctx context.Context, status int, body []byte, err error) error {
	if err != nil && status == 0 {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return &ExtractionError{Code: CodeTimeout, Message: "request timed out", Retryable: true, Cause: err}
		}
		return &ExtractionError{Code: CodeAPIError, Message: "transport error", Retryable: true, Cause: err}
	}
	msg := fmt.Sprintf("status %d: %s", status, truncate(string(body), 300))
	switch {
	case status == http.StatusTooManyRequests:
		return &ExtractionError{Code: CodeRateLimited, Message: msg, Status: status, Retryable: true}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &ExtractionError{Code: CodeTimeout, Message: msg, Status: status, Retryable: true}
	case status >= 500:
		return &ExtractionError{Code: CodeAPIError, Message: msg, Status: status, Retryable: true}
	case status/100 != 2:
		return &ExtractionError{Code: CodeAPIError, Message: msg, Status: status}
	}
	return err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
