package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
)

// TestError_Error_WithEndpoint tests Error.Error() includes endpoint host only
func TestError_Error_WithEndpoint(t *testing.T) {
	err := &Error{
		Type:     ErrorTypeEndpoint,
		Message:  "connection failed",
		Endpoint: "https://api.openai.com/v1?key=secret",
	}

	result := err.Error()
	if !strings.Contains(result, "endpoint=api.openai.com") {
		t.Errorf("expected error message to contain 'endpoint=api.openai.com', got: %s", result)
	}
	if strings.Contains(result, "/v1") || strings.Contains(result, "secret") {
		t.Errorf("endpoint should be redacted to host only, got: %s", result)
	}
}

// TestNewErrorWithContext_ErrorMessage tests that all context fields are rendered
func TestNewErrorWithContext_ErrorMessage(t *testing.T) {
	err := NewErrorWithContext(
		ErrorTypeEndpoint,
		"server error",
		true,
		errors.New("underlying network issue"),
		"gpt-4o",
		"https://api.openai.com/v1",
		503,
	)

	result := err.Error()
	for _, want := range []string{"endpoint", "HTTP 503", "model=gpt-4o", "endpoint=api.openai.com", "server error", "underlying network issue"} {
		if !strings.Contains(result, want) {
			t.Errorf("expected error message to contain %q, got: %s", want, result)
		}
	}
	if !err.IsRetryable() {
		t.Error("expected error to be retryable")
	}
}

// TestError_Error_MinimalContext tests Error.Error() without optional fields
func TestError_Error_MinimalContext(t *testing.T) {
	err := &Error{
		Type:    ErrorTypeAuth,
		Message: "authentication failed",
	}

	expected := "auth authentication failed"
	if result := err.Error(); result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

// TestClassifyError_ExtractsStatusCode tests ClassifyError extracts status codes
func TestClassifyError_ExtractsStatusCode(t *testing.T) {
	tests := []struct {
		name               string
		inputError         error
		expectedStatusCode int
		expectedType       ErrorType
	}{
		{"503 service unavailable", errors.New("HTTP 503 Service Unavailable"), 503, ErrorTypeEndpoint},
		{"429 rate limit", errors.New("HTTP 429 Too Many Requests"), 429, ErrorTypeRateLimited},
		{"500 internal server error", errors.New("HTTP 500 Internal Server Error"), 500, ErrorTypeEndpoint},
		{"401 unauthorized", errors.New("HTTP 401 Unauthorized"), 401, ErrorTypeAuth},
		{"404 not found", errors.New("HTTP 404 Not Found"), 404, ErrorTypeEndpoint},
		{"overloaded", errors.New("status 529 overloaded_error: Overloaded"), 529, ErrorTypeEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyError(tt.inputError)
			if result.StatusCode != tt.expectedStatusCode {
				t.Errorf("expected status code %d, got %d", tt.expectedStatusCode, result.StatusCode)
			}
			if result.Type != tt.expectedType {
				t.Errorf("expected type %s, got %s", tt.expectedType, result.Type)
			}
		})
	}
}

// TestClassifyError_OpenAIAPIError tests that the go-openai status is used directly
func TestClassifyError_OpenAIAPIError(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 401, Message: "Incorrect API key provided"}
	result := ClassifyError(fmt.Errorf("create completion: %w", apiErr))

	if result.StatusCode != 401 {
		t.Errorf("expected status code 401, got %d", result.StatusCode)
	}
	if result.Type != ErrorTypeAuth {
		t.Errorf("expected type %s, got %s", ErrorTypeAuth, result.Type)
	}
}

// TestClassifyError_ModelNotFound tests model errors are not retryable
func TestClassifyError_ModelNotFound(t *testing.T) {
	result := ClassifyError(errors.New("The model `gpt-9` does not exist"))

	if result.Type != ErrorTypeModel {
		t.Errorf("expected type %s, got %s", ErrorTypeModel, result.Type)
	}
	if result.Retryable {
		t.Error("model errors should not be retryable")
	}
}

// TestClassifyError_NoStatusCode tests ClassifyError with errors that don't have status codes
func TestClassifyError_NoStatusCode(t *testing.T) {
	result := ClassifyError(errors.New("dial tcp: connection refused"))

	if result.StatusCode != 0 {
		t.Errorf("expected status code 0, got %d", result.StatusCode)
	}
	if result.Type != ErrorTypeEndpoint {
		t.Errorf("expected type %s, got %s", ErrorTypeEndpoint, result.Type)
	}
}

// TestClassifyError_DeadlineExceeded tests that context deadlines become timeouts
func TestClassifyError_DeadlineExceeded(t *testing.T) {
	result := ClassifyError(fmt.Errorf("post: %w", context.DeadlineExceeded))

	if result.Type != ErrorTypeTimeout {
		t.Errorf("expected type %s, got %s", ErrorTypeTimeout, result.Type)
	}
	if result.Message != "request timeout" {
		t.Errorf("expected message 'request timeout', got %s", result.Message)
	}
	if !errors.Is(result, context.DeadlineExceeded) {
		t.Error("expected classified error to wrap context.DeadlineExceeded")
	}
}

// TestClassifyError_ContextCanceledNotRetryable tests that context canceled errors are not retryable
func TestClassifyError_ContextCanceledNotRetryable(t *testing.T) {
	for _, err := range []error{errors.New("context canceled"), context.Canceled} {
		result := ClassifyError(err)

		if result.Retryable {
			t.Errorf("%v should NOT be retryable", err)
		}
		if result.Message != "request cancelled" {
			t.Errorf("expected message 'request cancelled', got %s", result.Message)
		}
	}
}

// TestClassifyError_PreservesExistingError tests that ClassifyError returns existing *Error unchanged
func TestClassifyError_PreservesExistingError(t *testing.T) {
	original := &Error{
		Type:       ErrorTypeEndpoint,
		Message:    "server error",
		Retryable:  true,
		StatusCode: 503,
	}

	if result := ClassifyError(fmt.Errorf("wrapped: %w", original)); result != original {
		t.Error("expected ClassifyError to return the same *Error instance")
	}
	if ClassifyError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

// TestExtractStatusCode_Precision tests that status code extraction avoids false positives
func TestExtractStatusCode_Precision(t *testing.T) {
	tests := []struct {
		name         string
		errStr       string
		expectedCode int
	}{
		{"HTTP prefix", "HTTP 503 Service Unavailable", 503},
		{"status prefix", "status 429 rate limited", 429},
		{"status colon", "status: 500", 500},
		{"code prefix", "code 502 bad gateway", 502},
		{"code colon", "code: 504 timeout", 504},
		{"no false positive - processed records", "processed 503 records", 0},
		{"no false positive - port number", "port 5432 connection failed", 0},
		{"no false positive - random number", "error after 429 seconds", 0},
		{"mixed case HTTP", "http 503 error", 503},
		{"case insensitive status", "Status: 404 Not Found", 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := extractStatusCode(tt.errStr); result != tt.expectedCode {
				t.Errorf("extractStatusCode(%q) = %d, expected %d", tt.errStr, result, tt.expectedCode)
			}
		})
	}
}

// TestClassifyError_RateLimitedType tests that rate limit errors get proper type
func TestClassifyError_RateLimitedType(t *testing.T) {
	for _, errStr := range []string{"HTTP 429 Too Many Requests", "rate limit exceeded", "too many requests"} {
		result := ClassifyError(errors.New(errStr))
		if result.Type != ErrorTypeRateLimited {
			t.Errorf("%q: expected type %s, got %s", errStr, ErrorTypeRateLimited, result.Type)
		}
		if !IsRetryable(result) {
			t.Errorf("%q: expected rate limit to be retryable", errStr)
		}
	}
}

// TestGetErrorType tests type extraction from arbitrary errors
func TestGetErrorType(t *testing.T) {
	if got := GetErrorType(NewError(ErrorTypeAuth, "authentication failed", false, nil)); got != ErrorTypeAuth {
		t.Errorf("expected %s, got %s", ErrorTypeAuth, got)
	}
	if got := GetErrorType(errors.New("plain")); got != ErrorTypeUnknown {
		t.Errorf("expected %s, got %s", ErrorTypeUnknown, got)
	}
}
