package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies provider failures.
type ErrorType string

const (
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeModel       ErrorType = "model"
	ErrorTypeEndpoint    ErrorType = "endpoint"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a classified provider error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a classified error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// statusCodePattern only accepts a status code introduced by HTTP, status or
// code, so counts and ports in messages are not mistaken for one.
var statusCodePattern = regexp.MustCompile(`(?i)\b(?:http|status|code)[:\s]+([1-5]\d{2})\b`)

func extractStatusCode(s string) int {
	m := statusCodePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

// statusCodeOf prefers the status carried by typed client errors.
func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return reqErr.HTTPStatusCode
	}
	return extractStatusCode(err.Error())
}

// ClassifyError categorizes a provider error. An *Error is returned as is.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	status := statusCodeOf(err)
	classified := classify(err, status)
	classified.StatusCode = status
	return classified
}

func classify(err error, status int) *Error {
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeCancelled, "request cancelled", false, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeTimeout, "request deadline exceeded", false, err)
	}

	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "context canceled"):
		return NewError(ErrorTypeCancelled, "request cancelled", false, err)

	case status == 401 || status == 403 || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "permission denied"):
		return NewError(ErrorTypeAuth, "authentication failed", false, err)

	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return NewError(ErrorTypeModel, "model not found", false, err)

	case status == 404:
		return NewError(ErrorTypeEndpoint, "endpoint not found", false, err)

	case status == 429 || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") || strings.Contains(lower, "resource exhausted") ||
		strings.Contains(lower, "overloaded"):
		return NewError(ErrorTypeRateLimited, "rate limited", true, err)

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset"):
		return NewError(ErrorTypeEndpoint, "connection failed", true, err)

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return NewError(ErrorTypeTimeout, "request timeout", true, err)

	case status >= 500 || strings.Contains(lower, "unavailable"):
		return NewError(ErrorTypeEndpoint, "server error", true, err)

	default:
		return NewError(ErrorTypeUnknown, "llm error", false, err)
	}
}

// ClassifyModelError classifies err and records the model that produced it.
func ClassifyModelError(err error, model string) *Error {
	classified := ClassifyError(err)
	if classified != nil && classified.Model == "" {
		classified.Model = model
	}
	return classified
}

// IsRetryable reports whether err is a retryable provider error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
