package tool

import (
	"errors"
	"strings"

	"paybot-mcp/internal/domain"
)

// retrySuffix is appended to error results the host may usefully retry.
const retrySuffix = " (transient error, may succeed on retry)"

// retryablePatterns are substrings in error messages that indicate transient
// failures for errors that carry no sentinel. Checked case-insensitively.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
}

// classifyToolError returns true if the error is transient and the tool call
// may succeed on retry. Returns false for nil, permanent, or unknown errors.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}

	var fe *domain.FacilitatorError
	if errors.As(err, &fe) {
		// Tagged errors are authoritative; don't second-guess them by text.
		return domain.IsRetryableError(err)
	}
	if domain.IsRetryableError(err) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ResultFromError is the catch-all that turns an error escaping a tool into
// a tool-level error result. It never returns nil.
func ResultFromError(err error) *domain.ToolResult {
	if err == nil {
		return ErrResult("unknown error")
	}
	retryable := classifyToolError(err)
	content := err.Error()
	if retryable {
		content += retrySuffix
	}
	return &domain.ToolResult{IsError: true, IsRetryable: retryable, Content: content}
}
