package domain

import (
	"errors"
	"fmt"
)

// ErrTimeout marks a facilitator call cut short by the per-request timeout.
var ErrTimeout = fmt.Errorf("operation timed out")

// Sentinel errors for the domain layer.
var (
	ErrToolNotFound  = fmt.Errorf("tool not found")
	ErrToolDuplicate = fmt.Errorf("tool already registered")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrDecryption    = fmt.Errorf("decryption failed")
	ErrEncryption    = fmt.Errorf("encryption operation failed")

	// Facilitator errors. A *FacilitatorError matches its kind's sentinel, or
	// for configuration errors the specific cause it was built with.
	ErrMissingAPIKey       = fmt.Errorf("facilitator api key missing")
	ErrInvalidWalletKey    = fmt.Errorf("wallet key invalid")
	ErrFacilitatorHTTP     = fmt.Errorf("facilitator http error")
	ErrFacilitatorProtocol = fmt.Errorf("facilitator protocol error")
	ErrFacilitatorDown     = fmt.Errorf("facilitator unreachable")
	ErrPaymentDeclined     = fmt.Errorf("payment declined")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
// Only server-side HTTP failures (5xx, 429) and unreachable facilitators qualify.
func IsRetryableError(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrFacilitatorDown) {
		return true
	}
	var fe *FacilitatorError
	if errors.As(err, &fe) && fe.Kind == KindHTTP {
		return fe.Status == 429 || fe.Status >= 500
	}
	return false
}

// ErrorCode is a machine-parseable error category for logs and tracing.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeToolDuplicate    ErrorCode = "TOOL_DUPLICATE"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeDecryption       ErrorCode = "DECRYPTION"
	CodeEncryption       ErrorCode = "ENCRYPTION"
	CodeMissingAPIKey    ErrorCode = "MISSING_API_KEY"
	CodeInvalidWalletKey ErrorCode = "INVALID_WALLET_KEY"
	CodeFacilitatorHTTP  ErrorCode = "FACILITATOR_HTTP"
	CodeFacilitatorProto ErrorCode = "FACILITATOR_PROTOCOL"
	CodeFacilitatorDown  ErrorCode = "FACILITATOR_UNREACHABLE"
	CodePaymentDeclined  ErrorCode = "PAYMENT_DECLINED"
)

// errorCodes pairs sentinels with their codes, most specific first. An error
// matching several sentinels gets the first code in this order.
var errorCodes = []struct {
	sentinel error
	code     ErrorCode
}{
	{ErrMissingAPIKey, CodeMissingAPIKey},
	{ErrInvalidWalletKey, CodeInvalidWalletKey},
	{ErrPaymentDeclined, CodePaymentDeclined},
	{ErrTimeout, CodeTimeout},
	{ErrFacilitatorHTTP, CodeFacilitatorHTTP},
	{ErrFacilitatorProtocol, CodeFacilitatorProto},
	{ErrFacilitatorDown, CodeFacilitatorDown},
	{ErrToolNotFound, CodeToolNotFound},
	{ErrToolDuplicate, CodeToolDuplicate},
	{ErrDecryption, CodeDecryption},
	{ErrEncryption, CodeEncryption},
	{ErrConfigLoad, CodeConfigLoad},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
