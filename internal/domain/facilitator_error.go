package domain

import (
	"fmt"
)

// ErrorKind tags a FacilitatorError with the failure class it belongs to.
type ErrorKind int

const (
	// KindConfiguration means the identity could not be derived (no API key,
	// malformed wallet key). Raised before any network call.
	KindConfiguration ErrorKind = iota + 1
	// KindHTTP means the facilitator answered with a non-2xx status.
	KindHTTP
	// KindProtocol means a 2xx body could not be understood.
	KindProtocol
	// KindTransport means the facilitator could not be reached at all.
	KindTransport
	// KindBusiness means the facilitator processed the request and reported a
	// structured failure (e.g. payment declined). Never raised as an error by
	// the client; tools construct it from a response value.
	KindBusiness
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindHTTP:
		return "http"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// sentinel returns the category sentinel matched by errors.Is for this kind.
func (k ErrorKind) sentinel() error {
	switch k {
	case KindHTTP:
		return ErrFacilitatorHTTP
	case KindProtocol:
		return ErrFacilitatorProtocol
	case KindTransport:
		return ErrFacilitatorDown
	case KindBusiness:
		return ErrPaymentDeclined
	default:
		return ErrConfigLoad
	}
}

// UnknownErrorBody is used when an error response body cannot be read.
const UnknownErrorBody = "Unknown error"

// FacilitatorError is the tagged error returned by the facilitator client and
// identity resolution. Exactly one Kind is set; Status and Body are only
// meaningful for KindHTTP.
type FacilitatorError struct {
	Kind    ErrorKind
	Op      string // e.g. "facilitator.pay"
	Status  int    // HTTP status (KindHTTP)
	Body    string // raw response text, best effort (KindHTTP)
	Message string // facilitator- or user-facing message
	Err     error  // underlying cause, may be nil
}

func (e *FacilitatorError) Error() string {
	switch e.Kind {
	case KindConfiguration:
		return e.Message
	case KindHTTP:
		return fmt.Sprintf("PayBot API error (%d): %s", e.Status, e.Body)
	case KindProtocol:
		return "PayBot API returned a malformed response: " + e.Message
	case KindTransport:
		return "PayBot API unreachable: " + e.Message
	case KindBusiness:
		return "Payment failed: " + e.Message
	default:
		return e.Message
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause, so callers
// can test errors.Is(err, ErrFacilitatorHTTP) as well as
// errors.Is(err, context.DeadlineExceeded). A configuration error built from
// a specific sentinel matches only that sentinel.
func (e *FacilitatorError) Unwrap() []error {
	if e.Kind == KindConfiguration && e.Err != nil {
		return []error{e.Err}
	}
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// NewConfigurationError reports an identity that cannot be derived.
func NewConfigurationError(sentinel error, message string) *FacilitatorError {
	return &FacilitatorError{Kind: KindConfiguration, Op: "config.resolve", Message: message, Err: sentinel}
}

// NewHTTPError reports a non-success response. message is the facilitator's
// own error text when one could be extracted from body.
func NewHTTPError(op string, status int, body, message string) *FacilitatorError {
	if message == "" {
		message = body
	}
	return &FacilitatorError{Kind: KindHTTP, Op: op, Status: status, Body: body, Message: message}
}

// NewProtocolError reports a success response that could not be decoded.
func NewProtocolError(op string, cause error) *FacilitatorError {
	return &FacilitatorError{Kind: KindProtocol, Op: op, Message: cause.Error(), Err: cause}
}

// NewTransportError reports a request that never produced a response.
func NewTransportError(op string, cause error) *FacilitatorError {
	return &FacilitatorError{Kind: KindTransport, Op: op, Message: cause.Error(), Err: cause}
}

// NewBusinessError reports a structured failure returned by the facilitator.
func NewBusinessError(op, message string) *FacilitatorError {
	return &FacilitatorError{Kind: KindBusiness, Op: op, Message: message}
}
