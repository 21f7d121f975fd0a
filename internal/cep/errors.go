package cep

// ErrorKind is the closed set of domain error tags. Validation kinds
// surface synchronously from range expansion; the lookup kinds are
// recorded on failed results.
type ErrorKind string

const (
	// Range validation.
	KindInvalidFormat ErrorKind = "INVALID_FORMAT"
	KindInvalidOrder  ErrorKind = "INVALID_ORDER"
	KindRangeTooLarge ErrorKind = "RANGE_TOO_LARGE"

	// Lookup outcomes.
	KindNotFound   ErrorKind = "CEP_NOT_FOUND"
	KindFetchError ErrorKind = "FETCH_ERROR"

	// Retry exhaustion, written by the worker when a message hits the
	// configured maximum receive count.
	KindMaxRetries ErrorKind = "MAX_RETRIES_EXCEEDED"
)

// Error is a tagged domain error. It is used both as a Go error for
// validation failures and as the failure descriptor stored on results.
type Error struct {
	Kind    ErrorKind `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewError builds a tagged error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}
