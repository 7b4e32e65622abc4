package marketplace

import "net/http"

// ErrorKind classifies a marketplace failure. Every kind has a stable
// machine-readable code so clients can branch without parsing messages.
type ErrorKind string

const (
	KindNotFound             ErrorKind = "not_found"
	KindInvalidState         ErrorKind = "invalid_state"
	KindInvalidOperation     ErrorKind = "invalid_operation"
	KindInsufficientQuantity ErrorKind = "insufficient_quantity"
	KindForbidden            ErrorKind = "forbidden"
	KindInvalidArgument      ErrorKind = "invalid_argument"
	KindConflict             ErrorKind = "conflict"
)

// Error is a marketplace failure with a kind and a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

// HTTPStatus maps the error kind to the status code the API responds with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func notFound(msg string) *Error             { return &Error{Kind: KindNotFound, Message: msg} }
func invalidState(msg string) *Error         { return &Error{Kind: KindInvalidState, Message: msg} }
func invalidOperation(msg string) *Error     { return &Error{Kind: KindInvalidOperation, Message: msg} }
func insufficientQuantity(msg string) *Error { return &Error{Kind: KindInsufficientQuantity, Message: msg} }
func forbidden(msg string) *Error            { return &Error{Kind: KindForbidden, Message: msg} }
func invalidArgument(msg string) *Error      { return &Error{Kind: KindInvalidArgument, Message: msg} }
func conflict(msg string) *Error             { return &Error{Kind: KindConflict, Message: msg} }

// Failures shared between the service and the stores.
var (
	ErrListingNotFound     = notFound("listing does not exist")
	ErrTransactionNotFound = notFound("transaction does not exist")
	ErrUserNotFound        = notFound("user does not exist")

	// ErrReservationConflict is returned when the conditional quantity
	// decrement matches no row: another transaction consumed the quantity
	// between the eligibility check and the update.
	ErrReservationConflict = conflict("listing quantity changed, please retry")
)
