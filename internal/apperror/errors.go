// Package apperror defines the tagged error used across the service. Every
// failure carries a Kind, which fixes its wire code and HTTP status.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error
type Kind int

const (
	KindUnknown Kind = iota
	KindAccountNotFound
	KindTransactionNotFound
	KindRateLimitExceeded
	KindInsufficientBalance
	KindInvalidTransaction
	KindPersistence
	KindValidation
	KindMissingParameter
	KindUnsupportedMediaType
	KindMalformedJSON
	KindAuthGeneric
	KindAuthMissingHeader
	KindAuthTimestampExpired
	KindAuthInvalidTimestamp
	KindAuthSignatureInvalid
	KindAuthInternal
)

// GenericMessage is returned to callers in place of internal detail.
const GenericMessage = "Internal unexpected error. Check server logs for more details"

type kindInfo struct {
	name   string
	code   string
	status int
}

var kinds = map[Kind]kindInfo{
	KindUnknown:              {"UnknownError", "XXX_999", http.StatusInternalServerError},
	KindAccountNotFound:      {"AccountNotFound", "ACC_001", http.StatusNotFound},
	KindRateLimitExceeded:    {"RateLimitExceeded", "TXN_001", http.StatusTooManyRequests},
	KindInsufficientBalance:  {"InsufficientBalance", "TXN_002", http.StatusConflict},
	KindInvalidTransaction:   {"InvalidTransaction", "TXN_003", http.StatusBadRequest},
	KindPersistence:          {"PersistenceFailure", "TXN_004", http.StatusInternalServerError},
	KindTransactionNotFound:  {"TransactionNotFound", "TXN_005", http.StatusNotFound},
	KindValidation:           {"ValidationFailure", "VAL_002", http.StatusBadRequest},
	KindMissingParameter:     {"ValidationFailure", "VAL_004", http.StatusBadRequest},
	KindUnsupportedMediaType: {"ValidationFailure", "VAL_005", http.StatusUnsupportedMediaType},
	KindMalformedJSON:        {"ValidationFailure", "VAL_006", http.StatusBadRequest},
	KindAuthGeneric:          {"AuthGeneric", "AUTH_001", http.StatusUnauthorized},
	KindAuthMissingHeader:    {"AuthMissingHeader", "AUTH_002", http.StatusUnauthorized},
	KindAuthTimestampExpired: {"AuthTimestampExpired", "AUTH_003", http.StatusUnauthorized},
	KindAuthInvalidTimestamp: {"AuthInvalidTimestamp", "AUTH_004", http.StatusUnauthorized},
	KindAuthSignatureInvalid: {"AuthSignatureInvalid", "AUTH_005", http.StatusUnauthorized},
	KindAuthInternal:         {"InternalAuthError", "XXX_999", http.StatusInternalServerError},
}

func (k Kind) info() kindInfo {
	if i, ok := kinds[k]; ok {
		return i
	}
	return kinds[KindUnknown]
}

// String returns the taxonomy name of the kind
func (k Kind) String() string { return k.info().name }

// Code returns the wire error code
func (k Kind) Code() string { return k.info().code }

// HTTPStatus returns the HTTP status the kind is reported with
func (k Kind) HTTPStatus() int { return k.info().status }

// IsAuth reports whether the kind is an authentication rejection
func (k Kind) IsAuth() bool {
	return k >= KindAuthGeneric && k <= KindAuthInternal
}

// Internal reports whether details of the kind must be hidden from callers
func (k Kind) Internal() bool {
	return k == KindUnknown || k == KindAuthInternal
}

// Error is the single error type returned by the service layers
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind carrying cause for the logs
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// KindOf returns the kind of err, or KindUnknown for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PublicMessage returns the message that may be shown to a caller
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind.Internal() {
		return GenericMessage
	}
	return e.Message
}

// HTTPErrorCode renders a status the way the error body expects, e.g. "404 NOT_FOUND".
func HTTPErrorCode(status int) string {
	text := strings.ToUpper(http.StatusText(status))
	text = strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text)
	return fmt.Sprintf("%d %s", status, text)
}
