// Package apperr classifies service errors so the HTTP layer can map them to
// status codes without knowing every domain sentinel.
package apperr

import (
	"errors"
	"net/http"
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindPermission
	KindQuotaExceeded
	KindNotFound
	KindConflict
	KindExternalService
	KindUnavailable
	KindRateLimited
)

var kindInfo = map[Kind]struct {
	status int
	code   string
}{
	KindInternal:        {http.StatusInternalServerError, "internal_error"},
	KindValidation:      {http.StatusBadRequest, "validation_error"},
	KindUnauthorized:    {http.StatusUnauthorized, "unauthorized"},
	KindPermission:      {http.StatusForbidden, "forbidden"},
	KindQuotaExceeded:   {http.StatusForbidden, "quota_exceeded"},
	KindNotFound:        {http.StatusNotFound, "not_found"},
	KindConflict:        {http.StatusConflict, "conflict"},
	KindExternalService: {http.StatusBadGateway, "external_service_error"},
	KindUnavailable:     {http.StatusServiceUnavailable, "service_unavailable"},
	KindRateLimited:     {http.StatusTooManyRequests, "throttled"},
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	if info, ok := kindInfo[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Code returns the machine-readable error code.
func (k Kind) Code() string {
	if info, ok := kindInfo[k]; ok {
		return info.code
	}
	return "internal_error"
}

// Error carries a kind and a message that is safe to show to clients.
// The wrapped error stays internal.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind and public message to err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and message, so package-level sentinels
// built with New still match after Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var ve ValidationError
	if errors.As(err, &ve) {
		return "Validation failed"
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "Internal server error"
}
