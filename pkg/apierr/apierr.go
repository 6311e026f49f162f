// Package apierr implements the gateway's error taxonomy: a small set of typed
// error codes mapped to HTTP status and a uniform {code,message} body.
package apierr

import "net/http"

// Code is one of the error kinds the HTTP surface can report.
type Code string

const (
	InvalidRequest     Code = "INVALID_REQUEST"
	SessionNotFound    Code = "SESSION_NOT_FOUND"
	CredentialNotFound Code = "CREDENTIAL_NOT_FOUND"
	SFTPError          Code = "SFTP_ERROR"
	AccessDenied       Code = "ACCESS_DENIED"
	Internal           Code = "INTERNAL_ERROR"
)

// Error is the typed error every handler returns instead of a bare error,
// so the surface can map it to the right status without re-classifying
// strings.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Status maps a code to its HTTP status.
func (e *Error) Status() int {
	switch e.Code {
	case InvalidRequest:
		return http.StatusBadRequest
	case SessionNotFound, CredentialNotFound:
		return http.StatusNotFound
	case SFTPError:
		return http.StatusInternalServerError
	case AccessDenied:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON shape sent to clients: {code, message}.
type Body struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Body() Body {
	return Body{Code: e.Code, Message: e.Message}
}

// Wrap classifies a generic error as an internal failure unless it is
// already an *Error.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Code: Internal, Message: err.Error()}
}
