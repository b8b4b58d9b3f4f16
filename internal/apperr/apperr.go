// Package apperr defines the error kinds shared by the REST and realtime layers.
// Every error leaving a store or the hub wraps exactly one of the sentinels below,
// so callers classify failures with errors.Is instead of string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the credential is missing or invalid.
	ErrAuth = errors.New("auth error")
	// ErrNotFound means a room, listing or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid means a malformed payload: empty message, bad id format.
	ErrInvalid = errors.New("invalid")
	// ErrUnauthorized means the caller is authenticated but not allowed, e.g. not a room participant.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServer means a persistence or infrastructure failure.
	ErrServer = errors.New("server error")
)

func Auth(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuth, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// Server wraps an infrastructure error. Errors that already carry a kind are
// returned unchanged so a NotFound raised deep in a store is not downgraded.
func Server(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != ErrServer {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrServer, op, err)
}

// Kind returns the sentinel an error wraps. Unclassified errors are ErrServer.
func Kind(err error) error {
	for _, k := range []error{ErrAuth, ErrNotFound, ErrInvalid, ErrUnauthorized, ErrServer} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrServer
}

// Name is the wire name of the error kind used in JSON error bodies.
func Name(err error) string {
	switch Kind(err) {
	case ErrAuth:
		return "AuthError"
	case ErrNotFound:
		return "NotFound"
	case ErrInvalid:
		return "Invalid"
	case ErrUnauthorized:
		return "Unauthorized"
	default:
		return "ServerError"
	}
}

// HTTPStatus maps an error to the status code returned by REST handlers.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case ErrAuth:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalid:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// FromName rebuilds an error of the kind named in a JSON error body.
// Unknown names map to ErrServer.
func FromName(name, message string) error {
	kind := ErrServer
	switch name {
	case "AuthError":
		kind = ErrAuth
	case "NotFound":
		kind = ErrNotFound
	case "Invalid":
		kind = ErrInvalid
	case "Unauthorized":
		kind = ErrUnauthorized
	}
	return fmt.Errorf("%w: %s", kind, message)
}
