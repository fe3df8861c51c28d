package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")

	// ErrTransientTransport means the store could not be reached or timed out.
	// Callers retry with backoff, it is never swallowed.
	ErrTransientTransport = fmt.Errorf("store temporarily unreachable")
	ErrTxAborted          = fmt.Errorf("transaction aborted")
	ErrStoreClosed        = fmt.Errorf("store is closed")
	ErrInvalidPath        = fmt.Errorf("invalid store path")

	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrSessionEnded    = fmt.Errorf("session has ended")
	ErrNotHost         = fmt.Errorf("only the host can perform this action")
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrInvalidDelta    = fmt.Errorf("delta must carry exactly one change")
)

// Transient wraps err so that IsTransient reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, ErrTransientTransport) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransientTransport, err)
}

func IsTransient(err error) bool {
	return stderrors.Is(err, ErrTransientTransport)
}

// HTTPStatus maps a core error to the status code returned by the HTTP layer.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrTransientTransport):
		return http.StatusServiceUnavailable
	case stderrors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrSessionEnded):
		return http.StatusConflict
	case stderrors.Is(err, ErrNotHost):
		return http.StatusForbidden
	case stderrors.Is(err, ErrInvalidInput), stderrors.Is(err, ErrInvalidDelta):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus is the client side of HTTPStatus: it maps a status code back
// to the core error it stands for, or nil when none applies.
func FromHTTPStatus(code int) error {
	switch code {
	case http.StatusServiceUnavailable:
		return ErrTransientTransport
	case http.StatusNotFound:
		return ErrSessionNotFound
	case http.StatusConflict:
		return ErrSessionEnded
	case http.StatusForbidden:
		return ErrNotHost
	case http.StatusBadRequest:
		return ErrInvalidInput
	default:
		return nil
	}
}
