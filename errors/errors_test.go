package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransient_WrapsOnce(t *testing.T) {
	req := require.New(t)

	err := Transient(context.DeadlineExceeded)
	req.True(IsTransient(err))
	req.Same(err, Transient(err))
	req.Nil(Transient(nil))
}

func TestHTTPStatus(t *testing.T) {
	req := require.New(t)

	req.Equal(http.StatusOK, HTTPStatus(nil))
	req.Equal(http.StatusServiceUnavailable, HTTPStatus(Transient(fmt.Errorf("dial tcp: refused"))))
	req.Equal(http.StatusNotFound, HTTPStatus(fmt.Errorf("get abc: %w", ErrSessionNotFound)))
	req.Equal(http.StatusConflict, HTTPStatus(ErrSessionEnded))
	req.Equal(http.StatusForbidden, HTTPStatus(ErrNotHost))
	req.Equal(http.StatusBadRequest, HTTPStatus(ErrInvalidDelta))
	req.Equal(http.StatusInternalServerError, HTTPStatus(fmt.Errorf("boom")))
}

func TestFromHTTPStatus_RoundTrips(t *testing.T) {
	req := require.New(t)

	for _, err := range []error{ErrTransientTransport, ErrSessionNotFound, ErrSessionEnded, ErrNotHost, ErrInvalidInput} {
		req.ErrorIs(FromHTTPStatus(HTTPStatus(err)), err)
	}
	req.Nil(FromHTTPStatus(http.StatusTeapot))
}
