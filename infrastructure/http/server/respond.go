package server

import (
	"board-lab/errors"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(r *http.Request, w http.ResponseWriter, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", errors.ErrInvalidInput, err)
	}
	return nil
}

// userID reads the caller identity. Browsers cannot set headers on a
// WebSocket handshake, so the uid query parameter is accepted as well.
func userID(r *http.Request) (string, error) {
	if uid := r.Header.Get(userHeader); uid != "" {
		return uid, nil
	}
	if uid := r.URL.Query().Get("uid"); uid != "" {
		return uid, nil
	}
	return "", fmt.Errorf("%w: missing %s header", errors.ErrInvalidInput, userHeader)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errors.ErrInvalidInput, key)
	}
	return n, nil
}
