// Package client talks to a board-lab server over HTTP and WebSocket.
package client

import (
	"board-lab/domain"
	"board-lab/errors"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const userHeader = "X-User-ID"

// StatusError is a non-2xx reply. It unwraps to the core error matching
// the status code, so callers can use errors.Is against the core sentinels.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return errors.FromHTTPStatus(e.Code)
}

// Client acts as a single participant.
type Client struct {
	log     *slog.Logger
	baseURL string
	uid     string
	http    *http.Client
}

func New(log *slog.Logger, baseURL, uid string) *Client {
	return &Client{
		log:     log,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		uid:     uid,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) UID() string {
	return c.uid
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	r, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	r.Header.Set(userHeader, c.uid)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(r)
	if err != nil {
		return errors.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func sessionPath(sessionID string, parts ...string) string {
	return "/sessions/" + url.PathEscape(sessionID) + strings.Join(parts, "")
}

// Join creates the session if needed and joins it as the client's user.
func (c *Client) Join(ctx context.Context, sessionID, displayName, photoURL string) (domain.Session, error) {
	var session domain.Session
	body := map[string]string{"displayName": displayName, "photoURL": photoURL}
	err := c.do(ctx, http.MethodPut, sessionPath(sessionID, "/participants/", url.PathEscape(c.uid)), body, &session)
	return session, err
}

func (c *Client) Leave(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID, "/participants/", url.PathEscape(c.uid)), nil, nil)
}

func (c *Client) End(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "/end"), nil, nil)
}

func (c *Client) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	var session domain.Session
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID), nil, &session)
	return session, err
}

// Heartbeat never fails, a lost beat is caught up by the next one.
func (c *Client) Heartbeat(ctx context.Context, sessionID, uid string) {
	if uid != c.uid {
		c.log.Warn("Heartbeat for another participant ignored", "uid", uid)
		return
	}
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/heartbeat"), nil, nil); err != nil {
		c.log.Debug("Heartbeat lost", "session_id", sessionID, "error", err)
	}
}

func (c *Client) Roster(ctx context.Context, sessionID string) ([]domain.RosterEntry, error) {
	var roster []domain.RosterEntry
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/roster"), nil, &roster)
	return roster, err
}

func (c *Client) SubmitDelta(ctx context.Context, sessionID string, delta domain.CanvasDelta) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/canvas"), delta, &resp)
	return resp.ID, err
}

func (c *Client) Chat(ctx context.Context, sessionID, senderName, content string) (uint64, error) {
	var resp struct {
		Sequence uint64 `json:"sequence"`
	}
	draft := domain.ChatDraft{SenderID: c.uid, SenderName: senderName, Content: content, Timestamp: time.Now().UTC()}
	err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/chat"), draft, &resp)
	return resp.Sequence, err
}

func (c *Client) History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	var messages []domain.ChatMessage
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/chat"), nil, &messages)
	return messages, err
}

func (c *Client) Search(ctx context.Context, sessionID, query string, limit int) ([]domain.ChatHit, error) {
	q := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	var hits []domain.ChatHit
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/chat/search?", q.Encode()), nil, &hits)
	return hits, err
}

func (c *Client) Notifications(ctx context.Context, sessionID string) ([]domain.Notification, error) {
	var queue []domain.Notification
	err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/notifications"), nil, &queue)
	return queue, err
}

func (c *Client) Ack(ctx context.Context, sessionID, notificationID string) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "/notifications/", url.PathEscape(notificationID), "/ack"), nil, nil)
}

func (c *Client) AckAll(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, sessionPath(sessionID, "/notifications/ack"), nil, nil)
}

func (c *Client) ClearNotifications(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(sessionID, "/notifications"), nil, nil)
}

// Stream opens one of the server streams (canvas, roster, chat or
// notifications) and decodes every frame as T. The channel closes when the
// server ends the stream or ctx is done.
func Stream[T any](ctx context.Context, c *Client, sessionID, stream string) (<-chan T, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") +
		sessionPath(sessionID, "/ws?", url.Values{"stream": {stream}, "uid": {c.uid}}.Encode())
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return nil, &StatusError{Code: resp.StatusCode, Message: err.Error()}
		}
		return nil, errors.Transient(err)
	}

	out := make(chan T)
	go func() {
		defer close(out)
		defer func() { _ = conn.CloseNow() }()
		for {
			var v T
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				c.log.Debug("Stream closed",
					"session_id", sessionID,
					"stream", stream,
					"status", websocket.CloseStatus(err))
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
