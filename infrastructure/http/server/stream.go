package server

import (
	"board-lab/errors"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// open subscribes to the requested stream and returns a function pumping it
// into an accepted connection. Subscribing happens before the upgrade so
// failures still get a plain HTTP status.
func (s *Server) open(ctx context.Context, r *http.Request) (func(*websocket.Conn) error, error) {
	sid := sessionID(r)
	switch stream := r.URL.Query().Get("stream"); stream {
	case "canvas":
		in, err := s.svc.Canvas.Watch(ctx, sid)
		if err != nil {
			return nil, err
		}
		return func(c *websocket.Conn) error { return pump(ctx, c, in, s.writeTimeout) }, nil
	case "roster":
		in, err := s.svc.Presence.WatchRoster(ctx, sid)
		if err != nil {
			return nil, err
		}
		return func(c *websocket.Conn) error { return pump(ctx, c, in, s.writeTimeout) }, nil
	case "chat":
		in, err := s.svc.Chat.Read(ctx, sid)
		if err != nil {
			return nil, err
		}
		return func(c *websocket.Conn) error { return pump(ctx, c, in, s.writeTimeout) }, nil
	case "notifications":
		uid, err := userID(r)
		if err != nil {
			return nil, err
		}
		in, err := s.svc.Notifications.WatchQueue(ctx, sid, uid)
		if err != nil {
			return nil, err
		}
		return func(c *websocket.Conn) error { return pump(ctx, c, in, s.writeTimeout) }, nil
	default:
		return nil, fmt.Errorf("%w: unknown stream %q", errors.ErrInvalidInput, stream)
	}
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	run, err := s.open(ctx, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Error("Failed to accept WebSocket", "session_id", sessionID(r), "error", err)
		return
	}
	defer s.monitoring.StreamOpened()()

	// Streams are one-way: reading only serves to notice the client going away.
	readCtx := conn.CloseRead(ctx)
	go func() {
		<-readCtx.Done()
		cancel()
	}()

	if err = run(conn); err != nil {
		s.log.Debug("Stream stopped",
			"session_id", sessionID(r),
			"stream", r.URL.Query().Get("stream"),
			"error", err)
		_ = conn.Close(websocket.StatusGoingAway, "stream stopped")
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session ended")
}

// pump forwards every value until the source closes, which happens when the
// session ends, or until ctx is done.
func pump[T any](ctx context.Context, conn *websocket.Conn, in <-chan T, writeTimeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-in:
			if !ok {
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, v)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
