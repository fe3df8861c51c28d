package server

import (
	"board-lab/domain"
	"board-lab/domain/event"
	"board-lab/mention"
	"board-lab/moderation"
	"board-lab/observability"
	"board-lab/repositories"
	"board-lab/runtime"
	"board-lab/runtime/workers"
	"board-lab/search"
	"board-lab/services"
	"board-lab/store/memstore"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	st := memstore.New(log)

	cfg := runtime.DefaultHubConfig()
	cfg.ResampleInterval = 20 * time.Millisecond
	supervisor := workers.NewSupervisor(log)
	hub := runtime.NewHub(log, st, supervisor, cfg)

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	index := search.NewChatIndex(blugeWriter, log)
	moderator, err := moderation.NewModerator(nil, '*', log)
	require.NoError(t, err)
	resolver := mention.NewNameResolver()
	monitoring := observability.NewMonitoringManager(log)

	dispatcher := services.NewNotificationDispatcher(log, st, repositories.NewNotificationRepository(st, log),
		resolver, hub, runtime.Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond})
	fanout := workers.NewEventFanout(log, make(chan event.DomainEvent, 64), time.Second, index, monitoring)

	svc := Services{
		Registry:      services.NewSessionRegistry(log, st, fanout),
		Canvas:        services.NewCanvasReplicator(log, st, hub),
		Presence:      services.NewPresenceTracker(log, st, hub),
		Chat:          services.NewChatChannel(log, st, resolver, moderator, dispatcher, index, fanout, hub),
		Notifications: dispatcher,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		supervisor.Add(hub, fanout).Run(ctx)
		close(done)
	}()

	ts := httptest.NewServer(NewServer(log, svc, monitoring, time.Second).Router())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		_ = st.Close()
		_ = blugeWriter.Close()
	})
	return ts
}

// call performs a request without asserting, so it can run inside Eventually.
func call(ts *httptest.Server, method, path, uid string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	r, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if uid != "" {
		r.Header.Set(userHeader, uid)
	}
	resp, err := ts.Client().Do(r)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}

func mustCall(t *testing.T, ts *httptest.Server, method, path, uid string, body any, want int, out any) {
	t.Helper()
	status, raw, err := call(ts, method, path, uid, body)
	require.NoError(t, err)
	require.Equal(t, want, status, string(raw))
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out))
	}
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func read[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var v T
	require.NoError(t, wsjson.Read(ctx, conn, &v))
	return v
}

func TestServer_JoinAndGet(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	// Given alice created the session and bob joined it
	var first domain.Session
	mustCall(t, ts, http.MethodPut, "/sessions/s1/participants/u-alice", "", joinRequest{DisplayName: "Alice"}, http.StatusOK, &first)
	mustCall(t, ts, http.MethodPut, "/sessions/s1/participants/u-bob", "", joinRequest{DisplayName: "Bob"}, http.StatusOK, nil)

	// When the session is read back
	var session domain.Session
	mustCall(t, ts, http.MethodGet, "/sessions/s1", "", nil, http.StatusOK, &session)

	// Then alice is the host and both are listed
	req.Equal("u-alice", first.HostID)
	req.Equal("u-alice", session.HostID)
	req.Len(session.Participants, 2)
	req.True(session.Participants["u-alice"].IsHost)
	req.False(session.Participants["u-bob"].IsHost)

	// And the roster lists both as active
	var roster []domain.RosterEntry
	mustCall(t, ts, http.MethodGet, "/sessions/s1/roster", "", nil, http.StatusOK, &roster)
	req.Len(roster, 2)
}

func TestServer_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	mustCall(t, ts, http.MethodPut, "/sessions/s1/participants/u-alice", "", joinRequest{DisplayName: "Alice"}, http.StatusOK, nil)
	mustCall(t, ts, http.MethodPut, "/sessions/s1/participants/u-bob", "", joinRequest{DisplayName: "Bob"}, http.StatusOK, nil)

	tests := []struct {
		name   string
		method string
		path   string
		uid    string
		body   any
		want   int
	}{
		{name: "unknown session", method: http.MethodGet, path: "/sessions/nope", want: http.StatusNotFound},
		{name: "missing display name", method: http.MethodPut, path: "/sessions/s1/participants/u-carol", body: joinRequest{}, want: http.StatusBadRequest},
		{name: "end by guest", method: http.MethodPost, path: "/sessions/s1/end", uid: "u-bob", want: http.StatusForbidden},
		{name: "end without identity", method: http.MethodPost, path: "/sessions/s1/end", want: http.StatusBadRequest},
		{name: "heartbeat without identity", method: http.MethodPost, path: "/sessions/s1/heartbeat", want: http.StatusBadRequest},
		{name: "delta without change", method: http.MethodPost, path: "/sessions/s1/canvas", uid: "u-alice", body: domain.CanvasDelta{}, want: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "/sessions/s1/chat/search?q=x&limit=many", want: http.StatusBadRequest},
		{name: "unknown stream", method: http.MethodGet, path: "/sessions/s1/ws?stream=video", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw, err := call(ts, tt.method, tt.path, tt.uid, tt.body)
			require.NoError(t, err)
			require.Equal(t, tt.want, status, string(raw))
			var body errorResponse
			require.NoError(t, json.Unmarshal(raw, &body))
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_CanvasOverWebSocket(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	mustCall(t, ts, http.MethodPut, "/sessions/s1/participants/u-alice", "", joinRequest{DisplayName: "Alice"}, http.StatusOK, nil)

	// Given a canvas stream
	conn := dial(t, ts, "/sessions/s1/ws?stream=canvas")
	initial := read[domain.CanvasEvent](t, conn)
	req.NotNil(initial.Snapshot)
	req.Zero(initial.Snapshot.Len())
	req.Equal(domain.DefaultSettings(), initial.Snapshot.Settings)

	// When alice draws a stroke
	stroke := domain.Stroke{Points: []domain.Point{{X: 1, Y: 2}}, Color: "#ff0000", Width: 3}
	var resp deltaResponse
	mustCall(t, ts, http.MethodPost, "/sessions/s1/canvas", "u-alice", domain.CanvasDelta{AppendStroke: &stroke}, http.StatusOK, &resp)

	// Then the stream delivers only that stroke, authored by the caller
	delta := read[domain.CanvasEvent](t, conn)
	req.Nil(delta.Snapshot)
	req.NotNil(delta.Stroke)
	req.Equal(resp.ID, delta.Stroke.ID)
	req.Equal("u-alice", delta.Stroke.AuthorID)
}

func TestServer_ChatMentionsReachTheQueue(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	mustCall(t, ts, http.MethodPut, "/sessions/s1/participants/u-alice", "", joinRequest{DisplayName: "Alice"}, http.StatusOK, nil)
	mustCall(t, ts, http.MethodPut, "/sessions/s1/participants/u-bob", "", joinRequest{DisplayName: "Bob"}, http.StatusOK, nil)

	// When alice mentions bob
	var appended appendResponse
	draft := domain.ChatDraft{SenderName: "Alice", Content: "@bob look at the diagram"}
	mustCall(t, ts, http.MethodPost, "/sessions/s1/chat", "u-alice", draft, http.StatusCreated, &appended)
	req.NotZero(appended.Sequence)

	// Then bob gets exactly one pending notification
	var queue []domain.Notification
	req.Eventually(func() bool {
		status, raw, err := call(ts, http.MethodGet, "/sessions/s1/notifications", "u-bob", nil)
		if err != nil || status != http.StatusOK {
			return false
		}
		return json.Unmarshal(raw, &queue) == nil && len(queue) == 1
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal("u-alice", queue[0].SenderID)
	req.Equal(appended.Sequence, queue[0].MessageSeq)

	// And the history shows the message once
	var history []domain.ChatMessage
	mustCall(t, ts, http.MethodGet, "/sessions/s1/chat", "", nil, http.StatusOK, &history)
	req.Len(history, 1)

	// When bob acks everything and clears
	mustCall(t, ts, http.MethodPost, "/sessions/s1/notifications/ack", "u-bob", nil, http.StatusNoContent, nil)
	mustCall(t, ts, http.MethodDelete, "/sessions/s1/notifications", "u-bob", nil, http.StatusNoContent, nil)

	// Then the queue is empty
	mustCall(t, ts, http.MethodGet, "/sessions/s1/notifications", "u-bob", nil, http.StatusOK, &queue)
	req.Empty(queue)
}

func TestServer_EndClosesStreams(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	mustCall(t, ts, http.MethodPut, "/sessions/s1/participants/u-alice", "", joinRequest{DisplayName: "Alice"}, http.StatusOK, nil)

	// Given a roster stream that already got its first roster
	conn := dial(t, ts, "/sessions/s1/ws?stream=roster")
	roster := read[[]domain.RosterEntry](t, conn)
	req.Len(roster, 1)

	// When the host ends the session
	mustCall(t, ts, http.MethodPost, "/sessions/s1/end", "u-alice", nil, http.StatusNoContent, nil)

	// Then the stream is closed normally
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var err error
	for err == nil {
		var ignored []domain.RosterEntry
		err = wsjson.Read(ctx, conn, &ignored)
	}
	req.Equal(websocket.StatusNormalClosure, websocket.CloseStatus(err))

	// And writes are refused
	status, _, err := call(ts, http.MethodPost, "/sessions/s1/chat", "u-alice", domain.ChatDraft{SenderName: "Alice", Content: "late"})
	req.NoError(err)
	req.Equal(http.StatusConflict, status)
}

func TestServer_HealthAndStats(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	status, _, err := call(ts, http.MethodGet, "/healthz", "", nil)
	req.NoError(err)
	req.Equal(http.StatusOK, status)

	var stats observability.MonitoringStats
	mustCall(t, ts, http.MethodGet, "/debug/stats", "", nil, http.StatusOK, &stats)
	req.GreaterOrEqual(stats.HTTPRequests, uint64(1))
	req.Positive(stats.NumGoroutine)
}
