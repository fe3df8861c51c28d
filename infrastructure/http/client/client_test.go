package client

import (
	"board-lab/domain"
	"board-lab/errors"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestClient_JoinSendsIdentity(t *testing.T) {
	req := require.New(t)

	// Given a server echoing the joined participant
	var gotUser, gotName string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /sessions/{id}/participants/{uid}", func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(userHeader)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotName = body["displayName"]
		_ = json.NewEncoder(w).Encode(domain.Session{SessionMeta: domain.SessionMeta{ID: r.PathValue("id"), HostID: r.PathValue("uid")}})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	// When alice joins
	c := New(logs.GetLoggerFromString("DEBUG"), ts.URL+"/", "u-alice")
	session, err := c.Join(context.Background(), "s1", "Alice", "")

	// Then the identity travels both in the path and the header
	req.NoError(err)
	req.Equal("s1", session.ID)
	req.Equal("u-alice", session.HostID)
	req.Equal("u-alice", gotUser)
	req.Equal("Alice", gotName)
}

func TestClient_StatusErrorsUnwrap(t *testing.T) {
	req := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/{id}/end", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"only the host can perform this action"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	err := New(logs.GetLoggerFromString("DEBUG"), ts.URL, "u-bob").End(context.Background(), "s1")

	var statusErr *StatusError
	req.True(stderrors.As(err, &statusErr))
	req.Equal(http.StatusForbidden, statusErr.Code)
	req.ErrorIs(err, errors.ErrNotHost)
}

func TestClient_HeartbeatSwallowsFailures(t *testing.T) {
	req := require.New(t)

	var beats atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/{id}/heartbeat", func(w http.ResponseWriter, _ *http.Request) {
		beats.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(logs.GetLoggerFromString("DEBUG"), ts.URL, "u-alice")
	c.Heartbeat(context.Background(), "s1", "u-alice")
	c.Heartbeat(context.Background(), "s1", "u-bob")

	req.Equal(int32(1), beats.Load())
}

func TestStream_DecodesUntilServerCloses(t *testing.T) {
	req := require.New(t)

	// Given a server sending two chat messages then ending the stream
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("stream") != "chat" || r.URL.Query().Get("uid") != "u-alice" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		for seq := uint64(1); seq <= 2; seq++ {
			_ = wsjson.Write(r.Context(), conn, domain.ChatMessage{Sequence: seq, Content: "hi"})
		}
		_ = conn.Close(websocket.StatusNormalClosure, "session ended")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c := New(logs.GetLoggerFromString("DEBUG"), ts.URL, "u-alice")

	// When the chat stream is read to the end
	messages, err := Stream[domain.ChatMessage](ctx, c, "s1", "chat")
	req.NoError(err)
	var got []uint64
	for m := range messages {
		got = append(got, m.Sequence)
	}

	// Then both messages arrived in order before the channel closed
	req.Equal([]uint64{1, 2}, got)
}

func TestStream_RejectedHandshake(t *testing.T) {
	req := require.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{id}/ws", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, err := Stream[domain.ChatMessage](context.Background(), New(logs.GetLoggerFromString("DEBUG"), ts.URL, "u-alice"), "nope", "chat")

	req.ErrorIs(err, errors.ErrSessionNotFound)
}
