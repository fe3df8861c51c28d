// Package server exposes the session layer over HTTP and WebSocket.
package server

import (
	"board-lab/observability"
	"board-lab/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	userHeader   = "X-User-ID"
	maxBodyBytes = 1 << 20
)

// Services groups the session layer components served over HTTP.
type Services struct {
	Registry      *services.SessionRegistry
	Canvas        *services.CanvasReplicator
	Presence      *services.PresenceTracker
	Chat          *services.ChatChannel
	Notifications *services.NotificationDispatcher
}

type Server struct {
	log          *slog.Logger
	svc          Services
	monitoring   *observability.MonitoringManager
	writeTimeout time.Duration
}

func NewServer(log *slog.Logger, svc Services, monitoring *observability.MonitoringManager, writeTimeout time.Duration) *Server {
	return &Server{
		log:          log,
		svc:          svc,
		monitoring:   monitoring,
		writeTimeout: writeTimeout,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Get("/debug/stats", s.stats)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Post("/end", s.endSession)
		r.Put("/participants/{uid}", s.join)
		r.Delete("/participants/{uid}", s.leave)

		r.Post("/heartbeat", s.heartbeat)
		r.Get("/roster", s.roster)

		r.Post("/canvas", s.submitDelta)

		r.Get("/chat", s.chatHistory)
		r.Post("/chat", s.appendChat)
		r.Get("/chat/search", s.searchChat)

		r.Get("/notifications", s.notificationQueue)
		r.Delete("/notifications", s.clearNotifications)
		r.Post("/notifications/ack", s.ackAllNotifications)
		r.Post("/notifications/{notificationID}/ack", s.ackNotification)

		r.Get("/ws", s.stream)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		s.monitoring.IncrHTTPRequests()

		next.ServeHTTP(ww, r)

		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitoring.GetLatest())
}
