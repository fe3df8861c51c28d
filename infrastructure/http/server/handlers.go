package server

import (
	"board-lab/domain"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const defaultSearchLimit = 20

type joinRequest struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

type deltaResponse struct {
	ID string `json:"id,omitempty"`
}

type appendResponse struct {
	Sequence uint64 `json:"sequence"`
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Registry.Get(r.Context(), sessionID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) join(w http.ResponseWriter, r *http.Request) {
	var body joinRequest
	if err := decode(r, w, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	user := domain.User{
		ID:          chi.URLParam(r, "uid"),
		DisplayName: body.DisplayName,
		PhotoURL:    body.PhotoURL,
	}
	session, err := s.svc.Registry.CreateOrJoin(r.Context(), sessionID(r), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) leave(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Registry.Leave(r.Context(), sessionID(r), chi.URLParam(r, "uid")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err = s.svc.Registry.End(r.Context(), sessionID(r), uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.svc.Presence.Heartbeat(r.Context(), sessionID(r), uid)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) roster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.svc.Presence.Roster(r.Context(), sessionID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *Server) submitDelta(w http.ResponseWriter, r *http.Request) {
	var delta domain.CanvasDelta
	if err := decode(r, w, &delta); err != nil {
		s.writeError(w, r, err)
		return
	}
	if delta.AuthorID == "" {
		delta.AuthorID = r.Header.Get(userHeader)
	}
	id, err := s.svc.Canvas.SubmitDelta(r.Context(), sessionID(r), delta)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deltaResponse{ID: id})
}

func (s *Server) appendChat(w http.ResponseWriter, r *http.Request) {
	var draft domain.ChatDraft
	if err := decode(r, w, &draft); err != nil {
		s.writeError(w, r, err)
		return
	}
	if draft.SenderID == "" {
		draft.SenderID = r.Header.Get(userHeader)
	}
	seq, err := s.svc.Chat.Append(r.Context(), sessionID(r), draft)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appendResponse{Sequence: seq})
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := s.svc.Chat.History(r.Context(), sessionID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) searchChat(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultSearchLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	hits, err := s.svc.Chat.Search(r.Context(), sessionID(r), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []domain.ChatHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) notificationQueue(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	queue, err := s.svc.Notifications.Queue(r.Context(), sessionID(r), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (s *Server) ackNotification(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.svc.Notifications.Ack(r.Context(), sessionID(r), uid, chi.URLParam(r, "notificationID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ackAllNotifications(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err = s.svc.Notifications.AckAll(r.Context(), sessionID(r), uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearNotifications(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err = s.svc.Notifications.Clear(r.Context(), sessionID(r), uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
