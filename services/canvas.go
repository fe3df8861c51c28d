package services

import (
	"board-lab/contract"
	"board-lab/domain"
	"board-lab/repositories"
	"board-lab/runtime"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CanvasReplicator writes canvas deltas and streams the replicated state.
// Element ids come from the store, so concurrent appends never collide, and
// settings converge field by field whatever order patches are applied in.
type CanvasReplicator struct {
	log      *slog.Logger
	sessions repositories.SessionRepository
	canvas   repositories.CanvasRepository
	hub      *runtime.Hub
	now      func() time.Time
}

func NewCanvasReplicator(log *slog.Logger, store contract.Store, hub *runtime.Hub) *CanvasReplicator {
	return &CanvasReplicator{
		log:      log,
		sessions: repositories.NewSessionRepository(store, log),
		canvas:   repositories.NewCanvasRepository(store, log),
		hub:      hub,
		now:      time.Now,
	}
}

// SubmitDelta applies one delta. Appends return the new element id.
// A settings patch that loses every field is absorbed without error.
func (c *CanvasReplicator) SubmitDelta(ctx context.Context, sessionID string, delta domain.CanvasDelta) (string, error) {
	if err := validateDelta(sessionID, delta); err != nil {
		return "", err
	}
	if _, err := activeMeta(ctx, c.sessions, sessionID); err != nil {
		return "", err
	}

	if delta.PatchSettings != nil {
		won, err := c.canvas.PatchSettings(ctx, sessionID, *delta.PatchSettings, delta.AuthorID)
		if err != nil {
			return "", fmt.Errorf("patch settings of %s: %w", sessionID, err)
		}
		if !won {
			c.log.Debug("Settings patch lost to a newer write", "session_id", sessionID, "uid", delta.AuthorID)
		}
		return "", nil
	}

	kind, element := c.element(delta)
	id, err := c.canvas.Append(ctx, sessionID, kind, element)
	if err != nil {
		return "", fmt.Errorf("append %s to %s: %w", kind, sessionID, err)
	}
	return id, nil
}

// element stamps the appended element with its author and creation time.
// The id is left empty, the push key replaces it.
func (c *CanvasReplicator) element(delta domain.CanvasDelta) (domain.ElementKind, any) {
	stamp := func(e domain.Element) domain.Element {
		e.ID = ""
		e.AuthorID = delta.AuthorID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = c.now().UTC()
		}
		return e
	}
	switch {
	case delta.AppendStroke != nil:
		s := *delta.AppendStroke
		s.Element = stamp(s.Element)
		return domain.KindStroke, s
	case delta.AppendShape != nil:
		s := *delta.AppendShape
		s.Element = stamp(s.Element)
		return domain.KindShape, s
	default:
		t := *delta.AppendTextBox
		t.Element = stamp(t.Element)
		return domain.KindTextBox, t
	}
}

// Watch streams the canvas: first a snapshot of the current state, then one
// event per change carrying only that delta. Cancelling ctx ends the stream.
func (c *CanvasReplicator) Watch(ctx context.Context, sessionID string) (<-chan domain.CanvasEvent, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	sub, err := c.hub.Subscribe(ctx, sessionID, runtime.TopicCanvas, "")
	if err != nil {
		return nil, err
	}
	return stream(ctx, sub, func(e runtime.Event) (domain.CanvasEvent, bool) {
		if e.Canvas == nil {
			return domain.CanvasEvent{}, false
		}
		return *e.Canvas, true
	}), nil
}
