package workers

import (
	"board-lab/contract"
	"board-lab/domain/event"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// EventFanout broadcasts domain events to every registered sink.
//
// Each sink consumes in its own goroutine, bounded by sinkTimeout, so a slow
// sink never delays the others nor the producer. Delivery is best effort:
// a sink that needs stronger guarantees persists what it consumes.
type EventFanout struct {
	log         *slog.Logger
	events      chan event.DomainEvent
	sinks       []contract.EventSink
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events chan event.DomainEvent, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, events: events, sinks: sinks, sinkTimeout: sinkTimeout}
}

// Publish queues an event without blocking. It reports false when the
// queue is full and the event was dropped.
func (w *EventFanout) Publish(e event.DomainEvent) bool {
	select {
	case w.events <- e:
		return true
	default:
		w.log.Warn("Event queue full, dropping event", "session_id", e.SessionID())
		return false
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout hands the event to each sink concurrently.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		go func(sink contract.EventSink) {
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := sink.Consume(sinkCtx, evt); err != nil {
				w.log.Error("Sink failed to consume event",
					"sink", fmt.Sprintf("%T", sink), "session_id", evt.SessionID(), "error", err)
			}
		}(sink)
	}
}
