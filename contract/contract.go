//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"board-lab/domain"
	"board-lab/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// EventPublisher queues a domain event for every sink. It never blocks and
// reports false when the event was dropped.
type EventPublisher interface {
	Publish(e event.DomainEvent) bool
}

type ChangeKind int

const (
	// Put carries the full current value of a path.
	Put ChangeKind = iota
	// Removed means the path no longer exists.
	Removed
	// Synced closes the initial replay of a watch.
	Synced
)

func (k ChangeKind) String() string {
	switch k {
	case Put:
		return "put"
	case Removed:
		return "removed"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

type Change struct {
	Kind  ChangeKind
	Path  string
	Value []byte
}

// Watcher is a live subscription to every path under a prefix.
// Changes is closed when the watch ends; Err then tells why.
type Watcher interface {
	Changes() <-chan Change
	Err() error
	Close() error
}

// TransactFunc receives the current value (nil when absent) and returns the
// value to write. Returning errors.ErrTxAborted leaves the path untouched.
type TransactFunc func(current []byte) ([]byte, error)

// Store is the shared mutable keyed store every session lives in.
// Values are JSON documents; writes to one path are serialized by the backend.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, bool, error)
	Set(ctx context.Context, path string, value []byte) error
	// Update merges the top-level fields into the document at path,
	// creating it when absent.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Push stores value under parent with a fresh, arrival-ordered key.
	Push(ctx context.Context, parent string, value []byte) (string, error)
	Transact(ctx context.Context, path string, fn TransactFunc) (bool, error)
	Remove(ctx context.Context, path string) error
	Watch(ctx context.Context, prefix string) (Watcher, error)
	Close() error
}

// Heartbeater refreshes the presence of a participant. It never fails:
// a lost beat only delays the next refresh.
type Heartbeater interface {
	Heartbeat(ctx context.Context, sessionID, uid string)
}

// Censor masks forbidden words and returns the words it found.
type Censor interface {
	Censor(original string) (string, []string)
}

// MentionResolver isolates how chat content is turned into recipients.
type MentionResolver interface {
	Parse(content string) []domain.MentionToken
	Resolve(token domain.MentionToken, roster []domain.RosterEntry) []string
}
