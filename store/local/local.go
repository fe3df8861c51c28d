// Package local runs a contract.Store on a single process. Every operation is
// executed by one owning goroutine, so writes to any path are serialized and
// a watch replay can never interleave with a live change.
package local

import (
	"board-lab/contract"
	"board-lab/errors"
	"board-lab/store"
	"board-lab/store/feed"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
)

// Backend is the storage behind the engine. It is only called from the
// engine goroutine.
type Backend interface {
	Get(path string) ([]byte, bool, error)
	Put(path string, value []byte) error
	Delete(path string) (bool, error)
	// Append stores value under the next sequence of parent and returns the path.
	Append(parent string, value []byte) (string, error)
	// Scan visits every path under prefix in key order.
	Scan(prefix string, fn func(path string, value []byte) error) error
	Close() error
}

type Store struct {
	log       *slog.Logger
	backend   Backend
	ops       chan func()
	hub       *feed.Hub
	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(log *slog.Logger, backend Backend) *Store {
	s := &Store{
		log:      log,
		backend:  backend,
		ops:      make(chan func()),
		hub:      feed.NewHub(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.shutdown:
			return
		}
	}
}

// do runs op on the engine goroutine and waits for its result.
func (s *Store) do(ctx context.Context, op func() error) error {
	errc := make(chan error, 1)
	select {
	case s.ops <- func() { errc <- op() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return errors.ErrStoreClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, bool, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, false, err
	}
	var (
		value []byte
		found bool
	)
	err := s.do(ctx, func() (err error) {
		value, found, err = s.backend.Get(path)
		return err
	})
	return value, found, err
}

func (s *Store) Set(ctx context.Context, path string, value []byte) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	return s.do(ctx, func() error {
		return s.put(path, value)
	})
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	return s.do(ctx, func() error {
		current, _, err := s.backend.Get(path)
		if err != nil {
			return err
		}
		merged, err := store.MergeFields(current, fields)
		if err != nil {
			return err
		}
		return s.put(path, merged)
	})
}

func (s *Store) Push(ctx context.Context, parent string, value []byte) (string, error) {
	if err := store.ValidatePath(parent); err != nil {
		return "", err
	}
	var key string
	err := s.do(ctx, func() error {
		path, err := s.backend.Append(parent+"/", value)
		if err != nil {
			return err
		}
		s.hub.Publish(contract.Change{Kind: contract.Put, Path: path, Value: value})
		key = path[len(parent)+1:]
		return nil
	})
	return key, err
}

func (s *Store) Transact(ctx context.Context, path string, fn contract.TransactFunc) (bool, error) {
	if err := store.ValidatePath(path); err != nil {
		return false, err
	}
	committed := false
	err := s.do(ctx, func() error {
		current, _, err := s.backend.Get(path)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if stderrors.Is(err, errors.ErrTxAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		if err = s.put(path, next); err != nil {
			return err
		}
		committed = true
		return nil
	})
	return committed, err
}

func (s *Store) Remove(ctx context.Context, path string) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	return s.do(ctx, func() error {
		existed, err := s.backend.Delete(path)
		if err != nil || !existed {
			return err
		}
		s.hub.Publish(contract.Change{Kind: contract.Removed, Path: path})
		return nil
	})
}

// Watch replays the current content of prefix then follows live changes.
func (s *Store) Watch(ctx context.Context, prefix string) (contract.Watcher, error) {
	if err := store.ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	var w *feed.Watcher
	err := s.do(ctx, func() error {
		w = feed.NewWatcher(ctx, s.shutdown)
		err := s.backend.Scan(prefix, func(path string, value []byte) error {
			w.Send(contract.Change{Kind: contract.Put, Path: path, Value: value})
			return nil
		})
		if err != nil {
			_ = w.Close()
			return err
		}
		w.Send(contract.Change{Kind: contract.Synced, Path: prefix})
		s.hub.Add(prefix, w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Close stops the engine, ends every watch and closes the backend.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.shutdown)
		<-s.done
		err = s.backend.Close()
		s.log.Debug("Local store closed")
	})
	return err
}

func (s *Store) put(path string, value []byte) error {
	if err := s.backend.Put(path, value); err != nil {
		return err
	}
	s.hub.Publish(contract.Change{Kind: contract.Put, Path: path, Value: value})
	return nil
}
