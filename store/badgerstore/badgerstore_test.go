package badgerstore

import (
	"board-lab/contract"
	"board-lab/store"
	"board-lab/store/storetest"
	"context"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
)

func TestBadgerStore(t *testing.T) {
	storetest.RunStoreTests(t, func(t *testing.T) contract.Store {
		db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
		require.NoError(t, err)
		s := New(logs.GetLoggerFromLevel(slog.LevelDebug), db)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerStore_SequenceSurvivesReopen(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given two pushes before a restart
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	s := New(log, db)
	_, err = s.Push(ctx, "sessions/a/chat", []byte(`{}`))
	req.NoError(err)
	_, err = s.Push(ctx, "sessions/a/chat", []byte(`{}`))
	req.NoError(err)
	req.NoError(s.Close())

	// When the store is reopened and pushed to again
	db, err = badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	s = New(log, db)
	defer s.Close()
	key, err := s.Push(ctx, "sessions/a/chat", []byte(`{}`))
	req.NoError(err)

	// Then the sequence continues
	req.Equal(store.SeqKey(3), key)
}
