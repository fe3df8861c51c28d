// Package storetest is the conformance suite every contract.Store backend runs.
package storetest

import (
	"board-lab/contract"
	"board-lab/errors"
	"board-lab/store"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// StoreFactory creates a new, empty Store for one test.
type StoreFactory func(t *testing.T) contract.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("GetSetRemove", func(t *testing.T) { testGetSetRemove(t, factory) })
	t.Run("Update_MergesTopLevelFields", func(t *testing.T) { testUpdateMerges(t, factory) })
	t.Run("Push_KeysFollowArrivalOrder", func(t *testing.T) { testPushOrder(t, factory) })
	t.Run("Push_ConcurrentKeysAreUnique", func(t *testing.T) { testPushConcurrent(t, factory) })
	t.Run("Transact_CreateIfAbsentHasOneWinner", func(t *testing.T) { testTransactCreateIfAbsent(t, factory) })
	t.Run("Transact_AbortLeavesPathUntouched", func(t *testing.T) { testTransactAbort(t, factory) })
	t.Run("Transact_CounterIsSerialized", func(t *testing.T) { testTransactCounter(t, factory) })
	t.Run("Watch_ReplayThenSyncedThenLive", func(t *testing.T) { testWatchReplayThenLive(t, factory) })
	t.Run("Watch_CloseEndsStream", func(t *testing.T) { testWatchClose(t, factory) })
	t.Run("Paths_RejectMalformed", func(t *testing.T) { testMalformedPaths(t, factory) })
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Next waits for the next change of w.
func Next(t *testing.T, w contract.Watcher) contract.Change {
	t.Helper()
	select {
	case c, ok := <-w.Changes():
		require.True(t, ok, "watch ended: %v", w.Err())
		return c
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no change delivered")
	}
	return contract.Change{}
}

func testGetSetRemove(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	_, found, err := s.Get(ctx, "a/b")
	req.NoError(err)
	req.False(found)

	req.NoError(s.Set(ctx, "a/b", []byte(`{"x":1}`)))
	v, found, err := s.Get(ctx, "a/b")
	req.NoError(err)
	req.True(found)
	req.JSONEq(`{"x":1}`, string(v))

	req.NoError(s.Remove(ctx, "a/b"))
	req.NoError(s.Remove(ctx, "a/b"))
	_, found, err = s.Get(ctx, "a/b")
	req.NoError(err)
	req.False(found)
}

func testUpdateMerges(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	// Given an absent document, Update creates it
	req.NoError(s.Update(ctx, "p/u1", map[string]any{"name": "ann", "n": 1}))
	// When only one field is updated
	req.NoError(s.Update(ctx, "p/u1", map[string]any{"n": 2}))

	// Then the other fields are kept
	v, _, err := s.Get(ctx, "p/u1")
	req.NoError(err)
	req.JSONEq(`{"name":"ann","n":2}`, string(v))
}

func testPushOrder(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	var keys []string
	for i := 0; i < 12; i++ {
		k, err := s.Push(ctx, "chat", []byte(fmt.Sprintf(`{"i":%d}`, i)))
		req.NoError(err)
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		req.Less(keys[i-1], keys[i])
	}
	seq, ok := store.ParseSeqKey("chat/" + keys[0])
	req.True(ok)
	req.Equal(uint64(1), seq)

	puts, err := store.Snapshot(ctx, s, "chat/")
	req.NoError(err)
	req.Len(puts, 12)
	for i, c := range puts {
		req.Equal("chat/"+keys[i], c.Path)
	}
}

func testPushConcurrent(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	const writers = 20
	keys := make(chan string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, err := s.Push(ctx, "n/u1", []byte(`{}`))
			if err == nil {
				keys <- k
			}
		}()
	}
	wg.Wait()
	close(keys)

	unique := map[string]struct{}{}
	for k := range keys {
		unique[k] = struct{}{}
	}
	req.Len(unique, writers)
}

func testTransactCreateIfAbsent(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	const writers = 8
	wins := make(chan int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			committed, err := s.Transact(ctx, "s/meta", func(current []byte) ([]byte, error) {
				if current != nil {
					return nil, errors.ErrTxAborted
				}
				return json.Marshal(map[string]int{"creator": i})
			})
			if err == nil && committed {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	req.Len(wins, 1)
	winner := <-wins
	v, _, err := s.Get(ctx, "s/meta")
	req.NoError(err)
	req.JSONEq(fmt.Sprintf(`{"creator":%d}`, winner), string(v))
}

func testTransactAbort(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	req.NoError(s.Set(ctx, "k", []byte(`"before"`)))
	committed, err := s.Transact(ctx, "k", func([]byte) ([]byte, error) {
		return nil, errors.ErrTxAborted
	})
	req.NoError(err)
	req.False(committed)

	v, _, err := s.Get(ctx, "k")
	req.NoError(err)
	req.Equal(`"before"`, string(v))
}

func testTransactCounter(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Transact(ctx, "counter", func(current []byte) ([]byte, error) {
				var n int
				if current != nil {
					if err := json.Unmarshal(current, &n); err != nil {
						return nil, err
					}
				}
				return json.Marshal(n + 1)
			})
		}()
	}
	wg.Wait()

	v, _, err := s.Get(ctx, "counter")
	req.NoError(err)
	req.Equal(fmt.Sprint(writers), string(v))
}

func testWatchReplayThenLive(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	// Given existing data inside and outside the prefix
	req.NoError(s.Set(ctx, "sessions/a/meta", []byte(`1`)))
	req.NoError(s.Set(ctx, "sessions/a/chat/2", []byte(`2`)))
	req.NoError(s.Set(ctx, "sessions/b/meta", []byte(`3`)))

	w, err := s.Watch(ctx, "sessions/a/")
	req.NoError(err)
	defer w.Close()

	// Then the replay is in key order and closed by Synced
	c := Next(t, w)
	req.Equal(contract.Put, c.Kind)
	req.Equal("sessions/a/chat/2", c.Path)
	c = Next(t, w)
	req.Equal("sessions/a/meta", c.Path)
	req.Equal(`1`, string(c.Value))
	req.Equal(contract.Synced, Next(t, w).Kind)

	// When writes happen after the replay
	req.NoError(s.Set(ctx, "sessions/b/meta", []byte(`4`)))
	req.NoError(s.Set(ctx, "sessions/a/meta", []byte(`5`)))
	req.NoError(s.Remove(ctx, "sessions/a/chat/2"))

	// Then only the ones under the prefix are delivered, in order
	c = Next(t, w)
	req.Equal(contract.Put, c.Kind)
	req.Equal("sessions/a/meta", c.Path)
	req.Equal(`5`, string(c.Value))
	c = Next(t, w)
	req.Equal(contract.Removed, c.Kind)
	req.Equal("sessions/a/chat/2", c.Path)
}

func testWatchClose(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	w, err := s.Watch(ctx, "x/")
	req.NoError(err)
	req.Equal(contract.Synced, Next(t, w).Kind)
	req.NoError(w.Close())

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-w.Changes():
			if !ok {
				req.NoError(w.Err())
				return
			}
		case <-deadline:
			req.FailNow("watch did not end after Close")
		}
	}
}

func testMalformedPaths(t *testing.T, factory StoreFactory) {
	req := require.New(t)
	s := factory(t)
	ctx := testContext(t)

	req.ErrorIs(s.Set(ctx, "", []byte(`1`)), errors.ErrInvalidPath)
	req.ErrorIs(s.Set(ctx, "a//b", []byte(`1`)), errors.ErrInvalidPath)
	_, err := s.Watch(ctx, "a")
	req.ErrorIs(err, errors.ErrInvalidPath)
}
