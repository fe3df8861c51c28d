package memstore

import (
	"board-lab/contract"
	"board-lab/store/storetest"
	"github.com/mama165/sdk-go/logs"
	"log/slog"
	"testing"
)

func TestMemStore(t *testing.T) {
	storetest.RunStoreTests(t, func(t *testing.T) contract.Store {
		s := New(logs.GetLoggerFromLevel(slog.LevelDebug))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
