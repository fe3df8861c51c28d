package redisstore

import (
	"board-lab/contract"
	"board-lab/store/storetest"
	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"log/slog"
	"testing"
)

func TestRedisStore(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	// Quick availability check to allow graceful skip in environments without Redis
	s, err := NewFromEnv(log)
	if err != nil {
		t.Skipf("skipping redis store tests: %v", err)
		return
	}
	_ = s.Close()

	storetest.RunStoreTests(t, func(t *testing.T) contract.Store {
		var cfg Config
		_ = envdecode.Decode(&cfg)
		cfg.KeyPrefix = "boardtest:" + uuid.NewString() + ":"
		s, err := New(log, cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestDecode(t *testing.T) {
	req := require.New(t)

	c, rev, ok := decode("a/b", `12:p:{"k":"v:w"}`)
	req.True(ok)
	req.Equal(uint64(12), rev)
	req.Equal(contract.Put, c.Kind)
	req.Equal(`{"k":"v:w"}`, string(c.Value))

	c, rev, ok = decode("a/b", `13:d:`)
	req.True(ok)
	req.Equal(uint64(13), rev)
	req.Equal(contract.Removed, c.Kind)

	_, _, ok = decode("a/b", "garbage")
	req.False(ok)
}
