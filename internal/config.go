package internal

import (
	"board-lab/runtime"
	"fmt"
	"time"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

type Config struct {
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	Host            string        `env:"HOST,default=0.0.0.0"`
	Port            int           `env:"PORT,default=8080"`
	GRPCPort        int           `env:"GRPC_PORT,default=9090"`
	DebugPort       int           `env:"DEBUG_PORT,default=8081"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`

	StoreBackend   string `env:"STORE_BACKEND,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,default=./data/bluge"`

	CensoredWordsDir string `env:"CENSORED_WORDS_DIR"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=5s"`
	SubscriberBuffer     int           `env:"SUBSCRIBER_BUFFER,default=64"`
	ResampleInterval     time.Duration `env:"RESAMPLE_INTERVAL,default=1s"`
	ResyncDelay          time.Duration `env:"RESYNC_DELAY,default=50ms"`
	RetryBaseDelay       time.Duration `env:"RETRY_BASE_DELAY,default=100ms"`
	RetryMaxDelay        time.Duration `env:"RETRY_MAX_DELAY,default=5s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=20"`
	WriteTimeout         time.Duration `env:"WS_WRITE_TIMEOUT,default=10s"`
}

func (c Config) Backoff() runtime.Backoff {
	return runtime.Backoff{Base: c.RetryBaseDelay, Max: c.RetryMaxDelay}
}

func (c Config) HubConfig() runtime.HubConfig {
	return runtime.HubConfig{
		SubscriberBuffer: c.SubscriberBuffer,
		ResampleInterval: c.ResampleInterval,
		ResyncDelay:      c.ResyncDelay,
		WatchBackoff:     c.Backoff(),
	}
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendBadger, BackendRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, badger, redis, got %q", c.StoreBackend)
	}
	if c.SubscriberBuffer < 1 || c.EventBufferSize < 1 {
		return fmt.Errorf("SUBSCRIBER_BUFFER and EVENT_BUFFER_SIZE must be positive")
	}
	if c.ResampleInterval <= 0 || c.ResampleInterval >= 30*time.Second {
		return fmt.Errorf("RESAMPLE_INTERVAL must be between 0 and the presence window, got %s", c.ResampleInterval)
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
