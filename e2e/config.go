package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// BOARD_ADDR is the HTTP base URL of a running server. The suites are
	// skipped when it is empty.
	BoardAddr string `envconfig:"BOARD_ADDR"`
	// BOARD_GRPC_ADDR is the gRPC health endpoint of the same server
	GRPCAddr string `envconfig:"BOARD_GRPC_ADDR" default:"localhost:9090"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
