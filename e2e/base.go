package e2e

import (
	"board-lab/infrastructure/http/client"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration and checks the server is
// serving before any scenario runs.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.BoardAddr == "" {
		s.T().Skip("BOARD_ADDR not set, skipping end-to-end suite")
	}

	s.Step("Checking gRPC health", func(ctx context.Context) {
		conn, err := grpc.NewClient(s.Config.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GRPCAddr)
		defer conn.Close()

		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
		s.Require().NoError(err)
		s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)
	})
}

// Step prints a colorized header and runs fn with a bounded context.
func (s *BaseSuite) Step(name string, fn func(ctx context.Context)) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx)
}

// Participant returns a client for a fresh user.
func (s *BaseSuite) Participant(name string) *client.Client {
	return client.New(logs.GetLoggerFromString("DEBUG"), s.Config.BoardAddr, name+"-"+uuid.NewString()[:8])
}

// SessionID returns a session id no other run uses.
func (s *BaseSuite) SessionID() string {
	return "e2e-" + uuid.NewString()
}
