package workers

import (
	"board-lab/mocks"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHeartbeatWorker_BeatsOnStartAndTouch(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	presence := mocks.NewMockHeartbeater(ctrl)
	beats := make(chan struct{}, 4)
	presence.EXPECT().Heartbeat(gomock.Any(), "s1", "u1").Do(
		func(ctx context.Context, sessionID, uid string) {
			beats <- struct{}{}
		}).MinTimes(2)

	// Given an interval far longer than the test
	worker := NewHeartbeatWorker(log, presence, "s1", "u1", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	// Then the first beat is immediate
	select {
	case <-beats:
	case <-time.After(time.Second):
		req.Fail("No beat on start")
	}

	// When the user is active
	worker.Touch()

	// Then a beat follows without waiting for the interval
	select {
	case <-beats:
	case <-time.After(time.Second):
		req.Fail("Touch did not beat")
	}
	cancel()
	<-done
}

func TestHeartbeatWorker_BeatsOnInterval(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	presence := mocks.NewMockHeartbeater(ctrl)
	var count atomic.Int32
	presence.EXPECT().Heartbeat(gomock.Any(), "s1", "u1").Do(
		func(ctx context.Context, sessionID, uid string) {
			count.Add(1)
		}).AnyTimes()

	worker := NewHeartbeatWorker(log, presence, "s1", "u1", 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	// When the worker runs for several intervals
	req.NoError(worker.Run(ctx))

	// Then it beat on each tick
	req.GreaterOrEqual(count.Load(), int32(3))
}
