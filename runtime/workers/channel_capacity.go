package workers

import (
	"board-lab/observability"
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically samples the length and capacity of
// internal queues. Reading len and cap is non-blocking, so this never
// interferes with producers or consumers.
type ChannelCapacityWorker struct {
	log                  *slog.Logger
	channels             []NamedChannel
	monitoring           *observability.MonitoringManager
	metricInterval       time.Duration
	lowCapacityThreshold int
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	monitoring *observability.MonitoringManager, metricInterval time.Duration, lowCapacityThreshold int) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:                  log,
		channels:             channels,
		monitoring:           monitoring,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w ChannelCapacityWorker) sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		w.monitoring.RecordChannel(observability.ChannelSample{
			Name: nc.Name, Capacity: capacity, Length: length, At: time.Now().UTC(),
		})
		if capacity > 0 && (capacity-length)*100/capacity < w.lowCapacityThreshold {
			w.log.Warn("Channel almost full", "name", nc.Name, "length", length, "capacity", capacity)
		}
	}
}
