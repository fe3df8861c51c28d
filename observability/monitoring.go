// Package observability gathers process and pipeline metrics for /debug/stats.
package observability

import (
	"board-lab/domain/event"
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ChannelSample is the fill level of an internal queue.
type ChannelSample struct {
	Name     string    `json:"name"`
	Capacity int       `json:"capacity"`
	Length   int       `json:"length"`
	At       time.Time `json:"at"`
}

// MonitoringStats aggregates every metric exposed by the debug endpoint.
type MonitoringStats struct {
	// --- PIPELINE METRICS ---
	MessagesAppended uint64          `json:"messages_appended"`
	SessionsEnded    uint64          `json:"sessions_ended"`
	HTTPRequests     uint64          `json:"http_requests"`
	OpenStreams      int64           `json:"open_streams"`
	Channels         []ChannelSample `json:"channels"`

	// --- PROCESS METRICS ---
	Pid          int32   `json:"pid"`
	PidStatus    string  `json:"pid_status"`
	CPUPercent   float64 `json:"cpu_percent"`
	RSSBytes     uint64  `json:"rss_bytes"`
	AllocMemMb   uint64  `json:"alloc_mem_mb"`
	NumGC        uint32  `json:"num_gc"`
	NumGoroutine int     `json:"num_goroutine"`
	Uptime       string  `json:"uptime"`
}

// MonitoringManager holds live counters. It is also an event sink so the
// fan-out feeds it like any other consumer.
type MonitoringManager struct {
	log              *slog.Logger
	startedAt        time.Time
	messagesAppended atomic.Uint64
	sessionsEnded    atomic.Uint64
	httpRequests     atomic.Uint64
	openStreams      atomic.Int64
	channels         sync.Map
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log, startedAt: time.Now()}
}

func (mm *MonitoringManager) Consume(_ context.Context, e event.DomainEvent) error {
	switch e.(type) {
	case event.MessageAppended:
		mm.messagesAppended.Add(1)
	case event.SessionEnded:
		mm.sessionsEnded.Add(1)
	}
	return nil
}

func (mm *MonitoringManager) IncrHTTPRequests() {
	mm.httpRequests.Add(1)
}

// StreamOpened counts a live stream; the returned func must be called once it ends.
func (mm *MonitoringManager) StreamOpened() func() {
	mm.openStreams.Add(1)
	return func() { mm.openStreams.Add(-1) }
}

func (mm *MonitoringManager) RecordChannel(sample ChannelSample) {
	mm.channels.Store(sample.Name, sample)
}

// GetLatest samples the process and returns every metric.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	stats := MonitoringStats{
		MessagesAppended: mm.messagesAppended.Load(),
		SessionsEnded:    mm.sessionsEnded.Load(),
		HTTPRequests:     mm.httpRequests.Load(),
		OpenStreams:      mm.openStreams.Load(),
		NumGoroutine:     goruntime.NumGoroutine(),
		Uptime:           time.Since(mm.startedAt).Truncate(time.Second).String(),
	}
	mm.channels.Range(func(_, v any) bool {
		stats.Channels = append(stats.Channels, v.(ChannelSample))
		return true
	})

	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		mm.log.Debug("Process stats unavailable", "error", err)
		return stats
	}
	stats.Pid = p.Pid
	rss, cpu, status, err := selfStats(p)
	if err != nil {
		mm.log.Debug("Failed to collect self stats", "error", err)
		return stats
	}
	stats.RSSBytes, stats.CPUPercent, stats.PidStatus = rss, cpu, status
	return stats
}

// selfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
