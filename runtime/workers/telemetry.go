package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"reviewroom/contract"
	"reviewroom/observability"
)

// HubStats is the read-only view the telemetry worker needs from the
// registry.
type HubStats interface {
	ConnCount() int
	RoomCount() int
}

// Telemetry refreshes the hub gauges on a fixed interval: registry
// counts plus RSS/CPU of the serving process via gopsutil.
type Telemetry struct {
	log            *slog.Logger
	stats          HubStats
	metrics        *observability.Metrics
	metricInterval time.Duration
}

func NewTelemetry(log *slog.Logger, stats HubStats,
	metrics *observability.Metrics, metricInterval time.Duration) *Telemetry {
	return &Telemetry{log: log, stats: stats, metrics: metrics, metricInterval: metricInterval}
}

var _ contract.Worker = (*Telemetry)(nil)

func (w *Telemetry) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Self-process handle unavailable, process gauges disabled", "error", err)
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.metrics.ConnectionsActive.Set(float64(w.stats.ConnCount()))
			w.metrics.RoomsActive.Set(float64(w.stats.RoomCount()))

			if proc == nil {
				continue
			}
			if mem, err := proc.MemoryInfo(); err == nil {
				w.metrics.ProcessRSSBytes.Set(float64(mem.RSS))
			}
			if cpu, err := proc.CPUPercent(); err == nil {
				w.metrics.ProcessCPUPercent.Set(cpu)
			}
		}
	}
}
