package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessObserver records the resource usage of the relay process.
type ProcessObserver interface {
	SetProcess(rss uint64, cpu float64)
}

// ProcessStatsWorker samples memory and CPU of the relay itself.
type ProcessStatsWorker struct {
	log      *slog.Logger
	observer ProcessObserver
	interval time.Duration
}

func NewProcessStatsWorker(log *slog.Logger, observer ProcessObserver, interval time.Duration) *ProcessStatsWorker {
	return &ProcessStatsWorker{log: log, observer: observer, interval: interval}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.observer.SetProcess(rss, cpu)
		}
	}
}

// selfStats retrieves memory and CPU for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
