package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"chat-gateway/runtime"

	"github.com/shirou/gopsutil/process"
)

// HealthWorker periodically logs process metrics (CPU, RAM, Status)
// together with the registry gauges, giving operators a pulse of the
// gateway without an external metrics stack.
type HealthWorker struct {
	log      *slog.Logger
	registry *runtime.Registry
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, registry *runtime.Registry, interval time.Duration) *HealthWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthWorker{log: log, registry: registry, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	w.log.Info("Starting health worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			connections, users, chats := w.registry.Stats()
			w.log.Info("Gateway health",
				"pid", os.Getpid(),
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"connections", connections,
				"users", users,
				"chats", chats)
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
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
