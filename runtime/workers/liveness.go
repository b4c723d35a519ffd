package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-gateway/runtime"
)

const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 60 * time.Second
)

// LivenessWorker sweeps the session directory on a fixed interval:
// connections whose last pong is older than the timeout are evicted,
// the rest receive a ping. Eviction goes through the registry so the
// indices stay consistent with the directory.
type LivenessWorker struct {
	log          *slog.Logger
	registry     *runtime.Registry
	pingInterval time.Duration
	pongTimeout  time.Duration
	clock        func() time.Time
}

func NewLivenessWorker(log *slog.Logger,
	registry *runtime.Registry,
	pingInterval, pongTimeout time.Duration) *LivenessWorker {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	if pongTimeout <= 0 {
		pongTimeout = DefaultPongTimeout
	}
	return &LivenessWorker{
		log:          log,
		registry:     registry,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		clock:        time.Now,
	}
}

// WithClock injects a deterministic clock for tests.
func (w *LivenessWorker) WithClock(clock func() time.Time) *LivenessWorker {
	w.clock = clock
	return w
}

func (w *LivenessWorker) Run(ctx context.Context) error {
	w.log.Info("Starting liveness worker",
		"ping_interval", w.pingInterval, "pong_timeout", w.pongTimeout)
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep probes every session from a point-in-time snapshot, so network
// writes never happen under the registry lock.
func (w *LivenessWorker) Sweep() {
	now := w.clock()
	for _, probe := range w.registry.Snapshot() {
		if now.Sub(probe.LastPong) > w.pongTimeout {
			w.evict(probe)
			continue
		}
		if err := probe.Conn.Ping(); err != nil {
			w.log.Debug("Ping failed, evicting",
				"conn_id", probe.ID, "user_id", probe.UserID, "error", err)
			w.evict(probe)
		}
	}
}

func (w *LivenessWorker) evict(probe runtime.Probe) {
	w.log.Info("Evicting unresponsive connection",
		"conn_id", probe.ID, "user_id", probe.UserID, "last_pong", probe.LastPong)
	if err := probe.Conn.Close(runtime.CloseLivenessTimeout, "liveness timeout"); err != nil {
		w.log.Debug("Close failed during eviction", "conn_id", probe.ID, "error", err)
	}
	w.registry.Unregister(probe.ID)
}
