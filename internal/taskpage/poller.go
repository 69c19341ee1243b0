package taskpage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/r4u-dev/r4u-console/internal/api"
)

// DefaultPollInterval is the delay between optimization snapshots.
const DefaultPollInterval = 4 * time.Second

// OptimizationGetter is the slice of the API client the poller needs.
type OptimizationGetter interface {
	GetOptimization(ctx context.Context, optimizationID int64) (*api.Optimization, error)
}

// Poller follows one optimization job at a fixed interval and delivers
// each snapshot to a callback. Polling stops on its own when a snapshot
// carries a terminal status, and immediately on Stop or context
// cancellation. At most one job is followed at a time; starting a new one
// stops the previous poll first.
type Poller struct {
	backend  OptimizationGetter
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a poller. A non-positive interval selects the default.
func NewPoller(backend OptimizationGetter, logger *slog.Logger, interval time.Duration) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{backend: backend, logger: logger, interval: interval}
}

// Start begins polling the given job. The first snapshot is fetched
// immediately, then one per interval. onUpdate receives every snapshot,
// including the terminal one, from the polling goroutine. Fetch errors are
// logged and polling continues; a transient backend failure must not kill
// the poll.
func (p *Poller) Start(ctx context.Context, optimizationID int64, onUpdate func(*api.Optimization)) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		p.loop(ctx, optimizationID, onUpdate)
	}()
}

// Stop cancels the active poll, if any, and waits for its goroutine to
// exit. Safe to call repeatedly and without a prior Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Poller) loop(ctx context.Context, optimizationID int64, onUpdate func(*api.Optimization)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		opt, err := p.backend.GetOptimization(ctx, optimizationID)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			p.logger.Warn("optimization poll failed",
				"optimization_id", optimizationID, "error", err)
		default:
			onUpdate(opt)
			if !opt.Status.Active() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
