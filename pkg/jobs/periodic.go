package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one run of a periodic job.
type Task func(context.Context) error

// PeriodicConfig configures a periodic job.
type PeriodicConfig struct {
	Interval time.Duration
	// RunOnStart triggers one run immediately after Start.
	RunOnStart bool
	Logger     *zap.Logger
}

// Periodic runs a task on a fixed interval in a single goroutine, so runs
// never overlap.
type Periodic struct {
	name     string
	task     Task
	interval time.Duration
	onStart  bool
	logger   *zap.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewPeriodic builds a periodic job. Intervals below one second are raised to one second.
func NewPeriodic(name string, task Task, cfg PeriodicConfig) *Periodic {
	if cfg.Interval < time.Second {
		cfg.Interval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Periodic{
		name:     name,
		task:     task,
		interval: cfg.Interval,
		onStart:  cfg.RunOnStart,
		logger:   cfg.Logger,
	}
}

// Start launches the loop. Safe to call once.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.started = true
	p.logger.Sugar().Infow("periodic job started", "job", p.name, "interval", p.interval)
}

// Stop cancels the loop and waits for a run in progress to return.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Sugar().Infow("periodic job stopped", "job", p.name)
}

func (p *Periodic) loop(ctx context.Context) {
	defer p.wg.Done()
	if p.onStart {
		p.run(ctx)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *Periodic) run(ctx context.Context) {
	if err := p.task(ctx); err != nil && ctx.Err() == nil {
		p.logger.Sugar().Warnw("periodic job failed", "job", p.name, "error", err)
	}
}
