// Package runner drives periodic jobs such as the reminder sweep and the
// retention cleanup.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one tick of work.
type Job func(ctx context.Context) error

// Periodic runs a Job on a fixed interval between Start and Stop. Ticks never
// overlap: a tick that takes longer than the interval delays the next one.
type Periodic struct {
	name       string
	every      time.Duration
	job        Job
	runOnStart bool
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option customises a Periodic runner.
type Option func(*Periodic)

// WithLogger sets the logger used for tick failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Periodic) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// RunOnStart runs the job once immediately when the runner starts.
func RunOnStart() Option {
	return func(p *Periodic) {
		p.runOnStart = true
	}
}

// NewPeriodic constructs a runner for job. A non-positive interval falls
// back to one minute.
func NewPeriodic(name string, every time.Duration, job Job, opts ...Option) *Periodic {
	if every <= 0 {
		every = time.Minute
	}
	p := &Periodic{
		name:   name,
		every:  every,
		job:    job,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("runner", name)
	return p
}

// Start launches the loop. It returns false when the runner is already running.
// The loop ends when ctx is cancelled or Stop is called.
func (p *Periodic) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(ctx, p.done)
	p.logger.InfoContext(ctx, "runner started", "interval", p.every)
	return true
}

// Stop cancels the loop and waits for an in-flight tick to return.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("runner stopped")
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if p.runOnStart {
		p.tick(ctx)
	}

	ticker := time.NewTicker(p.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Periodic) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := p.job(ctx); err != nil {
		p.logger.ErrorContext(ctx, "runner tick failed", "error", err)
	}
}
