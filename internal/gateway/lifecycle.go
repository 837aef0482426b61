package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ProcessState tracks whether the orchestrator's background service is
// running. A single mutual-exclusion flag owned by the composition root and
// injected into the Lifecycle service; its mutex serializes start/stop/restart
// so two background loops can never run at once.
type ProcessState struct {
	mu      sync.Mutex
	running bool
}

// NewProcessState creates an idle process state.
func NewProcessState() *ProcessState {
	return &ProcessState{}
}

// Lifecycle is the idempotent control plane for the orchestrator's own
// running/stopped state. While running, an internal cron job fires RunCycle
// on the configured pattern.
type Lifecycle struct {
	orc         *Orchestrator
	state       *ProcessState
	cronPattern string
	budget      time.Duration
	logger      *slog.Logger

	cron *cron.Cron
}

// NewLifecycle creates the lifecycle service. cronPattern drives the internal
// trigger (e.g. "@every 15m"); budget is the per-cycle wall-clock budget.
func NewLifecycle(log *slog.Logger, orc *Orchestrator, state *ProcessState, cronPattern string, budget time.Duration) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	return &Lifecycle{
		orc:         orc,
		state:       state,
		cronPattern: cronPattern,
		budget:      budget,
		logger:      log.With(slog.String("service", "lifecycle")),
	}
}

// EnsureRunning starts the background cycle if it is not already running.
// Calling it while running is a no-op.
func (l *Lifecycle) EnsureRunning(ctx context.Context) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	return l.ensureRunningLocked(ctx)
}

// Stop tears down the background loop and every handle it owns. Calling it
// while stopped is a no-op.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	return l.stopLocked(ctx)
}

// Restart is stop-then-start under one lock, never interleaved with another
// start or stop call.
func (l *Lifecycle) Restart(ctx context.Context) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if err := l.stopLocked(ctx); err != nil {
		return err
	}
	return l.ensureRunningLocked(ctx)
}

// Running reports whether the background cycle is active.
func (l *Lifecycle) Running() bool {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	return l.state.running
}

func (l *Lifecycle) ensureRunningLocked(ctx context.Context) error {
	if l.state.running {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(l.cronPattern, func() {
		if _, err := l.orc.RunCycle(context.Background(), l.budget); err != nil && !errors.Is(err, ErrStopped) {
			l.logger.Error("scheduled cycle failed", slog.Any("error", err))
		}
	}); err != nil {
		return err
	}
	l.orc.Resume()
	c.Start()
	l.cron = c
	l.state.running = true
	l.logger.Info("gateway started", slog.String("pattern", l.cronPattern))

	// Kick one cycle immediately instead of waiting for the first cron fire.
	// A Stop that lands before the kick runs wins: the orchestrator stays
	// stopped and the cycle refuses to open handles.
	go func() {
		if _, err := l.orc.RunCycle(context.Background(), l.budget); err != nil && !errors.Is(err, ErrStopped) {
			l.logger.Error("initial cycle failed", slog.Any("error", err))
		}
	}()
	return nil
}

func (l *Lifecycle) stopLocked(ctx context.Context) error {
	if !l.state.running {
		return nil
	}
	if l.cron != nil {
		stopCtx := l.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			l.logger.Warn("cron jobs still draining at stop")
		}
		l.cron = nil
	}
	err := l.orc.StopAll(ctx)
	l.state.running = false
	if err != nil {
		return err
	}
	l.logger.Info("gateway stopped")
	return nil
}
