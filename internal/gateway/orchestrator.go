// Package gateway contains the scheduling core: the orchestrator that brings
// up bot connections within a wall-clock budget, the connect-queue drain, and
// the idempotent lifecycle service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hivegate-io/hivegate/internal/platform"
	"github.com/hivegate-io/hivegate/internal/queue"
)

// ConfigStore is what the orchestrator needs from the credential store.
type ConfigStore interface {
	FindEnabledByPlatform(ctx context.Context, p platform.Platform) ([]platform.BotConfig, error)
	FindEnabledByApplicationID(ctx context.Context, p platform.Platform, applicationID string) (platform.BotConfig, error)
}

// CycleSummary is the result of one orchestrator invocation.
type CycleSummary struct {
	Started int `json:"started"`
	Queued  int `json:"queued"`
	Total   int `json:"total"`
}

// Orchestrator starts gateway connections for every enabled bot config and
// keeps draining newly queued connect requests until the invocation budget
// expires.
type Orchestrator struct {
	registry     *platform.Registry
	store        ConfigStore
	queue        queue.ConnectQueue
	events       platform.EventHandler
	logger       *slog.Logger
	pollInterval time.Duration

	// Platforms throttle identify calls; pace the start batch instead of
	// firing every connection at once.
	startLimiter *rate.Limiter

	now func() time.Time

	mu       sync.Mutex
	handles  map[string]platform.Handle
	starting map[string]struct{}
	stopped  bool
}

// ErrStopped is returned by RunCycle after StopAll until the lifecycle
// resumes the orchestrator.
var ErrStopped = errors.New("gateway is stopped")

// NewOrchestrator creates the orchestrator. pollInterval controls how often
// the background loop re-drains the connect queue within an invocation.
func NewOrchestrator(log *slog.Logger, registry *platform.Registry, store ConfigStore, q queue.ConnectQueue, events platform.EventHandler, pollInterval time.Duration) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Orchestrator{
		registry:     registry,
		store:        store,
		queue:        q,
		events:       events,
		logger:       log.With(slog.String("component", "orchestrator")),
		pollInterval: pollInterval,
		startLimiter: rate.NewLimiter(rate.Every(time.Second), 3),
		now:          time.Now,
		handles:      map[string]platform.Handle{},
		starting:     map[string]struct{}{},
	}
}

// RunCycle performs one invocation: start every enabled bot, drain the
// connect queue once synchronously, then schedule the background poll loop
// bounded by maxDuration.
func (o *Orchestrator) RunCycle(ctx context.Context, maxDuration time.Duration) (CycleSummary, error) {
	if maxDuration <= 0 {
		return CycleSummary{}, fmt.Errorf("cycle budget must be positive")
	}
	if o.isStopped() {
		return CycleSummary{}, ErrStopped
	}
	start := o.now()
	deadline := start.Add(maxDuration)
	log := o.logger.With(slog.String("cycle_id", uuid.NewString()))

	summary := CycleSummary{}
	var configs []platform.BotConfig
	for _, p := range o.registry.Types() {
		list, err := o.store.FindEnabledByPlatform(ctx, p)
		if err != nil {
			log.Error("list enabled configs failed", slog.String("platform", p.String()), slog.Any("error", err))
			continue
		}
		configs = append(configs, list...)
	}
	summary.Total = len(configs)
	summary.Started = o.startBatch(ctx, log, configs, deadline)

	// Service requests queued before this invocation without waiting for the
	// first poll tick.
	summary.Queued = o.processConnectQueue(ctx, deadline.Sub(o.now()))

	o.spawnPollLoop(ctx, deadline)

	log.Info("cycle complete",
		slog.Int("started", summary.Started),
		slog.Int("queued", summary.Queued),
		slog.Int("total", summary.Total))
	return summary, nil
}

// startBatch issues one start attempt per config as an unordered concurrent
// batch. A hung handshake on one bot never delays initiating the others; the
// rate limiter alone paces initiation. Returns the number of successful
// starts once every attempt has settled.
func (o *Orchestrator) startBatch(ctx context.Context, log *slog.Logger, configs []platform.BotConfig, deadline time.Time) int {
	var wg sync.WaitGroup
	var started atomic.Int32
	for _, cfg := range configs {
		wg.Add(1)
		o.spawn(func() {
			defer wg.Done()
			// One bot's failure never aborts starting the others.
			if err := o.startBot(ctx, cfg, deadline); err != nil {
				log.Error("bot start failed",
					slog.String("platform", cfg.Platform.String()),
					slog.String("application_id", cfg.ApplicationID),
					slog.Any("error", err))
				return
			}
			started.Add(1)
		})
	}
	wg.Wait()
	return int(started.Load())
}

// processConnectQueue pops every pending item and attempts to start each one
// with the remaining budget. Items are removed from the queue before
// processing; failed starts are not re-enqueued.
func (o *Orchestrator) processConnectQueue(ctx context.Context, remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	items, err := o.queue.PopAll(ctx)
	if err != nil {
		o.logger.Error("queue pop failed", slog.Any("error", err))
		return 0
	}
	deadline := o.now().Add(remaining)
	configs := make([]platform.BotConfig, 0, len(items))
	for _, item := range items {
		cfg, err := o.store.FindEnabledByApplicationID(ctx, item.Platform, item.ApplicationID)
		if err != nil {
			if errors.Is(err, platform.ErrConfigNotFound) {
				o.logger.Debug("queued config missing or disabled, skipping",
					slog.String("platform", item.Platform.String()),
					slog.String("application_id", item.ApplicationID))
			} else {
				o.logger.Error("queued config lookup failed",
					slog.String("application_id", item.ApplicationID),
					slog.Any("error", err))
			}
			continue
		}
		configs = append(configs, cfg)
	}
	return o.startBatch(ctx, o.logger, configs, deadline)
}

// startBot opens a connection for cfg with the given deadline. Idempotent
// while a handle for the same (platform, applicationID) is still running or
// another goroutine is mid-handshake for the same key.
func (o *Orchestrator) startBot(ctx context.Context, cfg platform.BotConfig, deadline time.Time) error {
	starter, ok := o.registry.GetStarter(cfg.Platform)
	if !ok {
		return fmt.Errorf("no starter registered for platform %s", cfg.Platform)
	}
	key := handleKey(cfg.Platform, cfg.ApplicationID)

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrStopped
	}
	if existing, ok := o.handles[key]; ok {
		if existing.Running() {
			o.mu.Unlock()
			return nil
		}
		delete(o.handles, key)
	}
	if _, inflight := o.starting[key]; inflight {
		o.mu.Unlock()
		return nil
	}
	o.starting[key] = struct{}{}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.starting, key)
		o.mu.Unlock()
	}()

	remaining := deadline.Sub(o.now())
	if remaining <= 0 {
		return fmt.Errorf("invocation budget exhausted")
	}
	waitCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	if err := o.startLimiter.Wait(waitCtx); err != nil {
		return fmt.Errorf("start rate limit: %w", err)
	}

	handle, err := starter.Start(ctx, cfg, platform.StartOptions{
		Duration:   deadline.Sub(o.now()),
		Background: o.spawn,
		OnEvent:    o.events,
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.stopped {
		// StopAll ran while the handshake was in flight; the new handle must
		// not outlive the stop.
		o.mu.Unlock()
		_ = handle.Stop(context.WithoutCancel(ctx))
		return ErrStopped
	}
	o.handles[key] = handle
	o.mu.Unlock()
	return nil
}

// spawnPollLoop repeats processConnectQueue on the poll interval until the
// invocation deadline passes. Detached from the caller's context so the loop
// outlives the synchronous request that triggered the cycle.
func (o *Orchestrator) spawnPollLoop(ctx context.Context, deadline time.Time) {
	loopCtx, cancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	o.spawn(func() {
		defer cancel()
		ticker := time.NewTicker(o.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if o.isStopped() {
					return
				}
				// Recompute the remaining budget each tick; newly started
				// bots get a shrinking deadline.
				remaining := deadline.Sub(o.now())
				if remaining <= 0 {
					return
				}
				o.processConnectQueue(loopCtx, remaining)
			}
		}
	})
}

func (o *Orchestrator) spawn(fn func()) {
	go fn()
}

func (o *Orchestrator) isStopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

// Resume clears the stopped flag so invocations can open handles again.
// Called by the lifecycle before it arms the cycle trigger; RunCycle never
// clears the flag itself, so a cycle racing a Stop cannot resurrect the
// gateway.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.stopped = false
	o.mu.Unlock()
}

// StopAll closes every running handle and marks the orchestrator stopped so
// in-flight poll loops exit on their next tick.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	o.mu.Lock()
	o.stopped = true
	handles := make([]platform.Handle, 0, len(o.handles))
	for key, h := range o.handles {
		handles = append(handles, h)
		delete(o.handles, key)
	}
	o.mu.Unlock()

	var lastErr error
	for _, h := range handles {
		if err := h.Stop(ctx); err != nil && !errors.Is(err, platform.ErrStopNotSupported) {
			o.logger.Warn("handle stop failed",
				slog.String("platform", h.Platform().String()),
				slog.String("application_id", h.ApplicationID()),
				slog.Any("error", err))
			lastErr = err
		}
	}
	return lastErr
}

// StopBot closes the running handle for one application, if any. Idempotent.
func (o *Orchestrator) StopBot(ctx context.Context, p platform.Platform, applicationID string) error {
	key := handleKey(p, applicationID)
	o.mu.Lock()
	handle, ok := o.handles[key]
	if ok {
		delete(o.handles, key)
	}
	o.mu.Unlock()
	if !ok {
		return nil
	}
	if err := handle.Stop(ctx); err != nil && !errors.Is(err, platform.ErrStopNotSupported) {
		return err
	}
	return nil
}

// RunningHandles returns a snapshot of the live handles.
func (o *Orchestrator) RunningHandles() []platform.Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := make([]platform.Handle, 0, len(o.handles))
	for _, h := range o.handles {
		if h.Running() {
			items = append(items, h)
		}
	}
	return items
}

func handleKey(p platform.Platform, applicationID string) string {
	return p.String() + ":" + applicationID
}
