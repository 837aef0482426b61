package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hivegate-io/hivegate/internal/platform"
)

func newTestLifecycle(t *testing.T) *Lifecycle {
	t.Helper()
	p := platform.Platform("discord")
	starter := &fakeStarter{platformType: p}
	registry := platform.NewRegistry()
	registry.MustRegister(starter)
	q := &fakeQueue{}
	orc := NewOrchestrator(slog.Default(), registry, &fakeStore{}, q, nil, time.Hour)
	// A pattern that never fires during the test; cycles come from the
	// immediate kick and explicit calls only.
	return NewLifecycle(slog.Default(), orc, NewProcessState(), "@every 1h", 50*time.Millisecond)
}

func TestEnsureRunningIsIdempotent(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(t)
	defer l.Stop(context.Background())

	if err := l.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !l.Running() {
		t.Fatalf("expected running state")
	}
	cronBefore := l.cron
	if err := l.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if l.cron != cronBefore {
		t.Fatalf("second EnsureRunning must not replace the scheduler")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(t)
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("stopping an idle lifecycle must be a no-op: %v", err)
	}
	if err := l.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if l.Running() {
		t.Fatalf("expected stopped state")
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("second stop must be a no-op: %v", err)
	}
}

func TestRestart(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(t)
	defer l.Stop(context.Background())

	// Restart from idle behaves like a start.
	if err := l.Restart(context.Background()); err != nil {
		t.Fatalf("restart from idle failed: %v", err)
	}
	if !l.Running() {
		t.Fatalf("expected running after restart")
	}
	cronBefore := l.cron
	if err := l.Restart(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if !l.Running() {
		t.Fatalf("expected running after restart")
	}
	if l.cron == cronBefore {
		t.Fatalf("restart must tear down and rebuild the scheduler")
	}
}

func TestStopWinsOverPendingInitialCycle(t *testing.T) {
	t.Parallel()

	p := platform.Platform("discord")
	release := make(chan struct{})
	starter := &fakeStarter{
		platformType: p,
		blockOn:      map[string]chan struct{}{"app-1": release},
	}
	store := &fakeStore{configs: map[platform.Platform][]platform.BotConfig{
		p: {botConfig(p, "app-1")},
	}}
	orc := newTestOrchestrator(t, starter, store, &fakeQueue{}, time.Hour)
	l := NewLifecycle(slog.Default(), orc, NewProcessState(), "@every 1h", time.Minute)

	if err := l.EnsureRunning(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// Wait until the kicked cycle is inside the handshake, then stop.
	timeout := time.After(2 * time.Second)
	for starter.initiatedCount() == 0 {
		select {
		case <-timeout:
			t.Fatalf("initial cycle never reached the starter")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	close(release)

	// A handshake that completes after Stop must not leave a live handle or
	// flip the gateway back to running.
	time.Sleep(50 * time.Millisecond)
	if got := len(orc.RunningHandles()); got != 0 {
		t.Fatalf("handle opened after stop: %d running", got)
	}
	if l.Running() {
		t.Fatalf("lifecycle reports running after stop")
	}
	if _, err := orc.RunCycle(context.Background(), time.Minute); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped from a cycle after stop, got %v", err)
	}
}

func TestLifecycleCallsAreSerialized(t *testing.T) {
	t.Parallel()

	l := newTestLifecycle(t)
	defer l.Stop(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.EnsureRunning(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = l.Restart(context.Background())
		}()
	}
	wg.Wait()

	if !l.Running() {
		t.Fatalf("expected a running lifecycle after concurrent control calls")
	}
	if l.cron == nil {
		t.Fatalf("expected an active scheduler")
	}
}
