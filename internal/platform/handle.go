package platform

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrStopNotSupported is returned by handles whose connection cannot be
// stopped explicitly.
var ErrStopNotSupported = errors.New("bot connection stop not supported")

// HandleState is the lifecycle state of a running bot connection within one
// orchestrator invocation.
type HandleState string

const (
	StateConnecting HandleState = "connecting"
	StateOpen       HandleState = "open"
	StateClosed     HandleState = "closed"
	StateErrored    HandleState = "errored"
)

// Handle is an open gateway connection plus its associated REST client.
// Process-local and never persisted; owned by the orchestrator invocation
// that created it.
type Handle interface {
	ApplicationID() string
	Platform() Platform
	State() HandleState
	StartedAt() time.Time
	Deadline() time.Time
	Stop(ctx context.Context) error
	Running() bool
}

// BaseHandle is the default Handle implementation adapters embed or return.
type BaseHandle struct {
	applicationID string
	platform      Platform
	startedAt     time.Time
	deadline      time.Time
	stop          func(ctx context.Context) error
	state         atomic.Value
}

// NewHandle creates a handle in the Connecting state. The stop callback closes
// the underlying connection.
func NewHandle(cfg BotConfig, deadline time.Time, stop func(ctx context.Context) error) *BaseHandle {
	h := &BaseHandle{
		applicationID: cfg.ApplicationID,
		platform:      cfg.Platform,
		startedAt:     time.Now(),
		deadline:      deadline,
		stop:          stop,
	}
	h.state.Store(StateConnecting)
	return h
}

func (h *BaseHandle) ApplicationID() string {
	return h.applicationID
}

func (h *BaseHandle) Platform() Platform {
	return h.platform
}

func (h *BaseHandle) State() HandleState {
	return h.state.Load().(HandleState)
}

func (h *BaseHandle) StartedAt() time.Time {
	return h.startedAt
}

func (h *BaseHandle) Deadline() time.Time {
	return h.deadline
}

// MarkOpen records a successful handshake. Closed and Errored are terminal.
func (h *BaseHandle) MarkOpen() {
	h.state.CompareAndSwap(StateConnecting, StateOpen)
}

// MarkErrored records a connection failure. Terminal for this invocation.
func (h *BaseHandle) MarkErrored() {
	if h.state.Load().(HandleState) != StateClosed {
		h.state.Store(StateErrored)
	}
}

// Stop closes the underlying connection and moves the handle to Closed.
func (h *BaseHandle) Stop(ctx context.Context) error {
	if h.stop == nil {
		return ErrStopNotSupported
	}
	err := h.stop(ctx)
	if err == nil {
		h.state.Store(StateClosed)
	}
	return err
}

func (h *BaseHandle) Running() bool {
	switch h.State() {
	case StateConnecting, StateOpen:
		return true
	default:
		return false
	}
}
