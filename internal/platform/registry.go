package platform

import (
	"errors"
	"fmt"
	"sync"
)

// Registry holds all registered platform adapters and provides capability
// lookups. It must be created via NewRegistry and passed explicitly to
// components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Platform]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Platform]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return errors.New("adapter is nil")
	}
	p := normalizePlatform(adapter.Type().String())
	if p == "" {
		return errors.New("platform is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[p]; exists {
		return fmt.Errorf("platform already registered: %s", p)
	}
	r.adapters[p] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given platform.
func (r *Registry) Get(p Platform) (Adapter, bool) {
	normalized := normalizePlatform(p.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[normalized]
	return adapter, ok
}

// Types returns all registered platforms.
func (r *Registry) Types() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Platform, 0, len(r.adapters))
	for p := range r.adapters {
		items = append(items, p)
	}
	return items
}

// Parse validates a raw string against the registered platforms.
func (r *Registry) Parse(raw string) (Platform, error) {
	p := normalizePlatform(raw)
	if p == "" {
		return "", fmt.Errorf("unsupported platform: %s", raw)
	}
	if _, ok := r.Get(p); !ok {
		return "", fmt.Errorf("unsupported platform: %s", raw)
	}
	return p, nil
}

// GetStarter returns the Starter for the given platform, or false if unsupported.
func (r *Registry) GetStarter(p Platform) (Starter, bool) {
	adapter, ok := r.Get(p)
	if !ok {
		return nil, false
	}
	starter, ok := adapter.(Starter)
	return starter, ok
}

// GetMessenger returns the Messenger for the given platform, or false if unsupported.
func (r *Registry) GetMessenger(p Platform) (Messenger, bool) {
	adapter, ok := r.Get(p)
	if !ok {
		return nil, false
	}
	messenger, ok := adapter.(Messenger)
	return messenger, ok
}

// GetWebhookReceiver returns the WebhookReceiver for the given platform, or
// false if the platform is unknown or serves no webhooks.
func (r *Registry) GetWebhookReceiver(p Platform) (WebhookReceiver, bool) {
	adapter, ok := r.Get(p)
	if !ok {
		return nil, false
	}
	receiver, ok := adapter.(WebhookReceiver)
	return receiver, ok
}
