package broadcast

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("bus closed")

// Hub connects in-process buses; every bus attached to a hub sees every
// message published on any of them.
type Hub struct {
	mu    sync.Mutex
	buses map[*LocalBus]struct{}
}

func NewHub() *Hub {
	return &Hub{buses: make(map[*LocalBus]struct{})}
}

// Bus attaches a new instance to the hub.
func (h *Hub) Bus() *LocalBus {
	b := &LocalBus{hub: h, reg: newRegistry(), origin: newOrigin()}
	h.mu.Lock()
	h.buses[b] = struct{}{}
	h.mu.Unlock()
	return b
}

func (h *Hub) snapshot() []*LocalBus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*LocalBus, 0, len(h.buses))
	for b := range h.buses {
		out = append(out, b)
	}
	return out
}

// LocalBus delivers synchronously to every bus on its hub, itself included.
type LocalBus struct {
	hub    *Hub
	reg    *registry
	origin string

	mu     sync.Mutex
	closed bool
}

var _ Bus = (*LocalBus)(nil)

// NewLocalBus returns a bus on a private hub.
func NewLocalBus() *LocalBus {
	return NewHub().Bus()
}

func (b *LocalBus) Origin() string { return b.origin }

func (b *LocalBus) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	for _, peer := range b.hub.snapshot() {
		peer.reg.dispatch(ctx, msg)
	}
	return nil
}

func (b *LocalBus) Subscribe(key string, h Handler) func() {
	return b.reg.add(key, h)
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.hub.mu.Lock()
	delete(b.hub.buses, b)
	b.hub.mu.Unlock()
	return nil
}
