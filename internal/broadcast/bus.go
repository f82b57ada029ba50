// Package broadcast propagates preference changes and session invalidation
// between client instances sharing one session context.
//
// Delivery is at-least-once with no ordering across keys, and the publisher
// receives its own messages. Handlers must therefore be idempotent.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is the wire form of a broadcast.
type Message struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Origin    string          `json:"origin"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handler receives messages for the key it was subscribed to.
type Handler func(ctx context.Context, msg Message)

type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe registers h for key and returns a function removing it.
	Subscribe(key string, h Handler) (unsubscribe func())
	// Origin identifies this instance in published messages.
	Origin() string
	Close() error
}

// Key is a typed broadcast key.
type Key[T any] struct {
	name string
}

func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) Name() string { return k.name }

// Keys used by the client.
var (
	MaskAmounts        = NewKey[bool]("mask_amounts")
	SessionInvalidated = NewKey[string]("session_invalidated")
)

// Publish encodes value and publishes it under key.
func Publish[T any](ctx context.Context, bus Bus, key Key[T], value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key.name, err)
	}
	return bus.Publish(ctx, Message{
		Key:       key.name,
		Value:     raw,
		Origin:    bus.Origin(),
		Timestamp: time.Now(),
	})
}

// Subscribe registers fn for key. Messages whose value does not decode as T
// are dropped.
func Subscribe[T any](bus Bus, key Key[T], fn func(ctx context.Context, value T, msg Message)) func() {
	return bus.Subscribe(key.name, func(ctx context.Context, msg Message) {
		var v T
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			return
		}
		fn(ctx, v, msg)
	})
}

func newOrigin() string {
	return uuid.NewString()
}

// registry is the subscriber table shared by bus implementations.
type registry struct {
	mu       sync.Mutex
	next     int
	handlers map[string]map[int]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]map[int]Handler)}
}

func (r *registry) add(key string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	if r.handlers[key] == nil {
		r.handlers[key] = make(map[int]Handler)
	}
	r.handlers[key][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.handlers[key], id)
		})
	}
}

// dispatch calls handlers outside the lock so a handler may publish or
// unsubscribe.
func (r *registry) dispatch(ctx context.Context, msg Message) int {
	r.mu.Lock()
	hs := make([]Handler, 0, len(r.handlers[msg.Key]))
	for _, h := range r.handlers[msg.Key] {
		hs = append(hs, h)
	}
	r.mu.Unlock()

	for _, h := range hs {
		h(ctx, msg)
	}
	return len(hs)
}
