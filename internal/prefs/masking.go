// Package prefs holds UI preferences shared by every instance of a session
// context.
package prefs

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"spendsnap/internal/broadcast"
	"spendsnap/internal/core"
	"spendsnap/internal/log"
	"spendsnap/internal/storage"
)

// MaskedAmount replaces every amount while masking is on.
const MaskedAmount = "••••"

// Masking is the amount-masking flag. Changes are written to the session
// store, then broadcast; a broadcast from any instance updates the local
// flag and notifies listeners.
type Masking struct {
	kv     storage.KV
	bus    broadcast.Bus
	logger *log.Logger

	mu        sync.Mutex
	masked    bool
	listeners []func(bool)

	unsubscribe func()
}

// NewMasking loads the persisted flag and subscribes to remote changes.
func NewMasking(ctx context.Context, kv storage.KV, bus broadcast.Bus, logger *log.Logger) (*Masking, error) {
	if logger == nil {
		logger = log.Discard()
	}
	v, _, err := kv.Get(ctx, storage.KeyMaskAmounts)
	if err != nil {
		return nil, fmt.Errorf("load mask preference: %w", err)
	}

	m := &Masking{
		kv:     kv,
		bus:    bus,
		logger: logger.WithComponent(log.ComponentPrefs),
		masked: v == "1",
	}
	m.unsubscribe = broadcast.Subscribe(bus, broadcast.MaskAmounts, m.receive)
	return m, nil
}

func (m *Masking) Masked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masked
}

// OnChange registers fn to run whenever the flag changes value.
func (m *Masking) OnChange(fn func(masked bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Set persists the flag and broadcasts it.
func (m *Masking) Set(ctx context.Context, masked bool) error {
	if err := m.kv.Set(ctx, storage.KeyMaskAmounts, encode(masked)); err != nil {
		return fmt.Errorf("persist mask preference: %w", err)
	}
	m.apply(masked)

	if err := broadcast.Publish(ctx, m.bus, broadcast.MaskAmounts, masked); err != nil {
		// The local state and store are already updated; peers will catch
		// up on their next load.
		m.logger.WarnContext(ctx, "Failed to broadcast mask preference", log.FieldError, err)
	}
	return nil
}

// Toggle flips the flag and returns the new value.
func (m *Masking) Toggle(ctx context.Context) (bool, error) {
	next := !m.Masked()
	if err := m.Set(ctx, next); err != nil {
		return !next, err
	}
	return next, nil
}

// FormatAmount renders d with two decimals, or MaskedAmount when masked.
func (m *Masking) FormatAmount(d decimal.Decimal) string {
	if m.Masked() {
		return MaskedAmount
	}
	return core.FormatAmount(d)
}

func (m *Masking) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *Masking) receive(ctx context.Context, masked bool, msg broadcast.Message) {
	if !m.apply(masked) {
		return
	}
	// Peers with their own store keep it in step with the broadcast value.
	if err := m.kv.Set(ctx, storage.KeyMaskAmounts, encode(masked)); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist broadcast mask preference", log.FieldError, err)
	}
	m.logger.DebugContext(ctx, "Mask preference updated",
		log.FieldOrigin, msg.Origin,
		"masked", masked)
}

// apply updates the flag and notifies listeners. It reports whether the
// value changed, which makes duplicate deliveries no-ops.
func (m *Masking) apply(masked bool) bool {
	m.mu.Lock()
	if m.masked == masked {
		m.mu.Unlock()
		return false
	}
	m.masked = masked
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(masked)
	}
	return true
}

func encode(masked bool) string {
	if masked {
		return "1"
	}
	return "0"
}
