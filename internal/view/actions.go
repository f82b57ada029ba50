package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ActionKind names a mutation that must not be submitted twice.
type ActionKind string

const (
	ActionDelete   ActionKind = "delete"
	ActionDeposit  ActionKind = "deposit"
	ActionWithdraw ActionKind = "withdraw"
	ActionTransfer ActionKind = "transfer"
	ActionArchive  ActionKind = "archive"
	ActionUpdate   ActionKind = "update"
)

// ActionState is the lifecycle of a PendingAction.
type ActionState int

const (
	StateIdle ActionState = iota
	StateConfirming
	StateSubmitting
	StateDone
	StateFailed
)

func (s ActionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfirming:
		return "confirming"
	case StateSubmitting:
		return "submitting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("ActionState(%d)", int(s))
	}
}

var (
	ErrActionInFlight = errors.New("action already in progress")
	ErrInvalidState   = errors.New("invalid action state")
)

type actionKey struct {
	kind   ActionKind
	target int64
}

// Actions allows at most one active PendingAction per kind and target.
type Actions struct {
	mu     sync.Mutex
	active map[actionKey]*PendingAction
}

func NewActions() *Actions {
	return &Actions{active: make(map[actionKey]*PendingAction)}
}

// PendingAction is an in-flight mutation:
// idle -> confirming -> submitting -> done | failed.
// Cancel returns a confirming action to idle.
type PendingAction struct {
	Kind   ActionKind
	Target int64

	owner *Actions
	state ActionState
	err   error
}

// Begin opens the confirmation step for kind on target.
func (a *Actions) Begin(kind ActionKind, target int64) (*PendingAction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := actionKey{kind, target}
	if _, ok := a.active[key]; ok {
		return nil, fmt.Errorf("%s %d: %w", kind, target, ErrActionInFlight)
	}
	p := &PendingAction{Kind: kind, Target: target, owner: a, state: StateConfirming}
	a.active[key] = p
	return p, nil
}

// State returns the state of the active action for kind on target, or
// StateIdle when there is none.
func (a *Actions) State(kind ActionKind, target int64) ActionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.active[actionKey{kind, target}]; ok {
		return p.state
	}
	return StateIdle
}

// Run confirms and submits in one step, then calls fn.
func (a *Actions) Run(ctx context.Context, kind ActionKind, target int64, fn func(context.Context) error) error {
	p, err := a.Begin(kind, target)
	if err != nil {
		return err
	}
	if err := p.Submit(); err != nil {
		return err
	}
	err = fn(ctx)
	p.Finish(err)
	return err
}

func (p *PendingAction) State() ActionState {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.state
}

// Err returns the failure of a failed action.
func (p *PendingAction) Err() error {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	return p.err
}

// Submit moves a confirmed action to submitting.
func (p *PendingAction) Submit() error {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if p.state != StateConfirming {
		return fmt.Errorf("submit from %s: %w", p.state, ErrInvalidState)
	}
	p.state = StateSubmitting
	return nil
}

// Cancel abandons an action that has not been submitted.
func (p *PendingAction) Cancel() {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if p.state != StateConfirming {
		return
	}
	p.state = StateIdle
	p.release()
}

// Finish records the outcome of a submitted action and frees its slot.
func (p *PendingAction) Finish(err error) {
	p.owner.mu.Lock()
	defer p.owner.mu.Unlock()
	if p.state != StateSubmitting {
		return
	}
	if err != nil {
		p.state, p.err = StateFailed, err
	} else {
		p.state = StateDone
	}
	p.release()
}

func (p *PendingAction) release() {
	key := actionKey{p.Kind, p.Target}
	if p.owner.active[key] == p {
		delete(p.owner.active, key)
	}
}
