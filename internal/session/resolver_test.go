package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"spendsnap/internal/nav"
	"spendsnap/internal/storage"
)

type fakeLookup struct {
	ids   map[string]string
	err   error
	calls atomic.Int32
}

func (f *fakeLookup) ResolveUserID(_ context.Context, subject string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.ids[subject], nil
}

func newResolver(t *testing.T, lookup Lookup) (*Resolver, *Store, *nav.History) {
	t.Helper()
	store := NewStore(storage.NewMemoryKV())
	history := nav.NewHistory(nav.PathLanding)
	history.Push(nav.PathDashboard)
	return NewResolver(store, lookup, history, nil), store, history
}

func TestActivateWithoutToken(t *testing.T) {
	lookup := &fakeLookup{}
	r, _, history := newResolver(t, lookup)

	_, err := r.Activate(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if lookup.calls.Load() != 0 {
		t.Fatalf("no network call expected without a token")
	}
	if history.Location() != nav.PathLogin {
		t.Fatalf("location=%q", history.Location())
	}
	if back, _ := history.Back(); back != nav.PathLanding {
		t.Fatalf("dashboard should have been replaced, back=%q", back)
	}
}

func TestActivateMalformedBehavesLikeNoToken(t *testing.T) {
	for _, token := range []string{"abc", "a.b", "a.b.c.d", "abc.!!!.xyz"} {
		t.Run(token, func(t *testing.T) {
			lookup := &fakeLookup{ids: map[string]string{"joe": "1"}}
			r, store, history := newResolver(t, lookup)
			ctx := context.Background()
			_ = store.Set(ctx, token)

			var invalidated string
			r.OnInvalidate(func(_ context.Context, reason string) { invalidated = reason })

			_, err := r.Activate(ctx)
			if !errors.Is(err, ErrNoSession) || !errors.Is(err, ErrMalformedToken) {
				t.Fatalf("expected ErrNoSession wrapping ErrMalformedToken, got %v", err)
			}
			if lookup.calls.Load() != 0 {
				t.Fatalf("malformed token must not reach the backend")
			}
			if tok, _ := store.Get(ctx); tok != "" {
				t.Fatalf("malformed token kept: %q", tok)
			}
			if history.Location() != nav.PathLogin || invalidated == "" {
				t.Fatalf("location=%q invalidated=%q", history.Location(), invalidated)
			}
		})
	}
}

func TestActivateResolvesAndPersists(t *testing.T) {
	lookup := &fakeLookup{ids: map[string]string{"joe": "17"}}
	r, store, history := newResolver(t, lookup)
	ctx := context.Background()
	_ = store.Begin(ctx, "abc.eyJzdWIiOiJqb2UifQ.xyz", "joe")

	id, err := r.Activate(ctx)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if id.Subject != "joe" || id.UserID != "17" {
		t.Fatalf("identity=%+v", id)
	}
	snap, _ := store.Snapshot(ctx)
	if snap.UserID != "17" {
		t.Fatalf("user id not persisted: %+v", snap)
	}
	if history.Location() != nav.PathDashboard {
		t.Fatalf("should stay on dashboard, at %q", history.Location())
	}
}

func TestActivateReDerivesIdentityForNewToken(t *testing.T) {
	lookup := &fakeLookup{ids: map[string]string{"joe": "1", "ann": "2"}}
	r, store, _ := newResolver(t, lookup)
	ctx := context.Background()

	_ = store.Set(ctx, "abc.eyJzdWIiOiJqb2UifQ.xyz")
	if id, _ := r.Activate(ctx); id.UserID != "1" {
		t.Fatalf("joe resolved to %q", id.UserID)
	}

	_ = store.Set(ctx, "abc.eyJzdWIiOiJhbm4ifQ.xyz")
	id, err := r.Activate(ctx)
	if err != nil || id.UserID != "2" || id.Subject != "ann" {
		t.Fatalf("ann resolved to %+v err=%v", id, err)
	}
	if lookup.calls.Load() != 2 {
		t.Fatalf("expected a lookup per activation, got %d", lookup.calls.Load())
	}
}

func TestActivateFailureDestroysSession(t *testing.T) {
	tests := []struct {
		name   string
		lookup *fakeLookup
	}{
		{"network error", &fakeLookup{err: errors.New("connection refused")}},
		{"missing id", &fakeLookup{ids: map[string]string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, history := newResolver(t, tt.lookup)
			ctx := context.Background()
			_ = store.Set(ctx, "abc.eyJzdWIiOiJqb2UifQ.xyz")

			_, err := r.Activate(ctx)
			if !errors.Is(err, ErrResolveFailed) {
				t.Fatalf("expected ErrResolveFailed, got %v", err)
			}
			snap, _ := store.Snapshot(ctx)
			if snap.Authenticated() {
				t.Fatalf("session should be destroyed: %+v", snap)
			}
			if history.Location() != nav.PathLogin {
				t.Fatalf("location=%q", history.Location())
			}
		})
	}
}
