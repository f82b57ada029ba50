package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"spendsnap/internal/storage"
)

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Bearer abc", "abc"},
		{"Bearer Bearer abc", "Bearer abc"}, // removed exactly once
		{"abc", "abc"},
		{"bearer abc", "bearer abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeToken(tt.in); got != tt.want {
			t.Errorf("NormalizeToken(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestStoreSetGetClear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := NewStore(kv)

	if tok, err := s.Get(ctx); err != nil || tok != "" {
		t.Fatalf("empty store returned %q err=%v", tok, err)
	}

	if err := s.Set(ctx, "Bearer abc.eyJzdWIiOiJqb2UifQ.xyz"); err != nil {
		t.Fatalf("set: %v", err)
	}
	tok, _ := s.Get(ctx)
	if tok != "abc.eyJzdWIiOiJqb2UifQ.xyz" {
		t.Fatalf("stored token %q still carries prefix", tok)
	}

	if err := s.Set(ctx, "Bearer "); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}

	_ = kv.Set(ctx, storage.KeyMaskAmounts, "1")
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap, _ := s.Snapshot(ctx)
	if snap.Authenticated() || snap.Subject != "" || snap.UserID != "" {
		t.Fatalf("session survived clear: %+v", snap)
	}
	if _, ok, _ := kv.Get(ctx, storage.KeyMaskAmounts); ok {
		t.Fatalf("preferences should be cleared with the session")
	}
}

func TestStoreIdentityBelongsToCurrentToken(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryKV())

	joe := "abc.eyJzdWIiOiJqb2UifQ.xyz" // {"sub":"joe"}
	ann := "abc.eyJzdWIiOiJhbm4ifQ.xyz" // {"sub":"ann"}

	if err := s.Begin(ctx, joe, "joe"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.SetIdentity(ctx, "joe", "42"); err != nil {
		t.Fatalf("set identity: %v", err)
	}
	snap, _ := s.Snapshot(ctx)
	if !snap.Resolved() || snap.Subject != "joe" || snap.UserID != "42" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	// A new credential drops the old identity in the same write.
	if err := s.Set(ctx, ann); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap, _ = s.Snapshot(ctx)
	if snap.UserID != "" || snap.Subject != "" {
		t.Fatalf("stale identity leaked into new session: %+v", snap)
	}

	// Identity resolved for the previous credential is refused.
	if err := s.SetIdentity(ctx, "joe", "42"); !errors.Is(err, ErrStaleIdentity) {
		t.Fatalf("expected ErrStaleIdentity, got %v", err)
	}
}

func TestStoreSnapshotNeverHalfUpdated(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemoryKV())
	joe := "abc.eyJzdWIiOiJqb2UifQ.xyz"
	ann := "abc.eyJzdWIiOiJhbm4ifQ.xyz"

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tok, sub, id := joe, "joe", "1"
			if i%2 == 1 {
				tok, sub, id = ann, "ann", "2"
			}
			_ = s.Set(ctx, tok)
			_ = s.SetIdentity(ctx, sub, id)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap, err := s.Snapshot(ctx)
			if err != nil {
				t.Errorf("snapshot: %v", err)
				return
			}
			if snap.UserID == "" {
				continue
			}
			if (snap.RawToken == joe) != (snap.UserID == "1") {
				t.Errorf("mixed session observed: %+v", snap)
				return
			}
		}
	}()
	wg.Wait()
}
