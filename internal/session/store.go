// Package session holds the authenticated session state of a client
// instance and turns a stored credential into a resolved user identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"spendsnap/internal/storage"
)

// BearerPrefix is stripped from credentials before storage.
const BearerPrefix = "Bearer "

var (
	ErrEmptyToken = errors.New("empty token")
	// ErrStaleIdentity is returned when an identity no longer matches the
	// stored credential, e.g. a new login happened during resolution.
	ErrStaleIdentity = errors.New("identity does not match current token")
)

// Session is a consistent view of the stored session.
type Session struct {
	RawToken string
	Subject  string
	UserID   string
}

// Authenticated reports whether a credential is present.
func (s Session) Authenticated() bool { return s.RawToken != "" }

// Resolved reports whether the user id has been resolved.
func (s Session) Resolved() bool { return s.RawToken != "" && s.UserID != "" }

// NormalizeToken removes one leading "Bearer " prefix.
func NormalizeToken(token string) string {
	return strings.TrimPrefix(token, BearerPrefix)
}

// Store is the token store of a session context. Every component that needs
// authentication state gets the same *Store explicitly; nothing reads the
// underlying key/value store behind its back.
type Store struct {
	mu sync.RWMutex
	kv storage.KV
}

func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// KV exposes the backing store for preference data that shares the
// session's lifecycle.
func (s *Store) KV() storage.KV { return s.kv }

// Set stores a new credential. Identity derived from a previous credential
// is removed in the same write.
func (s *Store) Set(ctx context.Context, token string) error {
	token = NormalizeToken(token)
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.SetMany(ctx, map[string]string{storage.KeyToken: token}, storage.KeyUsername, storage.KeyUserID)
}

// Begin stores a fresh credential with the username known at login time.
func (s *Store) Begin(ctx context.Context, token, username string) error {
	token = NormalizeToken(token)
	if token == "" {
		return ErrEmptyToken
	}
	set := map[string]string{storage.KeyToken: token}
	if username != "" {
		set[storage.KeyUsername] = username
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.SetMany(ctx, set, storage.KeyUserID)
}

// Get returns the bare credential, or "" when there is none.
func (s *Store) Get(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, _, err := s.kv.Get(ctx, storage.KeyToken)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

// SetIdentity records the resolved user id. It fails with ErrStaleIdentity
// unless subject is the claim of the credential currently stored.
func (s *Store) SetIdentity(ctx context.Context, subject, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, _, err := s.kv.Get(ctx, storage.KeyToken)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	current, err := Subject(token)
	if err != nil || current != subject {
		return ErrStaleIdentity
	}
	return s.kv.SetMany(ctx, map[string]string{
		storage.KeyUsername: subject,
		storage.KeyUserID:   userID,
	})
}

// Snapshot reads the whole session under one lock. The identity fields are
// dropped when they do not belong to the stored credential.
func (s *Store) Snapshot(ctx context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out Session
	var err error
	if out.RawToken, _, err = s.kv.Get(ctx, storage.KeyToken); err != nil {
		return Session{}, fmt.Errorf("read token: %w", err)
	}
	if out.RawToken == "" {
		return Session{}, nil
	}
	if out.Subject, _, err = s.kv.Get(ctx, storage.KeyUsername); err != nil {
		return Session{}, fmt.Errorf("read username: %w", err)
	}
	if out.UserID, _, err = s.kv.Get(ctx, storage.KeyUserID); err != nil {
		return Session{}, fmt.Errorf("read user id: %w", err)
	}
	if claim, err := Subject(out.RawToken); err == nil && out.Subject != claim {
		out.UserID = ""
	}
	return out, nil
}

// Clear removes the credential, identity and every other value sharing the
// session's lifecycle in one step.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
