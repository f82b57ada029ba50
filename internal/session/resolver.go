package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"spendsnap/internal/log"
	"spendsnap/internal/nav"
)

var (
	// ErrNoSession means there is no usable credential. Malformed
	// credentials are reported with this error too.
	ErrNoSession = errors.New("no session")
	// ErrResolveFailed means the backend could not resolve the credential's
	// subject to a user id; the session has been destroyed.
	ErrResolveFailed = errors.New("identity resolution failed")
)

// Lookup resolves an identity claim to the backend's durable user id.
type Lookup interface {
	ResolveUserID(ctx context.Context, subject string) (string, error)
}

// Identity is a resolved user.
type Identity struct {
	Subject string
	UserID  string
}

// InvalidateFunc is notified after a session has been destroyed.
type InvalidateFunc func(ctx context.Context, reason string)

// Resolver runs on every privileged view activation.
type Resolver struct {
	store        *Store
	lookup       Lookup
	nav          nav.Navigator
	logger       *log.Logger
	onInvalidate InvalidateFunc
	group        singleflight.Group
}

func NewResolver(store *Store, lookup Lookup, navigator nav.Navigator, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Discard()
	}
	return &Resolver{
		store:  store,
		lookup: lookup,
		nav:    navigator,
		logger: logger.WithComponent(log.ComponentSession),
	}
}

// OnInvalidate registers fn to run after the resolver destroys a session.
func (r *Resolver) OnInvalidate(fn InvalidateFunc) {
	r.onInvalidate = fn
}

// Activate resolves the current credential to an identity. Without a usable
// credential it routes to the login page and returns ErrNoSession without
// any network call. The user id is always derived from the current
// credential's claim, never reused from an earlier session.
func (r *Resolver) Activate(ctx context.Context) (Identity, error) {
	token, err := r.store.Get(ctx)
	if err != nil {
		return Identity{}, err
	}
	if token == "" {
		r.toLogin()
		return Identity{}, ErrNoSession
	}

	subject, err := Subject(token)
	if err != nil {
		r.logger.WarnContext(ctx, "Discarding malformed credential", log.FieldError, err)
		r.invalidate(ctx, "malformed token")
		return Identity{}, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	// Concurrent activations for the same credential share one lookup.
	v, err, _ := r.group.Do(token, func() (any, error) {
		return r.lookup.ResolveUserID(ctx, subject)
	})
	userID, _ := v.(string)
	userID = strings.TrimSpace(userID)
	if err == nil && userID == "" {
		err = errors.New("user id not found")
	}
	if err != nil {
		r.logger.WarnContext(ctx, "Identity resolution failed",
			log.FieldSubject, subject,
			log.FieldError, err)
		r.invalidate(ctx, "identity resolution failed")
		return Identity{}, fmt.Errorf("%w: %w", ErrResolveFailed, err)
	}

	if err := r.store.SetIdentity(ctx, subject, userID); err != nil {
		// A different credential was stored meanwhile; its own activation
		// will resolve it.
		return Identity{}, err
	}

	r.logger.DebugContext(ctx, "Identity resolved",
		log.FieldSubject, subject,
		log.FieldUserID, userID)
	return Identity{Subject: subject, UserID: userID}, nil
}

func (r *Resolver) invalidate(ctx context.Context, reason string) {
	if err := r.store.Clear(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to clear session", log.FieldError, err)
	}
	r.toLogin()
	if r.onInvalidate != nil {
		r.onInvalidate(ctx, reason)
	}
}

func (r *Resolver) toLogin() {
	if r.nav != nil && r.nav.Location() != nav.PathLogin {
		r.nav.Replace(nav.PathLogin)
	}
}
