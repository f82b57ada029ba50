// Package services wires the session layer, the gateway and the record
// views into the flows the client exposes: signing in and out, the monthly
// dashboard and saving accounts.
package services

import (
	"context"
	"fmt"

	"spendsnap/internal/api"
	"spendsnap/internal/broadcast"
	"spendsnap/internal/log"
	"spendsnap/internal/nav"
	"spendsnap/internal/session"
)

// AuthService signs users in and out and keeps every instance of the
// session context logged out together.
type AuthService struct {
	store       *session.Store
	client      *api.Client
	bus         broadcast.Bus
	nav         nav.Navigator
	logger      *log.Logger
	unsubscribe func()
}

func NewAuthService(store *session.Store, client *api.Client, bus broadcast.Bus, navigator nav.Navigator, logger *log.Logger) *AuthService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &AuthService{
		store:  store,
		client: client,
		bus:    bus,
		nav:    navigator,
		logger: logger.WithComponent(log.ComponentSession),
	}
	s.unsubscribe = broadcast.Subscribe(bus, broadcast.SessionInvalidated, s.remoteInvalidation)
	return s
}

// Login exchanges credentials for a token and starts a fresh session. The
// previous session, including its resolved identity, is wiped first.
func (s *AuthService) Login(ctx context.Context, creds api.Credentials) (session.Session, error) {
	token, err := s.client.Login(ctx, creds)
	if err != nil {
		return session.Session{}, err
	}

	if err := s.store.Clear(ctx); err != nil {
		return session.Session{}, fmt.Errorf("clear previous session: %w", err)
	}

	username, err := session.Subject(token)
	if err != nil {
		s.logger.WarnContext(ctx, "Token carries no readable subject, using entered username", log.FieldError, err)
		username = creds.Username
	}
	if err := s.store.Begin(ctx, token, username); err != nil {
		return session.Session{}, fmt.Errorf("store session: %w", err)
	}

	s.logger.InfoContext(ctx, "Signed in", log.FieldOperation, log.OpLogin, log.FieldSubject, username)
	if s.nav != nil {
		s.nav.Replace(nav.PathDashboard)
	}
	return s.store.Snapshot(ctx)
}

// Logout destroys the session here and in every other instance.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.Invalidated(ctx, "logout")
	if s.nav != nil {
		s.nav.Replace(nav.PathLogin)
	}
	s.logger.InfoContext(ctx, "Signed out", log.FieldOperation, log.OpLogout)
	return nil
}

// Register creates an account; the user signs in afterwards.
func (s *AuthService) Register(ctx context.Context, creds api.Credentials) (api.User, error) {
	u, err := s.client.Register(ctx, creds)
	if err != nil {
		return api.User{}, err
	}
	if s.nav != nil {
		s.nav.Replace(nav.PathLogin)
	}
	return u, nil
}

// Invalidated tells the other instances that this session is gone. It is
// the OnInvalidate hook of the gateway and the resolver.
func (s *AuthService) Invalidated(ctx context.Context, reason string) {
	if err := broadcast.Publish(ctx, s.bus, broadcast.SessionInvalidated, reason); err != nil {
		s.logger.WarnContext(ctx, "Failed to broadcast session invalidation", log.FieldError, err)
	}
}

func (s *AuthService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *AuthService) remoteInvalidation(ctx context.Context, reason string, msg broadcast.Message) {
	if msg.Origin == s.bus.Origin() {
		return
	}
	if err := s.store.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear session", log.FieldError, err)
		return
	}
	if s.nav != nil && nav.Private(s.nav.Location()) {
		s.nav.Replace(nav.PathLogin)
	}
	s.logger.InfoContext(ctx, "Session invalidated by another instance",
		log.FieldOrigin, msg.Origin,
		"reason", reason)
}
