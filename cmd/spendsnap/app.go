package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"spendsnap/internal/api"
	"spendsnap/internal/backend"
	"spendsnap/internal/cache"
	"spendsnap/internal/config"
	"spendsnap/internal/core"
	"spendsnap/internal/gateway"
	"spendsnap/internal/log"
	"spendsnap/internal/nav"
	"spendsnap/internal/prefs"
	"spendsnap/internal/services"
	"spendsnap/internal/session"
)

const cacheCleanupInterval = time.Minute

// app is one client instance: a session context, its location history and
// the services built on them.
type app struct {
	out       io.Writer
	logger    *log.Logger
	history   *nav.History
	store     *session.Store
	sc        *backend.SessionContext
	gateway   *gateway.Gateway
	client    *api.Client
	resolver  *session.Resolver
	auth      *services.AuthService
	dashboard *services.DashboardService
	accounts  *services.AccountService
	masking   *prefs.Masking
	caches    *cache.Manager
}

func newApp(ctx context.Context, cfg *config.Config, sc *backend.SessionContext, logger *log.Logger, out io.Writer) (*app, error) {
	a := &app{
		out:     out,
		logger:  logger,
		history: nav.NewHistory(nav.PathLanding),
		store:   session.NewStore(sc.KV),
		sc:      sc,
		caches:  cache.NewManager(logger),
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.APITimeout,
		Cooldown: cfg.AuthFailureCooldown,
		Logger:   logger,
	}, a.store, a.history)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	a.gateway = gw
	a.client = api.New(gw)

	a.resolver = session.NewResolver(a.store, a.client, a.history, logger)
	a.auth = services.NewAuthService(a.store, a.client, sc.Bus, a.history, logger)
	gw.OnInvalidate(a.auth.Invalidated)
	a.resolver.OnInvalidate(a.auth.Invalidated)

	charts := cache.NewLRUCache[core.MonthOverview](cfg.ChartCacheSize, cfg.ChartCacheTTL)
	a.caches.Register(charts)
	a.caches.StartCleanup(ctx, cacheCleanupInterval)

	a.dashboard = services.NewDashboardService(a.resolver, a.client, charts, cfg.PageSize, logger)
	a.accounts = services.NewAccountService(a.client, cfg.PageSize, logger)

	a.masking, err = prefs.NewMasking(ctx, sc.KV, sc.Bus, logger)
	if err != nil {
		a.auth.Close()
		a.caches.Stop()
		return nil, fmt.Errorf("preferences: %w", err)
	}
	return a, nil
}

// visit navigates to path the way a page load would, honoring the auth
// guard. It reports whether the path was reached.
func (a *app) visit(ctx context.Context, path string) (bool, error) {
	s, err := a.store.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return a.history.Visit(path, s.Authenticated()) == path, nil
}

// open navigates to a private page; it fails when the guard redirects.
func (a *app) open(ctx context.Context, path string) error {
	ok, err := a.visit(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return session.ErrNoSession
	}
	return nil
}

// activate opens a private page and resolves the session for it.
func (a *app) activate(ctx context.Context, path string) (session.Identity, error) {
	if err := a.open(ctx, path); err != nil {
		return session.Identity{}, err
	}
	return a.resolver.Activate(ctx)
}

func (a *app) close() error {
	a.masking.Close()
	a.auth.Close()
	a.caches.Stop()
	return a.sc.Cleanup()
}

// describe turns an operation error into the line shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrResolveFailed):
		return "Not signed in. Run `spendsnap login` first."
	case errors.Is(err, gateway.ErrAuthExpired):
		return "Session expired. Please sign in again."
	}
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gateway.Message(err)
	}
	return err.Error()
}
