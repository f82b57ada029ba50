package services

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"spendsnap/internal/api"
	"spendsnap/internal/broadcast"
	"spendsnap/internal/cache"
	"spendsnap/internal/core"
	"spendsnap/internal/gateway"
	"spendsnap/internal/nav"
	"spendsnap/internal/session"
	"spendsnap/internal/storage"
)

// joeToken carries {"sub":"joe"} and is never verified client-side.
const joeToken = "abc.eyJzdWIiOiJqb2UifQ.xyz"

// instance is one client sharing a hub with its peers.
type instance struct {
	store     *session.Store
	history   *nav.History
	bus       broadcast.Bus
	gw        *gateway.Gateway
	client    *api.Client
	resolver  *session.Resolver
	auth      *AuthService
	dashboard *DashboardService
	accounts  *AccountService
}

func newInstance(t *testing.T, srv *httptest.Server, hub *broadcast.Hub) *instance {
	t.Helper()
	in := &instance{
		store:   session.NewStore(storage.NewMemoryKV()),
		history: nav.NewHistory(nav.PathDashboard),
		bus:     hub.Bus(),
	}
	gw, err := gateway.New(gateway.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, in.store, in.history)
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}
	in.gw = gw
	in.client = api.New(gw)
	in.resolver = session.NewResolver(in.store, in.client, in.history, nil)
	in.auth = NewAuthService(in.store, in.client, in.bus, in.history, nil)
	gw.OnInvalidate(in.auth.Invalidated)
	in.resolver.OnInvalidate(in.auth.Invalidated)

	charts := cache.NewLRUCache[core.MonthOverview](16, time.Minute)
	in.dashboard = NewDashboardService(in.resolver, in.client, charts, 10, nil)
	in.accounts = NewAccountService(in.client, 10, nil)
	t.Cleanup(in.auth.Close)
	return in
}

func newServer(t *testing.T, router *mux.Router) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func signIn(t *testing.T, in *instance) {
	t.Helper()
	if err := in.store.Begin(context.Background(), joeToken, "joe"); err != nil {
		t.Fatal(err)
	}
}
