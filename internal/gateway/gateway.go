// Package gateway is the single egress point for backend calls. It attaches
// the stored credential, normalises failures into *Error and handles
// authentication expiry for the whole session context.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendsnap/internal/log"
	"spendsnap/internal/nav"
	"spendsnap/internal/session"
)

const (
	DefaultTimeout = 15 * time.Second

	maxResponseBytes = 4 << 20
)

// Config configures a Gateway. Zero values select defaults.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Cooldown  time.Duration
	Transport http.RoundTripper
	Logger    *log.Logger
	// Now is the clock used by the authentication failure guard.
	Now func() time.Time
}

// Request describes one backend call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type Gateway struct {
	baseURL      *url.URL
	client       *http.Client
	store        *session.Store
	nav          nav.Navigator
	guard        *authGuard
	logger       *log.Logger
	onInvalidate session.InvalidateFunc
}

func New(cfg Config, store *session.Store, navigator nav.Navigator) (*Gateway, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}

	return &Gateway{
		baseURL: base,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: log.Transport(cfg.Logger, cfg.Transport),
		},
		store:  store,
		nav:    navigator,
		guard:  newAuthGuard(cfg.Cooldown, cfg.Now),
		logger: cfg.Logger.WithComponent(log.ComponentGateway),
	}, nil
}

// OnInvalidate registers fn to run after the gateway destroys the session
// because of an authentication failure.
func (g *Gateway) OnInvalidate(fn session.InvalidateFunc) {
	g.onInvalidate = fn
}

// Handling reports whether an authentication failure was handled within the
// cooldown window.
func (g *Gateway) Handling() bool {
	return g.guard.handling()
}

// Do performs req and decodes a successful response into out. out may be
// nil, a *string for plain-text responses, or any JSON target. Calls are
// never retried.
func (g *Gateway) Do(ctx context.Context, req Request, out any) error {
	httpReq, err := g.newRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return &Error{Kind: KindNetwork, Method: httpReq.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Kind: KindNetwork, Method: httpReq.Method, Path: req.Path, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 400 {
		gerr := &Error{
			Kind:    classify(resp.StatusCode),
			Method:  httpReq.Method,
			Path:    req.Path,
			Status:  resp.StatusCode,
			Message: extractMessage(body),
		}
		if gerr.Kind == KindAuthExpired {
			g.authFailed(ctx)
		}
		return gerr
	}

	if err := decode(body, out); err != nil {
		return &Error{
			Kind:   KindServer,
			Method: httpReq.Method,
			Path:   req.Path,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func (g *Gateway) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := g.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, req.Path, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	token, err := g.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	// The store already holds the bare token.
	if token != "" {
		httpReq.Header.Set("Authorization", session.BearerPrefix+token)
	}
	return httpReq, nil
}

// authFailed destroys the session and routes to the login page, at most
// once per cooldown window and never while already on the login page.
func (g *Gateway) authFailed(ctx context.Context) {
	if g.nav != nil && g.nav.Location() == nav.PathLogin {
		return
	}
	if !g.guard.acquire() {
		g.logger.DebugContext(ctx, "Suppressed repeated authentication failure")
		return
	}

	g.logger.WarnContext(ctx, "Authentication expired, clearing session",
		log.FieldErrorType, log.ErrorTypeAuth)
	if err := g.store.Clear(ctx); err != nil {
		g.logger.ErrorContext(ctx, "Failed to clear session", log.FieldError, err)
	}
	if g.onInvalidate != nil {
		g.onInvalidate(ctx, "authentication expired")
	}
	if g.nav != nil {
		g.nav.Replace(nav.PathLogin)
	}
}

func decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if s, ok := out.(*string); ok {
		var quoted string
		if err := json.Unmarshal(body, &quoted); err == nil {
			*s = quoted
			return nil
		}
		*s = strings.TrimSpace(string(body))
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
