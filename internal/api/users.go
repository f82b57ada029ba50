package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"spendsnap/internal/gateway"
	"spendsnap/internal/session"
)

var ErrNoToken = errors.New("no token returned from login")

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the backend's user representation.
type User struct {
	ID       ID     `json:"id"`
	UserID   ID     `json:"userId"`
	UserName string `json:"userName"`
}

// Identifier returns id, falling back to userId.
func (u User) Identifier() string {
	if u.ID != "" {
		return string(u.ID)
	}
	return string(u.UserID)
}

// Login returns the bare bearer token. The backend answers with the raw
// token, a JSON string, or {"token": "..."}; any of them may carry a
// "Bearer " prefix.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	var raw string
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/user/login",
		Body:   creds,
	}, &raw)
	if err != nil {
		return "", err
	}

	token := raw
	if strings.HasPrefix(raw, "{") {
		var wrapped struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err == nil {
			token = wrapped.Token
		}
	}
	token = session.NormalizeToken(strings.TrimSpace(token))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (c *Client) Register(ctx context.Context, creds Credentials) (User, error) {
	var u User
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/user/register",
		Body:   creds,
	}, &u)
	return u, err
}

func (c *Client) UserByName(ctx context.Context, name string) (User, error) {
	var u User
	err := c.gw.Do(ctx, gateway.Request{
		Path:  "/user/getUserByName",
		Query: url.Values{"name": {name}},
	}, &u)
	return u, err
}

// ResolveUserID maps a token subject to the backend user id.
func (c *Client) ResolveUserID(ctx context.Context, subject string) (string, error) {
	u, err := c.UserByName(ctx, subject)
	if err != nil {
		return "", err
	}
	return u.Identifier(), nil
}

var _ session.Lookup = (*Client)(nil)
