// Package nav models the client's location and navigation history.
package nav

import "sync"

// Routes of the client.
const (
	PathLanding        = "/"
	PathLogin          = "/login"
	PathRegister       = "/register"
	PathDashboard      = "/dashboard"
	PathAddExpense     = "/add"
	PathAddIncome      = "/add-income"
	PathSavingAccounts = "/saving-accounts"
)

// Navigator is the part of the history the session layer needs: where the
// user is, and a way to move without leaving a back-navigable entry.
type Navigator interface {
	Location() string
	Replace(path string)
}

// History is a browser-like stack of visited paths.
type History struct {
	mu      sync.Mutex
	entries []string
}

var _ Navigator = (*History)(nil)

func NewHistory(start string) *History {
	if start == "" {
		start = PathLanding
	}
	return &History{entries: []string{start}}
}

func (h *History) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1]
}

// Push adds a new entry.
func (h *History) Push(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, path)
}

// Replace swaps the current entry, so Back can never return to it.
func (h *History) Replace(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[len(h.entries)-1] = path
}

// Back pops the current entry. It reports false when there is nothing to
// go back to.
func (h *History) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) < 2 {
		return h.entries[0], false
	}
	h.entries = h.entries[:len(h.entries)-1]
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of entries in the history.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Private reports whether path requires an authenticated session.
func Private(path string) bool {
	switch path {
	case PathDashboard, PathAddExpense, PathAddIncome, PathSavingAccounts:
		return true
	}
	return false
}

// Guard returns where a request for path should land given the auth state.
func Guard(path string, authed bool) string {
	switch {
	case Private(path) && !authed:
		return PathLogin
	case (path == PathLogin || path == PathRegister) && authed:
		return PathDashboard
	case path == PathLanding, path == PathLogin, path == PathRegister, Private(path):
		return path
	default:
		return PathLanding
	}
}

// Visit applies Guard and navigates: allowed paths are pushed, redirects
// replace the current entry.
func (h *History) Visit(path string, authed bool) string {
	dest := Guard(path, authed)
	if dest == path {
		h.Push(dest)
	} else {
		h.Replace(dest)
	}
	return dest
}
