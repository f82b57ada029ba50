// Package storage holds the client-side key/value store that backs a
// session context: the bearer token, resolved identity and UI preferences.
//
// The store is scoped to a group of client instances the same way browser
// session storage is scoped to a tab: everything in it is cleared wholesale
// on logout or unrecoverable authentication failure.
package storage

import "context"

// Well-known keys.
const (
	KeyToken       = "token"
	KeyUsername    = "username"
	KeyUserID      = "userId"
	KeyMaskAmounts = "maskAmounts"
)

// KV is a string key/value store. SetMany and Clear must be atomic: a
// concurrent reader observes either all of the change or none of it.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes set and removes del in one atomic step.
	SetMany(ctx context.Context, set map[string]string, del ...string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Close() error
}
