package backend

import (
	"context"

	"spendsnap/internal/broadcast"
	"spendsnap/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// SessionContext is the shared state every component of one client
// instance receives explicitly: the tab-scoped store and the broadcast bus.
type SessionContext struct {
	KV      storage.KV
	Bus     broadcast.Bus
	Cleanup CleanupFunc
}

// Factory creates session contexts based on configuration
type Factory interface {
	CreateSessionContext(ctx context.Context, config Config) (*SessionContext, error)
}

// Config holds configuration for session context creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Broadcast; the in-process bus is used when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
}

// BackendType selects the key/value store behind the session context.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
