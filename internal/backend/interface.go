package backend

import (
	"context"
	"time"

	"carteira/internal/ledger"
	"carteira/internal/services"
	"carteira/internal/session"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains everything the application needs to talk to its
// collaborators, plus the function that releases them.
type BackendResult struct {
	Gateway  ledger.Gateway
	Identity session.IdentityStore
	// Events is nil when AMQP is disabled or unreachable.
	Events  services.EventPublisher
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// REST specific
	APIBaseURL string
	APITimeout time.Duration

	// Memory backend specific
	DataDirectory string

	// Identity persistence
	SessionStore  StoreType
	SessionDBPath string

	// Optional event publishing
	AMQPURL      string
	AMQPExchange string
}

// BackendType selects the ledger gateway implementation.
type BackendType string

const (
	RESTBackend   BackendType = "rest"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case RESTBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// StoreType selects where the signed-in identity is kept.
type StoreType string

const (
	SQLiteStore StoreType = "sqlite"
	MemoryStore StoreType = "memory"
)

func (st StoreType) IsValid() bool {
	return st == SQLiteStore || st == MemoryStore
}
