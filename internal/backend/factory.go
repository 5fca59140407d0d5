package backend

import (
	"context"
	"errors"
	"fmt"

	"carteira/internal/amqp"
	"carteira/internal/ledger"
	"carteira/internal/ledger/memory"
	"carteira/internal/ledger/rest"
	applog "carteira/internal/log"
	"carteira/internal/session"
	"carteira/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend. AMQP is optional: a broker
// that cannot be reached is logged and the application runs without events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	gw, err := f.createGateway(config)
	if err != nil {
		return nil, err
	}

	identity, closeIdentity, err := f.createIdentityStore(config)
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Gateway: gw, Identity: identity}
	var closers []func() error
	if closeIdentity != nil {
		closers = append(closers, closeIdentity)
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client", "exchange", config.AMQPExchange)
			result.Events = client
			closers = append(closers, client.Close)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return result, nil
}

func (f *DefaultFactory) createGateway(config Config) (ledger.Gateway, error) {
	switch config.Type {
	case RESTBackend:
		client, err := rest.New(config.APIBaseURL,
			rest.WithTimeout(config.APITimeout),
			rest.WithLogger(f.logger.WithComponent(applog.ComponentLedger).Slog()))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize REST ledger client: %w", err)
		}
		f.logger.Info("Initialized REST ledger backend",
			"base_url", config.APIBaseURL,
			"timeout", config.APITimeout.String())
		return client, nil

	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		store := memory.NewFromFiles(dataDir)
		f.logger.Info("Initialized memory ledger backend", "data_directory", dataDir)
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createIdentityStore(config Config) (session.IdentityStore, func() error, error) {
	switch config.SessionStore {
	case SQLiteStore:
		store, err := storage.NewSQLiteIdentityStore(config.SessionDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize session store: %w", err)
		}
		f.logger.Info("Initialized SQLite session store", "db_path", config.SessionDBPath)
		return store, store.Close, nil

	case MemoryStore:
		f.logger.Info("Initialized in-memory session store, identity will not survive restarts")
		return session.NewMemoryStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported session store: %s", config.SessionStore)
	}
}
