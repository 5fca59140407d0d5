package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/config"
	"carteira/internal/ledger/memory"
	"carteira/internal/ledger/rest"
	applog "carteira/internal/log"
	"carteira/internal/session"
	"carteira/internal/storage"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		LedgerBackend: "rest",
		APIBaseURL:    "http://localhost:5000",
		APITimeout:    2 * time.Second,
		MemorySeedDir: "seed",
		SessionStore:  "memory",
		AMQPExchange:  "carteira",
	}

	bc, err := FromAppConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, RESTBackend, bc.Type)
	assert.Equal(t, MemoryStore, bc.SessionStore)
	assert.Equal(t, 2*time.Second, bc.APITimeout)
	assert.Equal(t, "seed", bc.DataDirectory)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)

	cfg.LedgerBackend = "sheets"
	_, err = FromAppConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid: rest, memory")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory everything", Config{Type: MemoryBackend, SessionStore: MemoryStore}, false},
		{"rest without url", Config{Type: RESTBackend, SessionStore: MemoryStore}, true},
		{"sqlite without path", Config{Type: MemoryBackend, SessionStore: SQLiteStore}, true},
		{"amqp without exchange", Config{Type: MemoryBackend, SessionStore: MemoryStore, AMQPURL: "amqp://x/"}, true},
		{"unknown type", Config{Type: "sheets", SessionStore: MemoryStore}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	f := NewFactory(applog.Discard())
	res, err := f.CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		DataDirectory: t.TempDir(),
		SessionStore:  MemoryStore,
	})
	require.NoError(t, err)
	t.Cleanup(func() { res.Cleanup() })

	assert.IsType(t, &memory.Store{}, res.Gateway)
	assert.IsType(t, &session.MemoryStore{}, res.Identity)
	assert.Nil(t, res.Events)

	invs, err := res.Gateway.ListInvestments(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, invs, "falls back to the built-in catalog")
}

func TestCreateRESTBackendWithSQLiteStore(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Type:          RESTBackend,
		APIBaseURL:    "http://127.0.0.1:5000",
		APITimeout:    time.Second,
		SessionStore:  SQLiteStore,
		SessionDBPath: filepath.Join(t.TempDir(), "carteira.db"),
	})
	require.NoError(t, err)

	assert.IsType(t, &rest.Client{}, res.Gateway)
	assert.IsType(t, &storage.SQLiteIdentityStore{}, res.Identity)
	assert.NoError(t, res.Cleanup())
}
