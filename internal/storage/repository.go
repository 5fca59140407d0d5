package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	applog "carteira/internal/log"
)

// SQLiteIdentityStore keeps the signed-in user id in a single-row table so the
// session survives restarts.
type SQLiteIdentityStore struct {
	db *sql.DB
}

func NewSQLiteIdentityStore(dbPath string) (*SQLiteIdentityStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteIdentityStore{db: db}, nil
}

func (s *SQLiteIdentityStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteIdentityStore) Load(ctx context.Context) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM session_identity WHERE slot = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load identity: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteIdentityStore) Save(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_identity (slot, user_id, saved_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET user_id = excluded.user_id, saved_at = excluded.saved_at`, id)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	slog.DebugContext(ctx, "Identity persisted",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOwnerID, id)
	return nil
}

func (s *SQLiteIdentityStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_identity`); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	slog.DebugContext(ctx, "Identity cleared", applog.FieldComponent, applog.ComponentStorage)
	return nil
}
