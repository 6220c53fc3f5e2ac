package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PostgresBackend persists keys in a single kv_entries table.
type PostgresBackend struct {
	db *sqlx.DB
}

// NewPostgresBackend opens the database and verifies the connection.
// Schema migrations are applied by the control layer before first use.
func NewPostgresBackend(ctx context.Context, cfg PostgresConfig) (*PostgresBackend, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresBackend{db: db}, nil
}

// DB exposes the raw connection for migration tooling.
func (b *PostgresBackend) DB() *sql.DB {
	return b.db.DB
}

// Close closes the database connection.
func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

func (b *PostgresBackend) Get(key string) (string, bool, error) {
	var value string
	err := b.db.Get(&value, `SELECT value FROM kv_entries WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres get: %w", err)
	}
	return value, true, nil
}

func (b *PostgresBackend) Set(key, value string) error {
	query := `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := b.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Remove(key string) error {
	if _, err := b.db.Exec(`DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres remove: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Keys(prefix string) ([]string, error) {
	var keys []string
	query := `SELECT key FROM kv_entries WHERE key LIKE $1 || '%' ORDER BY key ASC`
	if err := b.db.Select(&keys, query, prefix); err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	return keys, nil
}
