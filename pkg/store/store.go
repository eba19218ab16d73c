// Package store is the local sqlite database of a connector: accounts and
// transactions reconciled by vendor id, yearly balance histories, and the
// account-scoped secrets such as the session snapshot.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id          TEXT PRIMARY KEY,
	vendor_id   TEXT NOT NULL UNIQUE,
	institution TEXT NOT NULL,
	label       TEXT NOT NULL,
	type        TEXT NOT NULL,
	number      TEXT NOT NULL,
	raw_number  TEXT NOT NULL,
	currency    TEXT NOT NULL,
	balance     TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id                   TEXT PRIMARY KEY,
	vendor_id            TEXT NOT NULL UNIQUE,
	account_id           TEXT REFERENCES accounts(id),
	vendor_account_id    TEXT NOT NULL,
	label                TEXT NOT NULL,
	type                 TEXT NOT NULL,
	date                 TEXT NOT NULL,
	date_operation       TEXT NOT NULL,
	date_import          TEXT NOT NULL,
	currency             TEXT NOT NULL,
	amount               TEXT NOT NULL,
	category             TEXT NOT NULL DEFAULT '',
	category_probability REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS transactions_vendor_account_id ON transactions(vendor_account_id);

CREATE TABLE IF NOT EXISTS balance_histories (
	id         TEXT PRIMARY KEY,
	year       INTEGER NOT NULL,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	balances   TEXT NOT NULL,
	version    INTEGER NOT NULL,
	UNIQUE (year, account_id)
);

CREATE TABLE IF NOT EXISTS account_data (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
`

type Store struct {
	logger *log.Logger
	db     *sql.DB
	sealer *sealer
}

type Option func(*Store) error

// WithSecretKey seals account data with a key derived from secret.
func WithSecretKey(secret string) Option {
	return func(s *Store) error {
		if secret == "" {
			return nil
		}
		s.sealer = newSealer(secret)
		return nil
	}
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, logger *log.Logger, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{logger: logger, db: db}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	logger.Debug("database opened", "path", path)
	return s, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *Store) Close() error {
	return s.db.Close()
}
