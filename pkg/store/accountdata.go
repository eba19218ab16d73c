package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/yurifrl/cicsync/pkg/session"
)

// SessionKey is the account data key of the session snapshot.
const SessionKey = "cookie_twofactor"

var ErrSealed = errors.New("account data cannot be opened with this secret key")

const nonceSize = 24

type sealer struct {
	key [32]byte
}

func newSealer(secret string) *sealer {
	return &sealer{key: sha256.Sum256([]byte(secret))}
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

func (s *sealer) open(box []byte) ([]byte, error) {
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealed
	}
	return plain, nil
}

// AccountData returns the value stored under key, or nil when there is none.
func (s *Store) AccountData(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM account_data WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account data: %w", err)
	}
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.open(value)
}

// SaveAccountData stores value under key, replacing any previous value.
func (s *Store) SaveAccountData(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if s.sealer != nil {
		sealed, err := s.sealer.seal(value)
		if err != nil {
			return err
		}
		value = sealed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_data (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save account data %s: %w", key, err)
	}
	return nil
}

// SessionSaver stores session snapshots under key.
func (s *Store) SessionSaver(key string) session.SnapshotSaver {
	return session.SnapshotSaverFunc(func(ctx context.Context, data []byte) error {
		return s.SaveAccountData(ctx, key, data)
	})
}
