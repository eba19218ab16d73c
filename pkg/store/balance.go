package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yurifrl/cicsync/pkg/models"
)

// BalanceHistory returns the history of accountID for year, or a fresh empty
// record when none was stored yet.
func (s *Store) BalanceHistory(ctx context.Context, year int, accountID string) (*models.BalanceHistory, error) {
	h := models.NewBalanceHistory(year, accountID)
	var balances string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, balances, version FROM balance_histories WHERE year = ? AND account_id = ?`,
		year, accountID,
	).Scan(&h.ID, &balances, &h.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query balance history: %w", err)
	}
	if err := json.Unmarshal([]byte(balances), &h.Balances); err != nil {
		return nil, fmt.Errorf("decode balance history %s: %w", h.ID, err)
	}
	return h, nil
}

// SaveBalanceHistories creates or replaces the given histories. New records
// get their id assigned in place.
func (s *Store) SaveBalanceHistories(ctx context.Context, histories []*models.BalanceHistory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, h := range histories {
		balances, err := json.Marshal(h.Balances)
		if err != nil {
			return fmt.Errorf("encode balance history: %w", err)
		}
		id := h.ID
		if id == "" {
			id = uuid.NewString()
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO balance_histories (id, year, account_id, balances, version)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (year, account_id) DO UPDATE SET
				balances = excluded.balances,
				version = excluded.version
			RETURNING id`,
			id, h.Year, h.AccountID, string(balances), h.Version,
		).Scan(&h.ID)
		if err != nil {
			return fmt.Errorf("upsert balance history %d/%s: %w", h.Year, h.AccountID, err)
		}
	}
	return tx.Commit()
}
