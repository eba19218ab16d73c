package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/cicsync/pkg/models"
)

const timeLayout = time.RFC3339Nano

// Save upserts accounts and transactions by vendor id in one database
// transaction and returns the accounts with their persisted ids. A known
// transaction keeps its id and its first import date.
func (s *Store) Save(ctx context.Context, accounts []models.Account, transactions []models.Transaction) ([]models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	saved := make([]models.Account, len(accounts))
	ids := make(map[string]string, len(accounts))
	for i, a := range accounts {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO accounts (id, vendor_id, institution, label, type, number, raw_number, currency, balance, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (vendor_id) DO UPDATE SET
				institution = excluded.institution,
				label = excluded.label,
				type = excluded.type,
				number = excluded.number,
				raw_number = excluded.raw_number,
				currency = excluded.currency,
				balance = excluded.balance,
				updated_at = excluded.updated_at
			RETURNING id`,
			id, a.VendorID, a.InstitutionLabel, a.Label, a.Type, a.Number, a.RawNumber, a.Currency, a.Balance.String(), now,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("upsert account %s: %w", a.VendorID, err)
		}
		a.ID = id
		saved[i] = a
		ids[a.VendorID] = id
	}

	for _, t := range transactions {
		var accountID sql.NullString
		if id, ok := ids[t.VendorAccountID]; ok {
			accountID = sql.NullString{String: id, Valid: true}
		} else {
			s.logger.Warn("transaction of an unknown account", "vendor_id", t.VendorID, "account", t.VendorAccountID)
		}
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, vendor_id, account_id, vendor_account_id, label, type, date, date_operation, date_import, currency, amount, category, category_probability)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (vendor_id) DO UPDATE SET
				account_id = excluded.account_id,
				label = excluded.label,
				type = excluded.type,
				date = excluded.date,
				date_operation = excluded.date_operation,
				currency = excluded.currency,
				amount = excluded.amount,
				category = excluded.category,
				category_probability = excluded.category_probability`,
			id, t.VendorID, accountID, t.VendorAccountID, t.Label, t.Type,
			t.Date.Format(timeLayout), t.DateOperation.Format(timeLayout), t.DateImport.UTC().Format(timeLayout),
			t.Currency, t.Amount.String(), t.Category, t.CategoryProbability,
		)
		if err != nil {
			return nil, fmt.Errorf("upsert transaction %s: %w", t.VendorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("saved", "accounts", len(saved), "transactions", len(transactions))
	return saved, nil
}

// TransactionVendorIDs returns the vendor ids already stored for an account.
func (s *Store) TransactionVendorIDs(ctx context.Context, accountVendorID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT vendor_id FROM transactions WHERE vendor_account_id = ?`, accountVendorID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// Transactions returns the stored transactions of an account, by date then vendor id.
func (s *Store) Transactions(ctx context.Context, accountVendorID string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vendor_id, vendor_account_id, label, type, date, date_operation, date_import, currency, amount, category, category_probability
		FROM transactions
		WHERE vendor_account_id = ?
		ORDER BY date ASC, vendor_id ASC`, accountVendorID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var (
			t                        models.Transaction
			date, dateOp, dateImport string
			amount                   string
		)
		if err := rows.Scan(&t.ID, &t.VendorID, &t.VendorAccountID, &t.Label, &t.Type,
			&date, &dateOp, &dateImport, &t.Currency, &amount, &t.Category, &t.CategoryProbability); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Date, err = time.Parse(timeLayout, date); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.VendorID, err)
		}
		if t.DateOperation, err = time.Parse(timeLayout, dateOp); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.VendorID, err)
		}
		if t.DateImport, err = time.Parse(timeLayout, dateImport); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.VendorID, err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.VendorID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Accounts returns every stored account by label.
func (s *Store) Accounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vendor_id, institution, label, type, number, raw_number, currency, balance
		FROM accounts
		ORDER BY label ASC, vendor_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		var balance string
		if err := rows.Scan(&a.ID, &a.VendorID, &a.InstitutionLabel, &a.Label, &a.Type, &a.Number, &a.RawNumber, &a.Currency, &balance); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if a.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("account %s: %w", a.VendorID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
