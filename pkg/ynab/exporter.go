package ynab

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brunomvsouza/ynab.go/api"
	"github.com/brunomvsouza/ynab.go/api/transaction"
	"github.com/charmbracelet/log"

	"github.com/yurifrl/cicsync/pkg/models"
	"github.com/yurifrl/cicsync/pkg/report"
)

// Field limits of the YNAB API.
const (
	maxImportID = 36
	maxPayee    = 50
	maxMemo     = 200
)

// Transactions is the part of the YNAB API the exporter uses.
type Transactions interface {
	GetTransactionsByAccount(budgetID, accountID string) ([]*Transaction, error)
	CreateTransactions(budgetID string, payloads []transaction.PayloadTransaction) error
}

type Exporter struct {
	logger   *log.Logger
	svc      Transactions
	budgetID string
	accounts map[string]string
}

// NewExporter maps bank account numbers to YNAB account ids through accounts.
func NewExporter(logger *log.Logger, svc Transactions, budgetID string, accounts map[string]string) *Exporter {
	return &Exporter{
		logger:   logger,
		svc:      svc,
		budgetID: budgetID,
		accounts: accounts,
	}
}

// Plan reconciles txs against the import ids already in YNAB. Reports are
// keyed by bank account number, several of which may feed one YNAB account.
func (e *Exporter) Plan(ctx context.Context, txs []models.Transaction) (map[string]*report.Report, error) {
	byAccount := make(map[string][]models.Transaction)
	for _, t := range txs {
		byAccount[t.VendorAccountID] = append(byAccount[t.VendorAccountID], t)
	}
	numbers := make([]string, 0, len(byAccount))
	for n := range byAccount {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)

	plans := make(map[string]*report.Report, len(byAccount))
	for _, number := range numbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		accountID, ok := e.accounts[number]
		if !ok {
			e.logger.Warn("no YNAB account mapped, skipping", "account", number, "transactions", len(byAccount[number]))
			continue
		}
		remote, err := e.svc.GetTransactionsByAccount(e.budgetID, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to list YNAB transactions of %s: %w", number, err)
		}
		known := make(map[string]bool, len(remote))
		for _, rt := range remote {
			if id := rt.ImportID(); id != "" {
				known[id] = true
			}
		}
		plans[number] = report.Build(byAccount[number], known, ImportID)
	}
	return plans, nil
}

// Export creates the transactions YNAB does not know yet and returns how many
// were sent.
func (e *Exporter) Export(ctx context.Context, txs []models.Transaction) (int, error) {
	plans, err := e.Plan(ctx, txs)
	if err != nil {
		return 0, err
	}

	numbers := make([]string, 0, len(plans))
	for n := range plans {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)

	created := 0
	for _, number := range numbers {
		accountID := e.accounts[number]
		toSync := plans[number].TransactionsToSync()
		e.logger.Info("transactions to create", "count", len(toSync), "account", number, "account_id", accountID)
		if len(toSync) == 0 {
			continue
		}
		batch, err := Payloads(accountID, toSync)
		if err != nil {
			return created, err
		}
		if err := e.svc.CreateTransactions(e.budgetID, batch); err != nil {
			return created, fmt.Errorf("failed to create transactions: %w", err)
		}
		created += len(batch)
		e.logger.Info("created transactions", "count", len(batch), "account_id", accountID)
	}
	return created, nil
}

// Payloads converts transactions into YNAB API payloads.
func Payloads(accountID string, txs []models.Transaction) ([]transaction.PayloadTransaction, error) {
	out := make([]transaction.PayloadTransaction, 0, len(txs))
	for _, t := range txs {
		date, err := api.DateFromString(t.Date.Format(time.DateOnly))
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.VendorID, err)
		}
		importID := ImportID(t)
		payee := truncate(strings.TrimSpace(t.Label), maxPayee)
		memo := truncate(strings.TrimSpace(t.Label), maxMemo)
		out = append(out, transaction.PayloadTransaction{
			AccountID: accountID,
			Date:      date,
			Amount:    Milliunits(t),
			Cleared:   transaction.ClearingStatusCleared,
			Approved:  true,
			PayeeName: &payee,
			Memo:      &memo,
			ImportID:  &importID,
		})
	}
	return out, nil
}

// ImportID is the vendor id, or a hash of it when it exceeds the YNAB limit.
func ImportID(t models.Transaction) string {
	if len(t.VendorID) <= maxImportID {
		return t.VendorID
	}
	sum := sha256.Sum256([]byte(t.VendorID))
	return fmt.Sprintf("cic:%x", sum[:16])
}

// Milliunits converts the amount to YNAB milliunits.
func Milliunits(t models.Transaction) int64 {
	return t.Amount.Shift(3).Round(0).IntPart()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
