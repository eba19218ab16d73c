// Package connector runs one synchronization: restore the trusted-device
// session, log in, download and parse the export, then persist accounts,
// transactions and balance histories.
package connector

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/cicsync/pkg/models"
	"github.com/yurifrl/cicsync/pkg/outcome"
	"github.com/yurifrl/cicsync/pkg/report"
	"github.com/yurifrl/cicsync/pkg/workbook"
)

type Authenticator interface {
	Authenticate(ctx context.Context, user, password string) (bool, error)
}

type Fetcher interface {
	Fetch(ctx context.Context) (*workbook.Workbook, error)
}

type Parser interface {
	ParseWorkbook(wb *workbook.Workbook) ([]models.Account, []models.Transaction)
}

// Categorizer annotates transactions with category fields.
type Categorizer interface {
	Categorize(ctx context.Context, txs []models.Transaction) ([]models.Transaction, error)
}

// Reconciler upserts by vendor id and assigns persisted ids to accounts.
type Reconciler interface {
	Save(ctx context.Context, accounts []models.Account, txs []models.Transaction) ([]models.Account, error)
	TransactionVendorIDs(ctx context.Context, accountVendorID string) (map[string]bool, error)
}

type Balances interface {
	Sync(ctx context.Context, accounts []models.Account) ([]*models.BalanceHistory, error)
}

type Exporter interface {
	Export(ctx context.Context, txs []models.Transaction) (int, error)
}

// SessionStore loads the persisted snapshot and seeds the cookie jar with it.
type SessionStore interface {
	AccountData(ctx context.Context, key string) ([]byte, error)
}

type Restorer interface {
	Restore(data []byte) error
}

type Credentials struct {
	Login    string
	Password string
}

type Connector struct {
	logger      *log.Logger
	credentials Credentials
	sessionKey  string
	secrets     SessionStore
	session     Restorer
	auth        Authenticator
	fetcher     Fetcher
	parser      Parser
	categorizer Categorizer
	reconciler  Reconciler
	balances    Balances
	exporter    Exporter
}

type Deps struct {
	SessionKey  string
	Secrets     SessionStore
	Session     Restorer
	Auth        Authenticator
	Fetcher     Fetcher
	Parser      Parser
	Categorizer Categorizer
	Reconciler  Reconciler
	Balances    Balances
	Exporter    Exporter
}

func New(logger *log.Logger, credentials Credentials, deps Deps) *Connector {
	return &Connector{
		logger:      logger,
		credentials: credentials,
		sessionKey:  deps.SessionKey,
		secrets:     deps.Secrets,
		session:     deps.Session,
		auth:        deps.Auth,
		fetcher:     deps.Fetcher,
		parser:      deps.Parser,
		categorizer: deps.Categorizer,
		reconciler:  deps.Reconciler,
		balances:    deps.Balances,
		exporter:    deps.Exporter,
	}
}

// Result summarizes a run.
type Result struct {
	Accounts     []models.Account
	Transactions []models.Transaction
	Histories    []*models.BalanceHistory
	Exported     int
}

// Run performs a full synchronization. Authentication and transport failures
// end the run; parsing anomalies are only logged.
func (c *Connector) Run(ctx context.Context) (*Result, error) {
	accounts, txs, err := c.collect(ctx)
	if err != nil {
		return nil, err
	}

	if c.categorizer != nil {
		c.logger.Info("categorize the list of transactions")
		if txs, err = c.categorizer.Categorize(ctx, txs); err != nil {
			return nil, fmt.Errorf("failed to categorize transactions: %w", err)
		}
	}

	saved, err := c.reconciler.Save(ctx, accounts, txs)
	if err != nil {
		return nil, fmt.Errorf("failed to save accounts and transactions: %w", err)
	}

	c.logger.Info("retrieve the balance histories and add the balance of the day")
	histories, err := c.balances.Sync(ctx, saved)
	if err != nil {
		return nil, err
	}

	res := &Result{Accounts: saved, Transactions: txs, Histories: histories}
	if c.exporter != nil {
		if res.Exported, err = c.exporter.Export(ctx, txs); err != nil {
			return nil, fmt.Errorf("failed to export transactions: %w", err)
		}
	}
	c.logger.Info("synchronization done", "accounts", len(saved), "transactions", len(txs), "exported", res.Exported)
	return res, nil
}

// Plan logs in and parses like Run, then reports which transactions the
// store does not know yet. Nothing is written.
func (c *Connector) Plan(ctx context.Context) (*report.Report, error) {
	accounts, txs, err := c.collect(ctx)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[string][]models.Transaction)
	for _, t := range txs {
		byAccount[t.VendorAccountID] = append(byAccount[t.VendorAccountID], t)
	}

	r := &report.Report{}
	for _, a := range accounts {
		known, err := c.reconciler.TransactionVendorIDs(ctx, a.Number)
		if err != nil {
			return nil, fmt.Errorf("failed to list known transactions of %s: %w", a.Number, err)
		}
		part := report.Build(byAccount[a.Number], known, nil)
		c.logger.Debug("planned account", "account", a.Number, "in_sync", part.InSyncCount(), "to_add", part.MissingCount())
		r.Merge(part)
	}
	return r, nil
}

// Login restores the session and authenticates, persisting a new linking
// cookie when a challenge is validated.
func (c *Connector) Login(ctx context.Context) error {
	c.restore(ctx)

	c.logger.Info("authenticating")
	ok, err := c.auth.Authenticate(ctx, c.credentials.Login, c.credentials.Password)
	if err != nil {
		return err
	}
	if !ok {
		return outcome.ErrLoginFailed
	}
	c.logger.Info("successfully logged in")
	return nil
}

func (c *Connector) collect(ctx context.Context) ([]models.Account, []models.Transaction, error) {
	if err := c.Login(ctx); err != nil {
		return nil, nil, err
	}

	c.logger.Info("retrieve the statement containing the bank accounts and transactions")
	wb, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, nil, err
	}

	accounts, txs := c.parser.ParseWorkbook(wb)
	c.logger.Info("statement parsed", "accounts", len(accounts), "transactions", len(txs))
	return accounts, txs, nil
}

func (c *Connector) restore(ctx context.Context) {
	if c.secrets == nil || c.session == nil {
		return
	}
	data, err := c.secrets.AccountData(ctx, c.sessionKey)
	if err != nil {
		c.logger.Warn("failed to load the saved session", "error", err)
		return
	}
	if len(data) == 0 {
		return
	}
	if err := c.session.Restore(data); err != nil {
		c.logger.Warn("failed to restore the saved session", "error", err)
		return
	}
	c.logger.Info("found saved two factor token, using it")
}
