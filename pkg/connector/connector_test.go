package connector

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/cicsync/pkg/models"
	"github.com/yurifrl/cicsync/pkg/outcome"
	"github.com/yurifrl/cicsync/pkg/parser"
	"github.com/yurifrl/cicsync/pkg/workbook"
)

type fakeAuth struct {
	ok    bool
	err   error
	calls int
}

func (f *fakeAuth) Authenticate(_ context.Context, user, password string) (bool, error) {
	f.calls++
	return f.ok, f.err
}

type fakeFetcher struct {
	wb  *workbook.Workbook
	err error
}

func (f *fakeFetcher) Fetch(context.Context) (*workbook.Workbook, error) { return f.wb, f.err }

type fakeReconciler struct {
	accounts []models.Account
	txs      []models.Transaction
	known    map[string]map[string]bool
}

func (f *fakeReconciler) Save(_ context.Context, accounts []models.Account, txs []models.Transaction) ([]models.Account, error) {
	f.accounts, f.txs = accounts, txs
	out := make([]models.Account, len(accounts))
	for i, a := range accounts {
		a.ID = "id-" + a.VendorID
		out[i] = a
	}
	return out, nil
}

func (f *fakeReconciler) TransactionVendorIDs(_ context.Context, account string) (map[string]bool, error) {
	return f.known[account], nil
}

type fakeBalances struct{ accounts []models.Account }

func (f *fakeBalances) Sync(_ context.Context, accounts []models.Account) ([]*models.BalanceHistory, error) {
	f.accounts = accounts
	out := make([]*models.BalanceHistory, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, models.NewBalanceHistory(2024, a.ID))
	}
	return out, nil
}

type fakeSession struct {
	stored   []byte
	restored []byte
}

func (f *fakeSession) AccountData(context.Context, string) ([]byte, error) { return f.stored, nil }
func (f *fakeSession) Restore(data []byte) error {
	f.restored = data
	return nil
}

type categorizerFunc func([]models.Transaction) []models.Transaction

func (f categorizerFunc) Categorize(_ context.Context, txs []models.Transaction) ([]models.Transaction, error) {
	return f(txs), nil
}

type exporterFunc func([]models.Transaction) (int, error)

func (f exporterFunc) Export(_ context.Context, txs []models.Transaction) (int, error) { return f(txs) }

func testWorkbook() *workbook.Workbook {
	return workbook.FromRows([]string{"Comptes", "Cpt 123"}, map[string]workbook.Sheet{
		"Comptes": {"CIC", ";;;", "Compte;R.I.B.;Solde;Dev", "LIVRET A;30027 123;42,00;EUR"},
		"Cpt 123": {"...", "...", "...", "...", "Date;Valeur;Libellé;Débit;Crédit",
			"01/03/2024;01/03/2024;VIR SEPA;10,00;",
			"01/03/2024;01/03/2024;INTERETS;;1,00",
			"...", "...", ""},
	})
}

type fixture struct {
	auth       *fakeAuth
	reconciler *fakeReconciler
	balances   *fakeBalances
	session    *fakeSession
	deps       Deps
}

func newFixture() *fixture {
	f := &fixture{
		auth:       &fakeAuth{ok: true},
		reconciler: &fakeReconciler{},
		balances:   &fakeBalances{},
		session:    &fakeSession{},
	}
	logger := log.New(io.Discard)
	f.deps = Deps{
		SessionKey: "cookie_twofactor",
		Secrets:    f.session,
		Session:    f.session,
		Auth:       f.auth,
		Fetcher:    &fakeFetcher{wb: testWorkbook()},
		Parser:     parser.New(logger, parser.WithLocation(time.UTC)),
		Reconciler: f.reconciler,
		Balances:   f.balances,
	}
	return f
}

func (f *fixture) connector() *Connector {
	return New(log.New(io.Discard), Credentials{Login: "u", Password: "p"}, f.deps)
}

func TestRun(t *testing.T) {
	f := newFixture()
	f.session.stored = []byte(`{"version":1,"cookies":[]}`)

	res, err := f.connector().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, f.session.stored, f.session.restored)
	require.Len(t, res.Accounts, 1)
	assert.Equal(t, "id-30027123", res.Accounts[0].ID)
	assert.Len(t, f.reconciler.txs, 2)
	assert.Equal(t, "30027123_2024-03-01_1", f.reconciler.txs[1].VendorID)
	assert.True(t, f.reconciler.txs[0].Amount.Equal(decimal.NewFromInt(-10)))
	assert.Equal(t, res.Accounts, f.balances.accounts)
	assert.Len(t, res.Histories, 1)
	assert.Zero(t, res.Exported)
}

func TestRunCategorizesAndExports(t *testing.T) {
	f := newFixture()
	f.deps.Categorizer = categorizerFunc(func(txs []models.Transaction) []models.Transaction {
		for i := range txs {
			txs[i].Category = "400100"
			txs[i].CategoryProbability = 1
		}
		return txs
	})
	var exported []models.Transaction
	f.deps.Exporter = exporterFunc(func(txs []models.Transaction) (int, error) {
		exported = txs
		return len(txs), nil
	})

	res, err := f.connector().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "400100", f.reconciler.txs[0].Category)
	assert.Len(t, exported, 2)
	assert.Equal(t, 2, res.Exported)
}

func TestRunNotAuthenticated(t *testing.T) {
	f := newFixture()
	f.auth.ok = false

	_, err := f.connector().Run(context.Background())
	assert.ErrorIs(t, err, outcome.ErrLoginFailed)
	assert.Nil(t, f.reconciler.accounts)
}

func TestRunAuthenticationError(t *testing.T) {
	f := newFixture()
	f.auth.err = outcome.ErrUserActionNeeded

	_, err := f.connector().Run(context.Background())
	assert.ErrorIs(t, err, outcome.ErrUserActionNeeded)
}

func TestRunFetchError(t *testing.T) {
	f := newFixture()
	f.deps.Fetcher = &fakeFetcher{err: outcome.ErrVendorDown}

	_, err := f.connector().Run(context.Background())
	assert.ErrorIs(t, err, outcome.ErrVendorDown)
}

func TestRunExportError(t *testing.T) {
	f := newFixture()
	boom := errors.New("ynab down")
	f.deps.Exporter = exporterFunc(func([]models.Transaction) (int, error) { return 0, boom })

	_, err := f.connector().Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestPlan(t *testing.T) {
	f := newFixture()
	f.reconciler.known = map[string]map[string]bool{
		"30027123": {"30027123_2024-03-01_0": true},
	}

	r, err := f.connector().Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, r.InSyncCount())
	assert.Equal(t, 1, r.MissingCount())
	assert.Equal(t, "30027123_2024-03-01_1", r.TransactionsToSync()[0].VendorID)
	assert.Nil(t, f.reconciler.accounts, "plan must not write")
	assert.Nil(t, f.balances.accounts)
}

func TestLoginWithoutSavedSession(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.connector().Login(context.Background()))
	assert.Nil(t, f.session.restored)
	assert.Equal(t, 1, f.auth.calls)
}
