package ynab

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/brunomvsouza/ynab.go/api/transaction"
	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/cicsync/pkg/models"
)

type fakeTransactions struct {
	remote  map[string][]*Transaction
	created map[string][]transaction.PayloadTransaction
	err     error
}

func (f *fakeTransactions) GetTransactionsByAccount(_, accountID string) ([]*Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.remote[accountID], nil
}

func (f *fakeTransactions) CreateTransactions(_ string, payloads []transaction.PayloadTransaction) error {
	if f.created == nil {
		f.created = map[string][]transaction.PayloadTransaction{}
	}
	for _, p := range payloads {
		f.created[p.AccountID] = append(f.created[p.AccountID], p)
	}
	return nil
}

func remoteWithImportID(id string) *Transaction {
	return &Transaction{Transaction: &transaction.Transaction{ImportID: &id}}
}

func tx(account, vendorID, amount string) models.Transaction {
	return models.Transaction{
		VendorID:        vendorID,
		VendorAccountID: account,
		Label:           "PAIEMENT CB CARREFOUR",
		Date:            time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.RequireFromString(amount),
		Currency:        "EUR",
	}
}

func TestExport(t *testing.T) {
	svc := &fakeTransactions{remote: map[string][]*Transaction{
		"ynab-checking": {remoteWithImportID("123_2024-03-01_0"), {Transaction: &transaction.Transaction{}}},
	}}
	e := NewExporter(log.New(io.Discard), svc, "budget", map[string]string{"123": "ynab-checking"})

	n, err := e.Export(context.Background(), []models.Transaction{
		tx("123", "123_2024-03-01_0", "-10"),
		tx("123", "123_2024-03-01_1", "-12.345"),
		tx("999", "999_2024-03-01_0", "5"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, svc.created["ynab-checking"], 1)
	p := svc.created["ynab-checking"][0]
	assert.Equal(t, "123_2024-03-01_1", *p.ImportID)
	assert.Equal(t, int64(-12345), p.Amount)
	assert.Equal(t, transaction.ClearingStatusCleared, p.Cleared)
	assert.Equal(t, "PAIEMENT CB CARREFOUR", *p.PayeeName)
	assert.Equal(t, "2024-03-01", p.Date.Format(time.DateOnly))
}

func TestExportSharedYNABAccount(t *testing.T) {
	svc := &fakeTransactions{}
	e := NewExporter(log.New(io.Discard), svc, "budget", map[string]string{
		"123": "ynab-cash",
		"456": "ynab-cash",
	})
	txs := []models.Transaction{
		tx("123", "123_2024-03-01_0", "-10"),
		tx("456", "456_2024-03-01_0", "-20"),
	}

	plans, err := e.Plan(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, 1, plans["123"].MissingCount())
	assert.Equal(t, 1, plans["456"].MissingCount())

	n, err := e.Export(context.Background(), txs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, svc.created["ynab-cash"], 2)
	assert.Equal(t, "123_2024-03-01_0", *svc.created["ynab-cash"][0].ImportID)
	assert.Equal(t, "456_2024-03-01_0", *svc.created["ynab-cash"][1].ImportID)
}

func TestExportListError(t *testing.T) {
	svc := &fakeTransactions{err: errors.New("401 unauthorized")}
	e := NewExporter(log.New(io.Discard), svc, "budget", map[string]string{"123": "acc"})

	_, err := e.Export(context.Background(), []models.Transaction{tx("123", "x", "1")})
	assert.ErrorIs(t, err, svc.err)
}

func TestImportID(t *testing.T) {
	short := tx("1", "3002700012345601_2024-03-01_12", "1")
	assert.Equal(t, short.VendorID, ImportID(short))

	long := tx("1", strings.Repeat("9", 30)+"_2024-03-01_0", "1")
	id := ImportID(long)
	assert.Len(t, id, maxImportID)
	assert.True(t, strings.HasPrefix(id, "cic:"))
	assert.Equal(t, id, ImportID(long))
}

func TestMilliunits(t *testing.T) {
	assert.Equal(t, int64(42000), Milliunits(tx("1", "x", "42")))
	assert.Equal(t, int64(-1235), Milliunits(tx("1", "x", "-1.2345")))
	assert.Equal(t, int64(0), Milliunits(tx("1", "x", "0")))
}

func TestPayloadsTruncatesPayee(t *testing.T) {
	long := tx("1", "x", "1")
	long.Label = strings.Repeat("é", 80)
	payloads, err := Payloads("acc", []models.Transaction{long})
	require.NoError(t, err)
	assert.Equal(t, 50, len([]rune(*payloads[0].PayeeName)))
	assert.Equal(t, 80, len([]rune(*payloads[0].Memo)))
}
