package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/cicsync/pkg/models"
)

func txOn(day, label, amount string) models.Transaction {
	d, _ := time.Parse(time.DateOnly, day)
	return models.Transaction{Date: d, Label: label, Amount: decimal.RequireFromString(amount)}
}

func TestFilters(t *testing.T) {
	f := filters{startDate: "2024-03-01", endDate: "2024-03-31", minAmount: -100, maxAmount: 50, payee: "carrefour"}
	keep, err := f.toFilterFunc()
	require.NoError(t, err)

	assert.True(t, keep(txOn("2024-03-01", "PAIEMENT CB CARREFOUR", "-12.50")))
	assert.True(t, keep(txOn("2024-03-31", "Carrefour Market", "50")))
	assert.False(t, keep(txOn("2024-02-29", "CARREFOUR", "-12.50")))
	assert.False(t, keep(txOn("2024-04-01", "CARREFOUR", "-12.50")))
	assert.False(t, keep(txOn("2024-03-10", "CARREFOUR", "-150")))
	assert.False(t, keep(txOn("2024-03-10", "CARREFOUR", "51")))
	assert.False(t, keep(txOn("2024-03-10", "LOYER", "-10")))
}

func TestFiltersEmptyKeepsEverything(t *testing.T) {
	keep, err := (&filters{}).toFilterFunc()
	require.NoError(t, err)
	assert.True(t, keep(txOn("1999-01-01", "anything", "-99999")))
}

func TestFiltersRejectBadDates(t *testing.T) {
	_, err := (&filters{startDate: "2024/03/01"}).toFilterFunc()
	assert.Error(t, err)
}
