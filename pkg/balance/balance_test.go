package balance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurifrl/cicsync/pkg/models"
)

type memoryRepo struct {
	mu        sync.Mutex
	histories map[string]*models.BalanceHistory
	err       error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{histories: map[string]*models.BalanceHistory{}}
}

func key(year int, accountID string) string {
	return fmt.Sprintf("%s/%d", accountID, year)
}

func (r *memoryRepo) BalanceHistory(_ context.Context, year int, accountID string) (*models.BalanceHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	h, ok := r.histories[key(year, accountID)]
	if !ok {
		return models.NewBalanceHistory(year, accountID), nil
	}
	cp := *h
	cp.Balances = make(map[string]decimal.Decimal, len(h.Balances))
	for k, v := range h.Balances {
		cp.Balances[k] = v
	}
	return &cp, nil
}

func (r *memoryRepo) SaveBalanceHistories(_ context.Context, hs []*models.BalanceHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hs {
		r.histories[key(h.Year, h.AccountID)] = h
	}
	return nil
}

func accounts(balances ...int64) []models.Account {
	out := make([]models.Account, 0, len(balances))
	for i, b := range balances {
		out = append(out, models.Account{
			ID:       string(rune('a' + i)),
			VendorID: string(rune('A' + i)),
			Balance:  decimal.NewFromInt(b),
		})
	}
	return out
}

func fixedClock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestUpdateOverwritesToday(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()
	morning := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

	first := New(log.New(io.Discard), repo, fixedClock(morning))
	_, err := first.Sync(ctx, accounts(100))
	require.NoError(t, err)

	evening := New(log.New(io.Discard), repo, fixedClock(morning.Add(10*time.Hour)))
	histories, err := evening.Sync(ctx, accounts(250))
	require.NoError(t, err)

	require.Len(t, histories, 1)
	h := histories[0]
	assert.Equal(t, 2024, h.Year)
	assert.Equal(t, "a", h.AccountID)
	assert.Len(t, h.Balances, 1)
	assert.True(t, h.Balances["2024-06-03"].Equal(decimal.NewFromInt(250)))
}

func TestUpdateKeepsOtherDays(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()
	day := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	_, err := New(log.New(io.Discard), repo, fixedClock(day)).Sync(ctx, accounts(1))
	require.NoError(t, err)
	histories, err := New(log.New(io.Discard), repo, fixedClock(day.AddDate(0, 0, 1))).Update(ctx, accounts(2))
	require.NoError(t, err)

	assert.Len(t, histories[0].Balances, 2)
	assert.True(t, histories[0].Balances["2024-06-03"].Equal(decimal.NewFromInt(1)))
	assert.True(t, histories[0].Balances["2024-06-04"].Equal(decimal.NewFromInt(2)))
}

func TestUpdateKeepsAccountOrder(t *testing.T) {
	a := New(log.New(io.Discard), newMemoryRepo(), WithConcurrency(2))
	histories, err := a.Update(context.Background(), accounts(1, 2, 3, 4, 5))
	require.NoError(t, err)

	require.Len(t, histories, 5)
	for i, h := range histories {
		assert.Equal(t, string(rune('a'+i)), h.AccountID)
	}
}

func TestUpdateUsesLocationForToday(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	lateUTC := time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC)

	a := New(log.New(io.Discard), newMemoryRepo(), fixedClock(lateUTC), WithLocation(paris))
	histories, err := a.Update(context.Background(), accounts(7))
	require.NoError(t, err)

	assert.Equal(t, 2024, histories[0].Year)
	assert.Contains(t, histories[0].Balances, "2024-01-01")
}

func TestUpdateRejectsUnsavedAccounts(t *testing.T) {
	a := New(log.New(io.Discard), newMemoryRepo())
	_, err := a.Update(context.Background(), []models.Account{{VendorID: "123"}})
	assert.ErrorIs(t, err, ErrUnsavedAccount)
}

func TestUpdateRepositoryError(t *testing.T) {
	repo := newMemoryRepo()
	repo.err = errors.New("database is locked")

	_, err := New(log.New(io.Discard), repo).Update(context.Background(), accounts(1, 2))
	assert.ErrorIs(t, err, repo.err)
}
