// Package balance keeps one balance observation per account and day.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/yurifrl/cicsync/pkg/models"
)

var ErrUnsavedAccount = errors.New("account has no id")

// Repository stores balance histories keyed by (year, account id).
type Repository interface {
	// BalanceHistory returns the stored record, or an empty one when none exists.
	BalanceHistory(ctx context.Context, year int, accountID string) (*models.BalanceHistory, error)
	SaveBalanceHistories(ctx context.Context, histories []*models.BalanceHistory) error
}

type Aggregator struct {
	logger   *log.Logger
	repo     Repository
	location *time.Location
	now      func() time.Time
	limit    int
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLocation sets the timezone "today" is computed in.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithConcurrency bounds the number of histories fetched at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

func New(logger *log.Logger, repo Repository, opts ...Option) *Aggregator {
	a := &Aggregator{
		logger:   logger,
		repo:     repo,
		location: time.UTC,
		now:      time.Now,
		limit:    4,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Update records today's balance of every account in its history for the
// current year. The histories are returned in account order, unsaved.
func (a *Aggregator) Update(ctx context.Context, accounts []models.Account) ([]*models.BalanceHistory, error) {
	today := a.now().In(a.location)
	year := today.Year()

	for _, acc := range accounts {
		if acc.ID == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsavedAccount, acc.VendorID)
		}
	}

	histories := make([]*models.BalanceHistory, len(accounts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for i, acc := range accounts {
		i, acc := i, acc
		g.Go(func() error {
			h, err := a.repo.BalanceHistory(ctx, year, acc.ID)
			if err != nil {
				return fmt.Errorf("failed to get balance history of %s: %w", acc.VendorID, err)
			}
			if h == nil {
				h = models.NewBalanceHistory(year, acc.ID)
			}
			h.Record(today, acc.Balance)
			histories[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Debug("balance histories updated", "count", len(histories), "day", today.Format(time.DateOnly))
	return histories, nil
}

// Sync is Update followed by saving the histories.
func (a *Aggregator) Sync(ctx context.Context, accounts []models.Account) ([]*models.BalanceHistory, error) {
	histories, err := a.Update(ctx, accounts)
	if err != nil {
		return nil, err
	}
	if err := a.repo.SaveBalanceHistories(ctx, histories); err != nil {
		return nil, fmt.Errorf("failed to save balance histories: %w", err)
	}
	a.logger.Info("balance histories saved", "count", len(histories))
	return histories, nil
}
