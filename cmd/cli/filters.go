package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yurifrl/cicsync/pkg/csv"
	"github.com/yurifrl/cicsync/pkg/models"
)

type filters struct {
	startDate string
	endDate   string
	minAmount float64
	maxAmount float64
	payee     string
}

// toFilterFunc compiles the flags into a CSV filter. Bounds are inclusive and
// a zero amount bound is ignored.
func (f *filters) toFilterFunc() (csv.FilterFunc, error) {
	var start, end time.Time
	var err error
	if f.startDate != "" {
		if start, err = time.Parse(time.DateOnly, f.startDate); err != nil {
			return nil, fmt.Errorf("invalid start date %q: %w", f.startDate, err)
		}
	}
	if f.endDate != "" {
		if end, err = time.Parse(time.DateOnly, f.endDate); err != nil {
			return nil, fmt.Errorf("invalid end date %q: %w", f.endDate, err)
		}
	}
	minAmount := decimal.NewFromFloat(f.minAmount)
	maxAmount := decimal.NewFromFloat(f.maxAmount)
	payee := strings.ToLower(f.payee)

	return func(t models.Transaction) bool {
		day, _ := time.Parse(time.DateOnly, t.Day())
		if !start.IsZero() && day.Before(start) {
			return false
		}
		if !end.IsZero() && day.After(end) {
			return false
		}
		if f.minAmount != 0 && t.Amount.LessThan(minAmount) {
			return false
		}
		if f.maxAmount != 0 && t.Amount.GreaterThan(maxAmount) {
			return false
		}
		if payee != "" && !strings.Contains(strings.ToLower(t.Label), payee) {
			return false
		}
		return true
	}, nil
}
