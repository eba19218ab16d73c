package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceHistoryVersion is the document version written by this tool.
const BalanceHistoryVersion = 1

// BalanceHistory holds the observed balances of one account for one year,
// keyed by YYYY-MM-DD. There is at most one record per (Year, AccountID).
type BalanceHistory struct {
	ID        string                     `json:"id,omitempty"`
	Year      int                        `json:"year"`
	AccountID string                     `json:"accountId"`
	Balances  map[string]decimal.Decimal `json:"balances"`
	Version   int                        `json:"version"`
}

// NewBalanceHistory returns the implicit empty record for (year, accountID).
func NewBalanceHistory(year int, accountID string) *BalanceHistory {
	return &BalanceHistory{
		Year:      year,
		AccountID: accountID,
		Balances:  make(map[string]decimal.Decimal),
		Version:   BalanceHistoryVersion,
	}
}

// Record sets the balance observed on day, overwriting any earlier value for that day.
func (h *BalanceHistory) Record(day time.Time, balance decimal.Decimal) {
	if h.Balances == nil {
		h.Balances = make(map[string]decimal.Decimal)
	}
	h.Balances[day.Format(time.DateOnly)] = balance
}
