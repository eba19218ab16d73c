package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TypeNone is the transaction type used when no lexicon entry matches.
const TypeNone = "none"

// Transaction is one bank operation parsed from the statement export.
type Transaction struct {
	ID              string          `json:"id,omitempty"`
	VendorID        string          `json:"vendorId"`
	VendorAccountID string          `json:"vendorAccountId"`
	Label           string          `json:"label"`
	Type            string          `json:"type"`
	Date            time.Time       `json:"date"`
	DateOperation   time.Time       `json:"dateOperation"`
	DateImport      time.Time       `json:"dateImport"`
	Currency        string          `json:"currency"`
	Amount          decimal.Decimal `json:"amount"`

	// Category fields are filled by an optional categorizer.
	Category            string  `json:"category,omitempty"`
	CategoryProbability float64 `json:"categoryProbability,omitempty"`
}

// Day returns the value date as YYYY-MM-DD, in the location the date was parsed in.
func (t Transaction) Day() string {
	return t.Date.Format(time.DateOnly)
}

// IsDebit reports whether money left the account.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}
