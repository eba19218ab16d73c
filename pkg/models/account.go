package models

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// InstitutionLabel is the display name of the bank.
const InstitutionLabel = "CIC"

// Account types produced by the label classifier.
const (
	AccountChecking        = "Checkings"
	AccountSavings         = "Savings"
	AccountLongTermSavings = "LongTermSavings"
	AccountLoan            = "Loan"
	AccountCreditCard      = "CreditCard"
	AccountOther           = "Other"
)

// Account is a bank account listed in the statement export.
type Account struct {
	ID               string          `json:"id,omitempty"`
	InstitutionLabel string          `json:"institutionLabel"`
	Label            string          `json:"label"`
	Type             string          `json:"type"`
	Balance          decimal.Decimal `json:"balance"`
	Number           string          `json:"number"`
	VendorID         string          `json:"vendorId"`
	RawNumber        string          `json:"rawNumber"`
	Currency         string          `json:"currency"`
}

// NormalizeNumber strips every whitespace rune from a raw account number.
func NormalizeNumber(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// NewAccount builds an account whose Number and VendorID derive from rawNumber.
func NewAccount(label, accountType, rawNumber string, balance decimal.Decimal, currency string) Account {
	number := NormalizeNumber(rawNumber)
	return Account{
		InstitutionLabel: InstitutionLabel,
		Label:            label,
		Type:             accountType,
		Balance:          balance,
		Number:           number,
		VendorID:         number,
		RawNumber:        rawNumber,
		Currency:         currency,
	}
}
