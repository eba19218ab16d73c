// Package csv renders transactions in the CSV layout YNAB imports:
// Date,Payee,Memo,Amount.
package csv

import (
	"bytes"
	"encoding/csv"
	"time"

	"github.com/yurifrl/cicsync/pkg/models"
)

type FilterFunc func(models.Transaction) bool

// Create renders the transactions kept by filter (all of them when nil). The
// vendor id goes in the memo so a later import can be matched back.
func Create(records []models.Transaction, filter FilterFunc) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Date", "Payee", "Memo", "Amount"})
	for _, r := range records {
		if filter != nil && !filter(r) {
			continue
		}
		_ = w.Write([]string{
			r.Date.Format(time.DateOnly),
			r.Label,
			r.VendorID,
			r.Amount.StringFixed(2),
		})
	}
	w.Flush()
	return buf.Bytes()
}
