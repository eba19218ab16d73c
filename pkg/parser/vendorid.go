package parser

import (
	"fmt"
	"regexp"

	"github.com/yurifrl/cicsync/pkg/models"
)

var whitespace = regexp.MustCompile(`\s`)

// AssignVendorIDs forges {account}_{YYYY-MM-DD}_{index} for every
// transaction, index being the position of the transaction among the ones
// of the same day, in row order. Identical input always yields identical ids.
func AssignVendorIDs(account models.Account, transactions []models.Transaction) {
	prefix := whitespace.ReplaceAllString(account.VendorID, "_")
	seen := make(map[string]int)
	for i := range transactions {
		day := transactions[i].Day()
		transactions[i].VendorID = fmt.Sprintf("%s_%s_%d", prefix, day, seen[day])
		seen[day]++
	}
}
