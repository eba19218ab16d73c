// Package report matches parsed transactions against the ones a sink already
// knows, by vendor id, and renders the result.
package report

import (
	"github.com/yurifrl/cicsync/pkg/models"
)

// Status is the reconciliation result for a parsed transaction.
type Status int

const (
	Synced Status = iota
	ToAdd
)

func (s Status) String() string {
	if s == Synced {
		return "synced"
	}
	return "to add"
}

// Entry links a parsed transaction to its reconciliation status.
type Entry struct {
	Local  models.Transaction
	Status Status
}

type Report struct {
	Items  []Entry
	toSync []models.Transaction
}

// Build reports every local transaction as Synced when its key is in known,
// ToAdd otherwise. A nil key func matches on the vendor id.
func Build(local []models.Transaction, known map[string]bool, key func(models.Transaction) string) *Report {
	if key == nil {
		key = func(t models.Transaction) string { return t.VendorID }
	}
	items := make([]Entry, 0, len(local))
	toSync := make([]models.Transaction, 0)
	for _, lt := range local {
		status := ToAdd
		if known[key(lt)] {
			status = Synced
		}
		items = append(items, Entry{Local: lt, Status: status})
		if status == ToAdd {
			toSync = append(toSync, lt)
		}
	}
	return &Report{Items: items, toSync: toSync}
}

// Merge appends the entries of other, keeping their order.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Items = append(r.Items, other.Items...)
	r.toSync = append(r.toSync, other.toSync...)
}

// InSyncCount returns how many local transactions are already known.
func (r *Report) InSyncCount() int {
	return len(r.Items) - len(r.toSync)
}

// MissingCount returns how many local transactions still need to be added.
func (r *Report) MissingCount() int {
	return len(r.toSync)
}

// TransactionsToSync returns the subset of local transactions not known yet.
func (r *Report) TransactionsToSync() []models.Transaction {
	return r.toSync
}
