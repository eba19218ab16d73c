// Package ynab pushes parsed transactions to a YNAB budget. The vendor id is
// sent as import_id, so YNAB itself refuses duplicates across runs.
package ynab

import (
	"github.com/brunomvsouza/ynab.go"
	"github.com/brunomvsouza/ynab.go/api/account"
	"github.com/brunomvsouza/ynab.go/api/budget"
	"github.com/brunomvsouza/ynab.go/api/transaction"
)

// Client wraps the YNAB client with the calls the exporter needs.
type Client struct {
	client ynab.ClientServicer
}

// TransactionService wraps the ynab.go transaction service.
type TransactionService struct {
	svc *transaction.Service
}

// Transaction is a remote transaction with its import id unwrapped.
type Transaction struct {
	*transaction.Transaction
}

func New(token string) *Client {
	return &Client{client: ynab.NewClient(token)}
}

func (c *Client) Transaction() *TransactionService {
	return &TransactionService{svc: c.client.Transaction()}
}

func (c *Client) Budget() *budget.Service {
	return c.client.Budget()
}

func (c *Client) Account() *account.Service {
	return c.client.Account()
}

// ImportID is "" for transactions entered by hand.
func (t *Transaction) ImportID() string {
	if t == nil || t.Transaction == nil || t.Transaction.ImportID == nil {
		return ""
	}
	return *t.Transaction.ImportID
}

func (ts *TransactionService) GetTransactionsByAccount(budgetID, accountID string) ([]*Transaction, error) {
	remote, err := ts.svc.GetTransactionsByAccount(budgetID, accountID, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*Transaction, 0, len(remote))
	for _, tx := range remote {
		out = append(out, &Transaction{Transaction: tx})
	}
	return out, nil
}

// CreateTransactions creates multiple transactions in one API call.
func (ts *TransactionService) CreateTransactions(budgetID string, payloads []transaction.PayloadTransaction) error {
	if len(payloads) == 0 {
		return nil
	}
	_, err := ts.svc.CreateTransactions(budgetID, payloads)
	return err
}
