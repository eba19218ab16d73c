package parser

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/cicsync/pkg/models"
	"github.com/yurifrl/cicsync/pkg/workbook"
)

// Layout of the export.
const (
	accountHeaderRows   = 3
	operationHeaderRows = 5
	operationFooterRows = 3
	accountCells        = 4
	operationCells      = 5

	// rows of five characters or fewer only hold separators
	minRowLength = 6

	sortCode    = "30027"
	sheetPrefix = "Cpt "
)

type Parser struct {
	logger     *log.Logger
	classifier *Classifier
	location   *time.Location
	now        func() time.Time
}

type Option func(*Parser)

func WithClassifier(c *Classifier) Option {
	return func(p *Parser) {
		if c != nil {
			p.classifier = c
		}
	}
}

// WithLocation sets the timezone statement dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithClock overrides the import timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

func New(logger *log.Logger, opts ...Option) *Parser {
	p := &Parser{
		logger:     logger,
		classifier: DefaultClassifier(),
		location:   loadLocation(DefaultLocation),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseWorkbook reads the account list from the first sheet and the
// operations of each account from its own sheet.
func (p *Parser) ParseWorkbook(wb *workbook.Workbook) ([]models.Account, []models.Transaction) {
	accounts := p.ParseAccounts(wb.First())
	p.logger.Debug("parsed accounts", "count", len(accounts))

	var transactions []models.Transaction
	for _, account := range accounts {
		name := SheetName(account)
		rows, ok := wb.Sheet(name)
		if !ok {
			p.logger.Error("no sheet found", "sheet", name, "account", account.Number)
			continue
		}
		p.logger.Debug("parsing list of transactions", "sheet", name)
		transactions = append(transactions, p.ParseOperations(account, rows)...)
	}
	return accounts, transactions
}

// SheetName is the name of the sheet holding the operations of account.
func SheetName(account models.Account) string {
	return sheetPrefix + strings.TrimSpace(strings.Replace(account.RawNumber, sortCode, "", 1))
}

// ParseAccounts converts the rows of the account list sheet:
// label;number;balance;currency.
func (p *Parser) ParseAccounts(rows []string) []models.Account {
	if len(rows) <= accountHeaderRows {
		return nil
	}

	accounts := make([]models.Account, 0, len(rows)-accountHeaderRows)
	for i, row := range rows[accountHeaderRows:] {
		line := i + accountHeaderRows
		if len(row) < minRowLength {
			continue
		}
		cells := strings.Split(row, workbook.Separator)
		if len(cells) < accountCells {
			p.logger.Warn("account row has too few cells, skipping", "line", line, "cells", len(cells))
			continue
		}

		label := strings.TrimSpace(cells[0])
		balance, err := NormalizeAmount(cells[2])
		if err != nil {
			p.logger.Warn("invalid account balance", "line", line, "value", cells[2], "error", err)
		}
		accounts = append(accounts, models.NewAccount(
			label,
			p.classifier.AccountType(label),
			cells[1],
			balance,
			strings.TrimSpace(cells[3]),
		))
	}
	return accounts
}

// ParseOperations converts the rows of an account sheet:
// date;operation date;label;debit;credit.
func (p *Parser) ParseOperations(account models.Account, rows []string) []models.Transaction {
	if len(rows) <= operationHeaderRows+operationFooterRows {
		return nil
	}

	imported := p.now().UTC()
	body := rows[operationHeaderRows : len(rows)-operationFooterRows]
	transactions := make([]models.Transaction, 0, len(body))
	for i, row := range body {
		line := i + operationHeaderRows
		if len(row) < minRowLength {
			continue
		}
		cells := strings.Split(row, workbook.Separator)
		if len(cells) < operationCells {
			p.logger.Warn("operation row has too few cells, skipping", "line", line, "cells", len(cells))
			continue
		}

		date, dateOperation := p.dates(cells[0], cells[1], line, imported)

		tx := models.Transaction{
			Label:           cells[2],
			Type:            models.TypeNone,
			Date:            date,
			DateOperation:   dateOperation,
			DateImport:      imported,
			Currency:        account.Currency,
			VendorAccountID: account.Number,
			Amount:          decimal.Zero,
		}

		debit, credit := strings.TrimSpace(cells[3]), strings.TrimSpace(cells[4])
		switch {
		case debit != "":
			tx.Amount = p.amount(debit, line).Abs().Neg()
			tx.Type = p.classifier.DebitType(tx.Label)
		case credit != "":
			tx.Amount = p.amount(credit, line).Abs()
			tx.Type = p.classifier.CreditType(tx.Label)
		default:
			p.logger.Warn("could not find an amount in this operation", "line", line, "cells", cells)
		}
		transactions = append(transactions, tx)
	}

	AssignVendorIDs(account, transactions)
	return transactions
}

// dates reads the value and booking dates of a row. An unreadable date falls
// back to the other one, and to the import day when neither can be read.
func (p *Parser) dates(value, booking string, line int, imported time.Time) (time.Time, time.Time) {
	date, dateErr := ParseDate(value, p.location)
	dateOperation, opErr := ParseDate(booking, p.location)
	switch {
	case dateErr != nil && opErr != nil:
		p.logger.Warn("invalid operation dates, using import day", "line", line, "value", value, "booking", booking)
		date = midnight(imported.In(p.location), p.location)
		dateOperation = date
	case dateErr != nil:
		p.logger.Warn("invalid value date, using booking date", "line", line, "error", dateErr)
		date = dateOperation
	case opErr != nil:
		p.logger.Warn("invalid booking date, using value date", "line", line, "error", opErr)
		dateOperation = date
	}
	return date, dateOperation
}

func (p *Parser) amount(s string, line int) decimal.Decimal {
	d, err := NormalizeAmount(s)
	if err != nil {
		p.logger.Warn("invalid operation amount", "line", line, "value", s, "error", err)
	}
	return d
}
