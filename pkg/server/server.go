// Package server exposes the offline part of the connector over HTTP: upload
// an export, get the parsed accounts and transactions back, download them as
// CSV, and optionally reconcile or push them to YNAB.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/cicsync/pkg/csv"
	"github.com/yurifrl/cicsync/pkg/models"
	"github.com/yurifrl/cicsync/pkg/parser"
	"github.com/yurifrl/cicsync/pkg/report"
	"github.com/yurifrl/cicsync/pkg/workbook"
	"github.com/yurifrl/cicsync/pkg/ynab"
)

//go:embed templates/*.html
var templates embed.FS

const maxUpload = 32 << 20

// Server handles HTTP requests for statement processing.
type Server struct {
	logger       *log.Logger
	mux          *http.ServeMux
	template     *template.Template
	decoder      workbook.Decoder
	parser       *parser.Parser
	ynab         func(token string) ynab.Transactions
	transactions sync.Map
}

type Option func(*Server)

// WithYNAB replaces the YNAB client factory.
func WithYNAB(factory func(token string) ynab.Transactions) Option {
	return func(s *Server) { s.ynab = factory }
}

// New creates a new HTTP server.
func New(logger *log.Logger, decoder workbook.Decoder, p *parser.Parser, opts ...Option) *Server {
	s := &Server{
		logger:   logger,
		mux:      http.NewServeMux(),
		template: template.Must(template.ParseFS(templates, "templates/*.html")),
		decoder:  decoder,
		parser:   p,
		ynab: func(token string) ynab.Transactions {
			return ynab.New(token).Transaction()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/", s.withLogging(s.handleHome))
	s.mux.HandleFunc("/api/parse", s.withLogging(s.handleParse))
	s.mux.HandleFunc("/api/apply", s.withLogging(s.handleApply))
	s.mux.HandleFunc("/api/files/", s.withLogging(s.handleFiles))
	s.mux.HandleFunc("/api/budgets", s.withLogging(s.handleBudgets))
	s.mux.HandleFunc("/api/budgets/", s.withLogging(s.handleBudgetAccounts))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, r, http.StatusNotFound, "not found", nil)
		return
	}
	if err := s.template.ExecuteTemplate(w, "index.html", nil); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to render page", err)
	}
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		s.respondError(w, r, http.StatusBadRequest, "token required", nil)
		return
	}

	budgets, err := ynab.New(token).Budget().GetBudgets()
	if err != nil {
		s.respondError(w, r, http.StatusBadGateway, "failed to fetch budgets", err)
		return
	}
	s.logger.Info("budgets response", "budgets_count", len(budgets))
	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"budgets": budgets,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleBudgetAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	budgetID := strings.TrimPrefix(r.URL.Path, "/api/budgets/")
	if budgetID == "" {
		s.respondError(w, r, http.StatusBadRequest, "budget_id required", nil)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		s.respondError(w, r, http.StatusBadRequest, "token required", nil)
		return
	}

	snapshot, err := ynab.New(token).Account().GetAccounts(budgetID, nil)
	if err != nil {
		s.respondError(w, r, http.StatusBadGateway, "failed to fetch accounts", err)
		return
	}
	var accounts any = []any{}
	if snapshot != nil && snapshot.Accounts != nil {
		accounts = snapshot.Accounts
	}
	s.logger.Info("accounts response", "budget_id", budgetID)
	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"accounts": accounts,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// Transaction is the JSON view of a parsed transaction.
type Transaction struct {
	VendorID string  `json:"vendorId"`
	Account  string  `json:"account"`
	Date     string  `json:"date"`
	Label    string  `json:"label"`
	Type     string  `json:"type"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	name, accounts, txs, ok := s.readStatement(w, r)
	if !ok {
		return
	}

	filename := strings.TrimSuffix(name, filepath.Ext(name)) + "-cicsync.csv"
	s.transactions.Store(filename, txs)

	data := make([]Transaction, len(txs))
	for i, t := range txs {
		data[i] = Transaction{
			VendorID: t.VendorID,
			Account:  t.VendorAccountID,
			Date:     t.Date.Format(time.DateOnly),
			Label:    t.Label,
			Type:     t.Type,
			Amount:   t.Amount.InexactFloat64(),
			Currency: t.Currency,
		}
	}

	var lines []string
	var toAdd, inSync int
	if exporter, ok := s.exporter(r); ok {
		plans, err := exporter.Plan(r.Context(), txs)
		if err != nil {
			s.respondError(w, r, http.StatusBadGateway, "failed to fetch remote transactions", err)
			return
		}
		for _, p := range plans {
			for _, e := range p.Items {
				prefix := "="
				if e.Status == report.ToAdd {
					prefix = "+"
				}
				lines = append(lines, fmt.Sprintf("%s %s | %-30s | %s %s | %s", prefix,
					e.Local.Date.Format(time.DateOnly), e.Local.Label, e.Local.Amount.StringFixed(2), e.Local.Currency, e.Local.VendorID))
			}
			toAdd += p.MissingCount()
			inSync += p.InSyncCount()
		}
		s.logger.Info("reconciliation complete", "file", name, "to_add", toAdd, "in_sync", inSync)
	}

	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"file":     filename,
		"accounts": accounts,
		"data":     data,
		"lines":    lines,
		"to_add":   toAdd,
		"in_sync":  inSync,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	name, _, txs, ok := s.readStatement(w, r)
	if !ok {
		return
	}
	exporter, ok := s.exporter(r)
	if !ok {
		s.respondError(w, r, http.StatusBadRequest, "token, budget_id, account and account_id required", nil)
		return
	}

	created, err := exporter.Export(r.Context(), txs)
	if err != nil {
		s.respondError(w, r, http.StatusBadGateway, "apply failed", err)
		return
	}
	s.logger.Info("applied statement", "file", name, "created", created)
	if err := s.writeJSON(w, http.StatusOK, map[string]any{"status": "applied", "created": created}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if filename == "" {
		s.respondError(w, r, http.StatusBadRequest, "filename required", nil)
		return
	}

	value, ok := s.transactions.Load(filename)
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "file not found", nil)
		return
	}
	txs, ok := value.([]models.Transaction)
	if !ok {
		s.respondError(w, r, http.StatusInternalServerError, "internal type assertion error", nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(csv.Create(txs, nil)); err != nil {
		s.logger.Warn("failed to write csv response", "err", err)
	}
}

// readStatement decodes and parses the uploaded "statement" file. It writes
// the error response itself and reports false on failure.
func (s *Server) readStatement(w http.ResponseWriter, r *http.Request) (string, []models.Account, []models.Transaction, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, header, err := r.FormFile("statement")
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read file", err)
		return "", nil, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to read file", err)
		return "", nil, nil, false
	}
	wb, err := s.decoder.Decode(data)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to process file", err)
		return "", nil, nil, false
	}

	accounts, txs := s.parser.ParseWorkbook(wb)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
	return filepath.Base(header.Filename), accounts, txs, true
}

// exporter builds a YNAB exporter for a single account mapping taken from
// the form, when all of its fields are present.
func (s *Server) exporter(r *http.Request) (*ynab.Exporter, bool) {
	token := r.FormValue("token")
	budgetID := r.FormValue("budget_id")
	account := r.FormValue("account")
	accountID := r.FormValue("account_id")
	if token == "" || budgetID == "" || account == "" || accountID == "" {
		return nil, false
	}
	return ynab.NewExporter(s.logger, s.ynab(token), budgetID, map[string]string{
		models.NormalizeNumber(account): accountID,
	}), true
}

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging wraps a handler to log requests and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}
