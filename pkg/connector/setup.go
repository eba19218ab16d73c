package connector

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/cicsync/pkg/auth"
	"github.com/yurifrl/cicsync/pkg/balance"
	"github.com/yurifrl/cicsync/pkg/config"
	"github.com/yurifrl/cicsync/pkg/endpoint"
	"github.com/yurifrl/cicsync/pkg/parser"
	"github.com/yurifrl/cicsync/pkg/session"
	"github.com/yurifrl/cicsync/pkg/statement"
	"github.com/yurifrl/cicsync/pkg/store"
	"github.com/yurifrl/cicsync/pkg/workbook"
	"github.com/yurifrl/cicsync/pkg/ynab"
)

// requestTimeout bounds a single portal request; the run timeout bounds the whole.
const requestTimeout = 2 * time.Minute

// Runtime is a connector wired to the portal, the local store and, when
// configured, YNAB.
type Runtime struct {
	*Connector
	Store *store.Store
}

// Setup builds a Runtime from cfg. The caller must Close it.
func Setup(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Runtime, error) {
	resolver, err := endpoint.New(logger, cfg.BaseURL, cfg.Language)
	if err != nil {
		return nil, err
	}
	logger.Info("base url", "host", resolver.Host())

	sess, err := session.New(logger, session.WithLinkingCookie(cfg.SessionCookie))
	if err != nil {
		return nil, err
	}
	client := sess.Client(requestTimeout)

	p, err := NewParser(cfg, logger)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", cfg.Location, err)
	}

	var exporter Exporter
	if cfg.YNABEnabled() {
		token := cfg.YNABToken()
		if token == "" {
			return nil, fmt.Errorf("YNAB export configured but $%s is empty", cfg.YNAB.TokenEnv)
		}
		exporter = ynab.NewExporter(logger, ynab.New(token).Transaction(), cfg.YNAB.BudgetID, cfg.YNAB.Accounts)
	}

	st, err := store.Open(ctx, logger, cfg.Database, store.WithSecretKey(cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	engine := auth.New(logger, client, resolver, sess,
		auth.WithSnapshotSaver(st.SessionSaver(store.SessionKey)),
		auth.WithPollPolicy(auth.PollPolicy{
			Attempts:  cfg.TwoFactor.Attempts,
			FirstWait: cfg.TwoFactor.FirstWait,
			Interval:  cfg.TwoFactor.Interval,
		}),
	)

	c := New(logger, Credentials{Login: cfg.Login, Password: cfg.Password}, Deps{
		SessionKey: store.SessionKey,
		Secrets:    st,
		Session:    sess,
		Auth:       engine,
		Fetcher:    statement.New(logger, client, resolver, workbook.NewXLSDecoder()),
		Parser:     p,
		Reconciler: st,
		Balances:   balance.New(logger, st, balance.WithLocation(loc)),
		Exporter:   exporter,
	})
	return &Runtime{Connector: c, Store: st}, nil
}

func (r *Runtime) Close() error {
	return r.Store.Close()
}

// NewParser builds the statement parser for cfg, loading the lexicon file
// when one is configured.
func NewParser(cfg *config.Config, logger *log.Logger) (*parser.Parser, error) {
	var opts []parser.Option
	if cfg.Lexicon != "" {
		classifier, err := parser.LoadClassifier(cfg.Lexicon)
		if err != nil {
			return nil, err
		}
		opts = append(opts, parser.WithClassifier(classifier))
	}
	if cfg.Location != "" {
		loc, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid location %q: %w", cfg.Location, err)
		}
		opts = append(opts, parser.WithLocation(loc))
	}
	return parser.New(logger, opts...), nil
}
