package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/yurifrl/cicsync/pkg/config"
	"github.com/yurifrl/cicsync/pkg/connector"
	"github.com/yurifrl/cicsync/pkg/csv"
	"github.com/yurifrl/cicsync/pkg/models"
	"github.com/yurifrl/cicsync/pkg/outcome"
	"github.com/yurifrl/cicsync/pkg/report"
	"github.com/yurifrl/cicsync/pkg/store"
	"github.com/yurifrl/cicsync/pkg/workbook"
)

var (
	cliFilters filters
	cfgFile    string
)

var rootCmd = &cobra.Command{
	Use:           "cicsync",
	Short:         "Synchronize CIC bank accounts and transactions",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Log in, download the statement and store accounts, transactions and balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *connector.Runtime) error {
			res, err := rt.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d accounts, %d transactions, %d exported\n", len(res.Accounts), len(res.Transactions), res.Exported)
			return nil
		})
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which downloaded transactions are not stored yet (dry-run)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *connector.Runtime) error {
			r, err := rt.Plan(ctx)
			if err != nil {
				return err
			}
			report.Print(os.Stdout, r)
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate once, validating the two-factor challenge if asked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *connector.Runtime) error {
			return rt.Login(ctx)
		})
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse [flags] <statement.xls>",
	Short: "Convert a downloaded statement to YNAB CSV, without touching the portal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Build(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		logger := cfg.NewLogger("cicsync")

		matches, err := filepath.Glob(args[0])
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("no files found matching pattern %s", args[0])
		}

		p, err := connector.NewParser(cfg, logger)
		if err != nil {
			return err
		}
		decoder := workbook.NewXLSDecoder()
		filter, err := cliFilters.toFilterFunc()
		if err != nil {
			return err
		}
		pretty, _ := cmd.Flags().GetBool("pretty")

		var all []models.Transaction
		for _, match := range matches {
			data, err := os.ReadFile(match)
			if err != nil {
				logger.Warn("failed to read file", "error", err, "file", match)
				continue
			}
			wb, err := decoder.Decode(data)
			if err != nil {
				logger.Warn("failed to process file", "error", err, "file", match)
				continue
			}
			accounts, txs := p.ParseWorkbook(wb)
			logger.Debug("parsed statement", "file", match, "accounts", len(accounts), "transactions", len(txs))
			all = append(all, txs...)
		}
		sort.SliceStable(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })

		if pretty {
			kept := make([]models.Transaction, 0, len(all))
			for _, t := range all {
				if filter(t) {
					kept = append(kept, t)
				}
			}
			pp.Println(kept)
			return nil
		}
		_, err = os.Stdout.Write(csv.Create(all, filter))
		return err
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the accounts stored by previous syncs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			accounts, err := st.Accounts(ctx)
			if err != nil {
				return err
			}
			for _, a := range accounts {
				fmt.Printf("%-20s %-16s %-15s %12s %s\n", a.Number, a.Type, a.Label, a.Balance.StringFixed(2), a.Currency)
			}
			return nil
		})
	},
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions [flags] <account_number>",
	Short: "Print the stored transactions of an account as YNAB CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := cliFilters.toFilterFunc()
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			txs, err := st.Transactions(ctx, models.NormalizeNumber(args[0]))
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(csv.Create(txs, filter))
			return err
		})
	},
}

// withStore opens the local database without touching the portal.
func withStore(cmd *cobra.Command, fn func(context.Context, *store.Store) error) error {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger := cfg.NewLogger("cicsync")

	ctx := cmd.Context()
	st, err := store.Open(ctx, logger, cfg.Database, store.WithSecretKey(cfg.SecretKey))
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("failed to close store", "err", err)
		}
	}()
	return fn(ctx, st)
}

// withRuntime loads and validates the configuration, wires the connector and
// hands it to fn under the run timeout.
func withRuntime(cmd *cobra.Command, fn func(context.Context, *connector.Runtime) error) error {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.NewLogger("cicsync")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	rt, err := connector.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("failed to close store", "err", err)
		}
	}()

	if err := fn(ctx, rt); err != nil {
		if sig := outcome.Signal(err); sig != "" {
			logger.Error("run failed", "signal", sig, "err", err)
		}
		return err
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default is config.yaml)")
	flags.String("language", "", "Portal language (fr, en, ...)")
	flags.String("login", "", "Portal login")
	flags.String("base-url", "", "Portal base URL")
	flags.String("database", "", "SQLite database path")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("location", "", "Time zone of the statement dates")
	flags.String("lexicon", "", "YAML lexicon overriding the built-in one")
	flags.Duration("timeout", 0, "Overall run timeout")

	for _, c := range []*cobra.Command{parseCmd, transactionsCmd} {
		c.Flags().StringVar(&cliFilters.startDate, "start", "", "Start date (YYYY-MM-DD)")
		c.Flags().StringVar(&cliFilters.endDate, "end", "", "End date (YYYY-MM-DD)")
		c.Flags().Float64Var(&cliFilters.minAmount, "min", 0, "Minimum amount")
		c.Flags().Float64Var(&cliFilters.maxAmount, "max", 0, "Maximum amount")
		c.Flags().StringVar(&cliFilters.payee, "payee", "", "Filter by payee (case insensitive)")
	}
	parseCmd.Flags().Bool("pretty", false, "Pretty-print transactions instead of CSV")

	rootCmd.AddCommand(syncCmd, planCmd, loginCmd, parseCmd, accountsCmd, transactionsCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(outcome.ExitCode(err))
}
