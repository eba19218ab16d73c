package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/cicsync/pkg/config"
	"github.com/yurifrl/cicsync/pkg/connector"
	"github.com/yurifrl/cicsync/pkg/server"
	"github.com/yurifrl/cicsync/pkg/workbook"
)

func main() {
	flags := pflag.NewFlagSet("cicsync-server", pflag.ExitOnError)
	cfgFile := flags.StringP("config", "c", "", "Config file (default is config.yaml)")
	flags.String("server-addr", "", "Listen address")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("location", "", "Time zone of the statement dates")
	flags.String("lexicon", "", "YAML lexicon overriding the built-in one")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	logger := cfg.NewLogger("cicsync-server")
	logger.SetReportCaller(true)

	p, err := connector.NewParser(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build parser", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(logger, workbook.NewXLSDecoder(), p)
	logger.Info("starting server", "addr", cfg.Server.Addr)
	if err := srv.Start(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", "err", err)
	}
}
