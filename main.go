package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lumeris/lumeris/config"
	"github.com/lumeris/lumeris/internal/keyvault"
	"github.com/lumeris/lumeris/internal/setup"
	"github.com/lumeris/lumeris/internal/storage/submissions"
	"github.com/lumeris/lumeris/internal/wallet"
	"github.com/lumeris/lumeris/internal/web"
)

const defaultConfigPath = "config.yaml"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	conf, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	if conf.RunSetup {
		if err := setup.RunTUI(defaultConfigPath, conf.VaultDir); err != nil {
			logger.Fatal("setup wizard failed", zap.Error(err))
		}
		return
	}

	vault, err := keyvault.NewFileVault(conf.VaultDir)
	if err != nil {
		logger.Fatal("failed to open key vault", zap.Error(err))
	}

	journal, err := submissions.NewWALStore(conf.JournalDir)
	if err != nil {
		logger.Fatal("failed to open submission journal", zap.Error(err))
	}
	defer journal.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := wallet.New(vault, journal, conf.PollInterval, logger.Named("wallet"))

	if conf.ImportSecret != "" {
		if _, err := w.ImportKey(ctx, conf.ImportSecret); err != nil {
			logger.Fatal("failed to import signing key from environment", zap.Error(err))
		}
	}

	if err := w.Connect(ctx, conf.Network); err != nil {
		logger.Fatal("failed to connect wallet", zap.Error(err))
	}
	defer w.Disconnect()

	server := web.NewServer(conf.ListenAddr, w, journal, logger.Named("web"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	logger.Info("wallet API listening", zap.String("addr", conf.ListenAddr), zap.String("network", string(conf.Network)))

	if err := g.Wait(); err != nil {
		logger.Fatal("wallet stopped with error", zap.Error(err))
	}
	logger.Info("wallet stopped")
}
