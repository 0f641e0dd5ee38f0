// Command sweep runs one reminder sweep: it expires past events and texts
// the holders of upcoming ones. It is meant to be started by a scheduler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/logging"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/notify"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/service"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/storage"
)

const runTimeout = 5 * time.Minute

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger, err := logging.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gdb, err := db.NewGormClient(cfg)
	if err != nil {
		logger.Errorw("failed to open database", "error", err)
		return err
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			logger.Warnw("failed to close database", "error", err)
		}
	}()

	s3, err := storage.NewS3(cfg, logger)
	if err != nil {
		logger.Errorw("failed to init storage", "error", err)
		return err
	}
	assets, err := service.NewAssets(s3, logger)
	if err != nil {
		logger.Errorw("failed to init assets", "error", err)
		return err
	}

	ledger := service.NewLedger(gdb, logger)
	catalog := service.NewCatalog(gdb, ledger, assets, logger)
	sweeper := service.NewSweeper(gdb, catalog, ledger, notify.NewTwilio(cfg, logger), cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if _, err := sweeper.Run(ctx); err != nil {
		logger.Errorw("sweep failed", "error", err)
		return err
	}
	return nil
}
