// cmd/vidcat/main.go
//
// vidcat – command-line entry point.
//
// Commands
// --------
//
//	serve      ops listener: /healthz, /metrics, /stats, /collect
//	stats      print one site's visit summary as JSON
//	classify   show which query shape a template maps to
//
// Boot sequence (serve and stats)
// -------------------------------
//
//  1. Load config (conf/.env → conf/global.yaml → VIDCAT_ env), resolving
//     `vault:` values through a lazily dialled Vault client.
//
//  2. Start the daily rotating logger (tees to console in a TTY).
//
//  3. Open the document store, ensure indexes, and wrap it with the
//     instrumented decorator (per-op timeout, metrics, logging).
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/vidcat/internal/config"
	"github.com/yanizio/vidcat/internal/docstore"
	"github.com/yanizio/vidcat/internal/logger"
	"github.com/yanizio/vidcat/internal/vault"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vidcat:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vidcat",
		Short:         "Video catalog data layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newStatsCommand())
	cmd.AddCommand(newClassifyCommand())
	return cmd
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// app is everything serve and stats share after boot.
type app struct {
	cfg   *config.Config
	log   *zap.SugaredLogger
	store docstore.Store
}

// boot runs steps 1–3.  The Vault renewal loop lives as long as ctx.
func boot(ctx context.Context, tee bool) (*app, error) {
	cfg, err := config.Load(ctx, vault.NewLazy(ctx, zap.S().Infof))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Paths.Root, cfg.Log.Level, tee)
	if err != nil {
		return nil, fmt.Errorf("start logger: %w", err)
	}

	log.Infow("connecting to store", "database", cfg.Store.Database)
	openCtx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
	defer cancel()
	m, err := docstore.Open(openCtx, docstore.Options{
		URI:            cfg.Store.URI,
		Database:       cfg.Store.Database,
		ConnectTimeout: cfg.Store.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := m.EnsureIndexes(openCtx); err != nil {
		_ = m.Close(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	log.Infow("store online", "database", cfg.Store.Database)

	return &app{
		cfg:   cfg,
		log:   log,
		store: docstore.Instrument(m, cfg.Store.OpTimeout, log.Desugar()),
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Store.ConnectTimeout)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		a.log.Warnw("store close failed", "err", err)
	}
	_ = a.log.Sync()
}
