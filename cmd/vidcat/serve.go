package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanizio/vidcat/internal/adapter"
	"github.com/yanizio/vidcat/internal/analytics"
	"github.com/yanizio/vidcat/internal/mutation"
	"github.com/yanizio/vidcat/internal/server"
	"github.com/yanizio/vidcat/internal/visit"
)

// shutdownGrace bounds draining in-flight requests and visit writes.
const shutdownGrace = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := boot(ctx, runningInTTY())
	if err != nil {
		return err
	}
	defer a.close()

	zl := a.log.Desugar()
	engine := analytics.New(a.store, a.cfg.Store.Location(), zl)
	lookup := adapter.New(a.store, engine, zl)
	pipeline := mutation.New(a.store, lookup, zl)

	var geo visit.GeoLookup
	if path := a.cfg.Geo.DBPath; path != "" {
		reader, err := visit.OpenGeo(path)
		if err != nil {
			return fmt.Errorf("open geo db: %w", err)
		}
		defer reader.Close()
		geo = reader
		a.log.Infow("geo database loaded", "path", path)
	}
	rec := visit.NewRecorder(pipeline, geo, zl)
	rec.SetTimeout(a.cfg.Store.OpTimeout)

	srv := server.New(a.cfg.Ops.ListenAddr, server.Router(server.Deps{
		Store:  a.store,
		Stats:  engine,
		Visits: rec,
		Log:    zl,
	}))

	errCh := make(chan error, 1)
	go func() {
		a.log.Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	//
	// Drain: stop accepting, finish requests, then wait for visit writes
	// before the deferred store close runs.
	//
	a.log.Infow("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		a.log.Warnw("ops server shutdown", "err", err)
	}
	rec.Wait()
	return nil
}
