package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"trustmesh/internal/coordinator"
	"trustmesh/internal/platform/config"
	"trustmesh/internal/platform/httpserver"
	"trustmesh/internal/platform/logger"
	httptransport "trustmesh/internal/transport/http"
)

var _ httptransport.Service = (*coordinator.Coordinator)(nil)

// main wires the coordinator's dependencies, serves the admin API and runs
// the expiry janitor until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logger.New("error", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.close()

	handler := httptransport.NewHandler(deps.coordinator, log)
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		AdminToken:     cfg.AdminToken,
		RequestTimeout: cfg.RequestTimeout,
	}, log)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting trustmesh coordinator", "addr", cfg.Addr, "coordinator_id", cfg.CoordinatorID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := deps.coordinator.Run(gctx, cfg.JanitorInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if deps.revocations != nil {
		g.Go(func() error {
			return purgeRevocations(gctx, deps.revocations, cfg.JanitorInterval, log)
		})
	}
	if deps.auditSink != nil {
		g.Go(func() error {
			return deps.auditSink.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("coordinator stopped with error", "error", err)
		deps.close()
		os.Exit(1)
	}
	log.Info("coordinator stopped")
}
