package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/consignments/internal/config"
	"github.com/mamadbah2/consignments/internal/repository/mongodb"
	"github.com/mamadbah2/consignments/internal/repository/sheets"
	"github.com/mamadbah2/consignments/internal/scheduler"
	"github.com/mamadbah2/consignments/internal/server/handlers"
	"github.com/mamadbah2/consignments/internal/server/router"
	"github.com/mamadbah2/consignments/internal/service/dashboard"
	exportsvc "github.com/mamadbah2/consignments/internal/service/export"
	"github.com/mamadbah2/consignments/internal/service/reporting"
	"github.com/mamadbah2/consignments/pkg/clients/identity"
	"github.com/mamadbah2/consignments/pkg/logger"
	"github.com/mamadbah2/consignments/pkg/token"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	loc, err := cfg.Reporting.Location()
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoRepo, err := mongodb.NewMongoDBRepository(ctx, cfg.MongoDB.URI, cfg.MongoDB.DBName, logger.Named(baseLogger, "repo.mongodb"))
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	engine := reporting.NewEngine(loc)
	identityClient := identity.NewClient(cfg.Identity)
	registry := dashboard.NewRegistry(ctx, identityClient, mongoRepo, engine, logger.Named(baseLogger, "svc.dashboard"))
	defer registry.CloseAll()

	var exporter scheduler.Exporter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, logger.Named(baseLogger, "repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		exporter = exportsvc.NewService(mongoRepo, sheetsRepo, engine, logger.Named(baseLogger, "svc.export"))
	}

	sched := scheduler.NewScheduler(*cfg, exporter, registry, loc, logger.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	issuer := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handlerLogger := logger.Named(baseLogger, "handlers")
	httpEngine := router.New(router.Handlers{
		Auth:           handlers.NewAuthHandler(registry, issuer, handlerLogger),
		View:           handlers.NewViewHandler(registry, handlerLogger),
		Consignments:   handlers.NewConsignmentHandler(handlerLogger),
		RequireSession: handlers.RequireSession(issuer, registry, handlerLogger),
	}, logger.Named(baseLogger, "router"))

	// No write timeout: /api/events responses stay open.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           httpEngine,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		baseLogger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		baseLogger.Error("server stopped with error", zap.Error(err))
	}
}
