package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lazycarbs-console/internal/config"
	"lazycarbs-console/internal/console"
	"lazycarbs-console/internal/credstore"
	"lazycarbs-console/internal/observability"
	"lazycarbs-console/internal/remote"
	"lazycarbs-console/internal/server"

	"go.uber.org/zap"
)

func main() {

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Logger
	err = observability.InitLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer observability.SyncLogger()

	if cfg.OTelLogs {
		logShutdown, err := observability.InitLogging(ctx, cfg.OTelLogLevel)
		if err != nil {
			panic(err)
		}
		defer logShutdown(ctx)
	}

	// Tracing
	traceShutdown, err := observability.InitTracing(ctx)
	if err != nil {
		panic(err)
	}
	defer traceShutdown(ctx)

	// Metrics
	metricShutdown, err := initMetrics(ctx)
	if err != nil {
		panic(err)
	}
	defer metricShutdown(ctx)

	// Session
	store, err := credstore.NewSQLiteStore(cfg.CredentialDB)
	if err != nil {
		observability.Logger.Fatal("opening credential store", zap.String("path", cfg.CredentialDB), zap.Error(err))
	}
	defer store.Close()

	client := remote.New(cfg.BackendURL, cfg.BackendTimeout)
	session := console.NewSession(ctx, client, store, cfg.CredentialHeader)
	session.Start(ctx)

	// Router
	router := server.NewRouter(console.NewHandler(session))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		observability.Logger.Info("server started",
			zap.String("addr", cfg.ListenAddr),
			zap.String("backend", client.BaseURL()),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()

	waitForShutdown(srv)
}

func waitForShutdown(srv *http.Server) {

	stop := make(chan os.Signal, 1)

	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.Shutdown(ctx)
}
