// Package main runs the HTTP API for the CEP crawl service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cepcrawler/internal/api"
	"cepcrawler/internal/config"
	"cepcrawler/internal/crawl"
	"cepcrawler/internal/id/uuid"
	"cepcrawler/internal/logging"
	"cepcrawler/internal/migrate"
	"cepcrawler/internal/queue"
	"cepcrawler/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DB.Migrate {
		if err := migrate.Run(cfg.DB.DSN); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	st, err := store.NewPostgres(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer st.Close()

	q, err := queue.NewSQSProvider(ctx, queue.SQSConfig{
		Region:          cfg.Queue.Region,
		Endpoint:        cfg.Queue.Endpoint,
		QueueURL:        cfg.Queue.QueueURL,
		AccessKeyID:     cfg.Queue.AccessKeyID,
		SecretAccessKey: cfg.Queue.SecretAccessKey,
	})
	if err != nil {
		logger.Fatal("queue init failed", zap.Error(err))
	}
	defer func() {
		_ = q.Close()
	}()

	service := crawl.NewService(st, q, uuid.New(), cfg.Crawl.MaxRange, logger.Named("crawl"))
	apiServer := api.NewServer(service, st, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
