// Package main runs the queue worker for the CEP crawl service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cepcrawler/internal/clock/system"
	"cepcrawler/internal/config"
	"cepcrawler/internal/crawl"
	"cepcrawler/internal/logging"
	"cepcrawler/internal/notify"
	"cepcrawler/internal/queue"
	"cepcrawler/internal/ratelimit"
	"cepcrawler/internal/store"
	"cepcrawler/internal/viacep"
	"cepcrawler/internal/worker"
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

	var lookup viacep.Lookup = viacep.New(viacep.Config{
		BaseURL: cfg.ViaCEP.BaseURL,
		Timeout: cfg.ViaCEPTimeout(),
	}, logger.Named("viacep"))

	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("redis url invalid", zap.Error(err))
		}
		redisClient := redis.NewClient(redisOpts)
		defer func() {
			_ = redisClient.Close()
		}()
		lookup = viacep.NewCachedLookup(lookup, redisClient, cfg.RedisTTL(), logger.Named("cache"))
		logger.Info("lookup cache enabled")
	}

	var notifier notify.Publisher = notify.NoOpPublisher{}
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		pub, err := notify.NewPubSubPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			_ = pub.Close()
		}()
		notifier = pub
		logger.Info("completion events enabled", zap.String("topic", cfg.PubSub.TopicName))
	}

	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RateLimit.RequestsPerSecond})
	tracker := crawl.NewTracker(st, notifier, logger.Named("tracker"))

	w := worker.New(
		q,
		st,
		lookup,
		limiter,
		tracker,
		system.New(),
		worker.Config{
			MaxReceive:   cfg.Queue.MaxReceive,
			WaitTime:     time.Duration(cfg.Queue.WaitSeconds) * time.Second,
			ErrorBackoff: cfg.QueueErrorBackoff(),
		},
		logger.Named("worker"),
	)

	w.Run(ctx)
	logger.Info("shutdown complete")
}
