package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"metaphorlab/internal/bootstrap"
	"metaphorlab/internal/ingest"
	"metaphorlab/internal/queue"
	"metaphorlab/internal/redis"
	"metaphorlab/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	verbose := flag.Bool("v", false, "debug logging")
	once := flag.Bool("once", false, "poll every feed once and exit")
	flag.Parse()

	cfg, logger, err := bootstrap.Load(*configPath, *verbose)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	defer logger.Sync()

	if len(cfg.Queue.Brokers) == 0 {
		logger.Fatal("queue.brokers is required")
	}

	pub, err := queue.NewKafka(cfg.Queue.Brokers, cfg.Queue.Topic)
	if err != nil {
		logger.Fatal("failed to create producer", zap.Error(err))
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := worker.IngestOptions{
		Feeds:    cfg.Ingest.Feeds,
		Interval: cfg.Ingest.Interval,
		Logger:   logger,
	}
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.New(redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		opts.Seen = rdb
	}
	if opts.Lister, err = bootstrap.FeedLister(ctx, cfg.Ingest, rdb, logger); err != nil {
		logger.Fatal("failed to load feeds", zap.Error(err))
	}

	in := worker.NewIngest(ingest.NewFeed(30*time.Second), pub, opts)

	if *once {
		n := in.PollAll(ctx)
		logger.Info("poll finished", zap.Int("queued", n))
		return
	}

	go in.Start(ctx)

	logger.Info("ingest started", zap.Strings("feeds", cfg.Ingest.Feeds), zap.Duration("interval", cfg.Ingest.Interval))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
}
