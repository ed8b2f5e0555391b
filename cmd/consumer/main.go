package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"metaphorlab/internal/batch"
	"metaphorlab/internal/bootstrap"
	"metaphorlab/internal/queue"
	"metaphorlab/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	cfg, logger, err := bootstrap.Load(*configPath, *verbose)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	defer logger.Sync()

	if len(cfg.Queue.Brokers) == 0 {
		logger.Fatal("queue.brokers is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer deps.Close()

	consumer, err := queue.NewKafkaConsumer(cfg.Queue.Brokers, cfg.Queue.GroupID, cfg.Queue.Topic, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	w := worker.NewConsumer(consumer, deps.Repo, deps.Gateway, batch.NewOrchestrator(deps.BatchOptions()),
		bootstrap.Notifier(cfg.Notifier), nil, logger)

	go func() {
		if err := w.Start(ctx); err != nil {
			logger.Error("consumer error", zap.Error(err))
		}
	}()

	logger.Info("consumer started", zap.Strings("brokers", cfg.Queue.Brokers), zap.String("topic", cfg.Queue.Topic))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
}
