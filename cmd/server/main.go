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

	"metaphorlab/internal/api"
	"metaphorlab/internal/bootstrap"
	"metaphorlab/internal/queue"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer deps.Close()

	apiDeps := api.Deps{
		Session:  deps.Session(),
		Repo:     deps.Repo,
		Logger:   logger,
		PageSize: cfg.View.PageSize,
		TopK:     cfg.History.TopK,
	}
	if deps.Redis != nil {
		apiDeps.History = deps.Redis
		apiDeps.Feeds = deps.Redis
	}
	// Jobs need a consumer in another process, so only Kafka qualifies.
	if len(cfg.Queue.Brokers) > 0 {
		pub, err := queue.NewKafka(cfg.Queue.Brokers, cfg.Queue.Topic)
		if err != nil {
			logger.Fatal("failed to create producer", zap.Error(err))
		}
		defer pub.Close()
		apiDeps.Publisher = pub
	}

	server := api.NewServer(apiDeps)
	if err := server.RestoreHistory(ctx); err != nil {
		logger.Warn("failed to restore history", zap.Error(err))
	}

	addr := bootstrap.Addr(cfg.Server.Port)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := server.Start(addr); err != nil {
			logger.Info("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
