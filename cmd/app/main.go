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
	"metaphorlab/internal/batch"
	"metaphorlab/internal/bootstrap"
	"metaphorlab/internal/ingest"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer deps.Close()

	pub, con, err := bootstrap.Queue(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("failed to create queue", zap.Error(err))
	}
	defer pub.Close()
	defer con.Close()

	apiDeps := api.Deps{
		Session:   deps.Session(),
		Repo:      deps.Repo,
		Publisher: pub,
		Logger:    logger,
		PageSize:  cfg.View.PageSize,
		TopK:      cfg.History.TopK,
	}
	ingestOpts := worker.IngestOptions{
		Feeds:    cfg.Ingest.Feeds,
		Interval: cfg.Ingest.Interval,
		Logger:   logger,
	}
	if deps.Redis != nil {
		apiDeps.History = deps.Redis
		apiDeps.Feeds = deps.Redis
		ingestOpts.Seen = deps.Redis
	}
	if ingestOpts.Lister, err = deps.FeedLister(ctx); err != nil {
		logger.Fatal("failed to load feeds", zap.Error(err))
	}

	server := api.NewServer(apiDeps)
	if err := server.RestoreHistory(ctx); err != nil {
		logger.Warn("failed to restore history", zap.Error(err))
	}

	w := worker.NewConsumer(con, deps.Repo, deps.Gateway, batch.NewOrchestrator(deps.BatchOptions()),
		bootstrap.Notifier(cfg.Notifier), server, logger)
	in := worker.NewIngest(ingest.NewFeed(30*time.Second), pub, ingestOpts)

	go func() {
		if err := w.Start(ctx); err != nil {
			logger.Error("consumer error", zap.Error(err))
		}
	}()

	go in.Start(ctx)

	addr := bootstrap.Addr(cfg.Server.Port)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := server.Start(addr); err != nil {
			logger.Info("server stopped", zap.Error(err))
		}
	}()

	logger.Info("app started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
