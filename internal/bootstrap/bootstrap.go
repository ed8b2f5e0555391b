// Package bootstrap builds the shared dependencies of the service binaries
// from a loaded config. Backends that are not configured fall back to
// in-process implementations.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"metaphorlab/internal/assistant"
	"metaphorlab/internal/batch"
	"metaphorlab/internal/config"
	"metaphorlab/internal/gateway"
	"metaphorlab/internal/ingest"
	"metaphorlab/internal/logging"
	"metaphorlab/internal/notifier"
	"metaphorlab/internal/queue"
	"metaphorlab/internal/redis"
	"metaphorlab/internal/storage"
	"metaphorlab/internal/worker"
)

// Deps holds what the binaries share. Redis is nil when not configured.
type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	Gateway gateway.Gateway
	Repo    storage.AnalysisRepository
	Redis   *redis.Client

	closers []func() error
}

// Load reads the config and builds the logger.
func Load(path string, verbose bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// New connects storage and redis. Close releases them.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Deps, error) {
	d := &Deps{
		Config:  cfg,
		Log:     log,
		Gateway: gateway.NewClient(cfg.Gateway, log),
	}

	repo, err := Repository(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	d.Repo = repo
	if c, ok := repo.(interface{ Close() error }); ok {
		d.closers = append(d.closers, c.Close)
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.Redis = rdb
		d.closers = append(d.closers, rdb.Close)
	} else {
		log.Info("redis not configured, history and feeds stay in memory")
	}

	return d, nil
}

// Repository opens Postgres and migrates it, falls back to SQLite when only
// a file path is set, and to an in-memory archive otherwise.
func Repository(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (storage.AnalysisRepository, error) {
	if cfg.DSN == "" && cfg.SQLitePath != "" {
		db, err := storage.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("using sqlite archive", zap.String("path", cfg.SQLitePath))
		return db, nil
	}
	if cfg.DSN == "" {
		log.Info("storage not configured, using in-memory archive")
		return storage.NewMemory(), nil
	}

	pg, err := storage.NewPostgres(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}
	return pg, nil
}

// Queue returns a publisher and consumer. Without brokers both sides are
// the same in-process queue, which only works inside one binary.
func Queue(cfg config.QueueConfig, log *zap.Logger) (queue.Publisher, queue.Consumer, error) {
	if len(cfg.Brokers) == 0 {
		log.Info("kafka not configured, using in-process queue")
		q := queue.NewMemory(64)
		return q, q, nil
	}

	pub, err := queue.NewKafka(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, fmt.Errorf("create producer: %w", err)
	}
	con, err := queue.NewKafkaConsumer(cfg.Brokers, cfg.GroupID, cfg.Topic, log)
	if err != nil {
		pub.Close()
		return nil, nil, fmt.Errorf("create consumer: %w", err)
	}
	return pub, con, nil
}

// FeedLister combines the feeds file and the redis feed set, whichever are
// configured. The file is watched until ctx is done. Nil means neither.
func (d *Deps) FeedLister(ctx context.Context) (worker.FeedLister, error) {
	return FeedLister(ctx, d.Config.Ingest, d.Redis, d.Log)
}

func FeedLister(ctx context.Context, cfg config.IngestConfig, rdb *redis.Client, log *zap.Logger) (worker.FeedLister, error) {
	var ls worker.Listers
	if cfg.FeedsFile != "" {
		ff, err := ingest.LoadFileFeeds(cfg.FeedsFile, log)
		if err != nil {
			return nil, fmt.Errorf("load feeds file: %w", err)
		}
		go func() {
			if err := ff.Watch(ctx); err != nil {
				log.Warn("feeds file not watched", zap.Error(err))
			}
		}()
		ls = append(ls, ff)
	}
	if rdb != nil {
		ls = append(ls, rdb)
	}

	switch len(ls) {
	case 0:
		return nil, nil
	case 1:
		return ls[0], nil
	}
	return ls, nil
}

func Notifier(cfg config.NotifierConfig) notifier.Notifier {
	if cfg.TelegramToken == "" || len(cfg.TelegramChatIDs) == 0 {
		return notifier.Nop{}
	}
	return notifier.NewTelegram(cfg.TelegramToken, cfg.TelegramChatIDs)
}

func (d *Deps) BatchOptions() batch.Options {
	return batch.Options{
		CallTimeout: d.Config.Batch.CallTimeout,
		Concurrency: d.Config.Batch.Concurrency,
		Logger:      d.Log,
	}
}

func (d *Deps) Session() *assistant.Session {
	return assistant.NewSession(d.Gateway, assistant.Options{
		Batch:     d.BatchOptions(),
		MaxRecent: d.Config.History.MaxRecent,
		Logger:    d.Log,
	})
}

// Addr turns a bare port into a listen address.
func Addr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Log.Warn("close failed", zap.Error(err))
		}
	}
	d.closers = nil
}
