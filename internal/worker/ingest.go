package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"metaphorlab/internal/domain"
	"metaphorlab/internal/ingest"
	"metaphorlab/internal/queue"
)

// SeenStore remembers which feed items were already queued. MarkSeen
// claims an id and reports whether it was new; Unmark releases a claim
// whose publish failed.
type SeenStore interface {
	MarkSeen(ctx context.Context, id string) (bool, error)
	Unmark(ctx context.Context, id string) error
}

// FeedLister returns feeds added at runtime, on top of the configured ones.
type FeedLister interface {
	GetFeeds(ctx context.Context) ([]string, error)
}

// Ingest polls feeds and publishes every new item as an analysis job.
type Ingest struct {
	fetcher   ingest.Fetcher
	publisher queue.Publisher
	seen      SeenStore
	lister    FeedLister
	feeds     []string
	interval  time.Duration
	log       *zap.Logger
}

type IngestOptions struct {
	Feeds    []string
	Interval time.Duration
	// Seen defaults to an in-process set.
	Seen   SeenStore
	Lister FeedLister
	Logger *zap.Logger
}

func NewIngest(f ingest.Fetcher, p queue.Publisher, opts IngestOptions) *Ingest {
	if opts.Seen == nil {
		opts.Seen = NewMemorySeen()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Ingest{
		fetcher:   f,
		publisher: p,
		seen:      opts.Seen,
		lister:    opts.Lister,
		feeds:     opts.Feeds,
		interval:  opts.Interval,
		log:       opts.Logger.Named("ingest"),
	}
}

func (w *Ingest) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.PollAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PollAll(ctx)
		}
	}
}

// PollAll fetches every feed once and returns the number of jobs queued.
func (w *Ingest) PollAll(ctx context.Context) int {
	queued := 0
	for _, feed := range w.allFeeds(ctx) {
		items, err := w.fetcher.Fetch(ctx, feed)
		if err != nil {
			w.log.Error("fetch failed", zap.String("feed", feed), zap.Error(err))
			continue
		}

		newCount, dupCount := 0, 0
		for _, item := range items {
			id := JobID(item)
			fresh, err := w.seen.MarkSeen(ctx, id)
			if err != nil {
				w.log.Error("seen check failed", zap.String("item", item.GUID), zap.Error(err))
				continue
			}
			if !fresh {
				dupCount++
				continue
			}
			newCount++

			job := domain.AnalysisJob{
				ID:          id,
				Text:        item.Text,
				Source:      domain.SourceFeed,
				Origin:      feed,
				SubmittedAt: time.Now().UTC(),
			}
			if err := w.publisher.Publish(ctx, job); err != nil {
				w.log.Error("publish failed", zap.String("job_id", id), zap.Error(err))
				if err := w.seen.Unmark(ctx, id); err != nil {
					w.log.Error("unmark failed", zap.String("job_id", id), zap.Error(err))
				}
				continue
			}
			queued++
			w.log.Debug("queued", zap.String("job_id", id), zap.String("title", truncate(item.Title, 60)))
		}

		w.log.Info("feed polled",
			zap.String("feed", feed),
			zap.Int("fetched", len(items)),
			zap.Int("new", newCount),
			zap.Int("duplicates", dupCount))
	}
	return queued
}

func (w *Ingest) allFeeds(ctx context.Context) []string {
	feeds := append([]string{}, w.feeds...)
	if w.lister == nil {
		return feeds
	}

	extra, err := w.lister.GetFeeds(ctx)
	if err != nil {
		w.log.Warn("list feeds failed", zap.Error(err))
	}

	known := make(map[string]bool, len(feeds))
	for _, f := range feeds {
		known[f] = true
	}
	for _, f := range extra {
		if !known[f] {
			known[f] = true
			feeds = append(feeds, f)
		}
	}
	return feeds
}

// Listers merges several feed sources. Failing sources are reported
// together; feeds from the others are still returned.
type Listers []FeedLister

func (ls Listers) GetFeeds(ctx context.Context) ([]string, error) {
	var (
		feeds []string
		errs  []error
	)
	for _, l := range ls {
		f, err := l.GetFeeds(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		feeds = append(feeds, f...)
	}
	return feeds, errors.Join(errs...)
}

// JobID derives a stable job id from the feed item, so a re-queued item
// lands on the same archive row.
func JobID(item ingest.Item) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(item.FeedURL+"#"+item.GUID)).String()
}

type MemorySeen struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMemorySeen() *MemorySeen {
	return &MemorySeen{seen: map[string]bool{}}
}

func (m *MemorySeen) MarkSeen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *MemorySeen) Unmark(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	return nil
}
