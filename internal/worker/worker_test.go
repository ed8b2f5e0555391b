package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaphorlab/internal/batch"
	"metaphorlab/internal/domain"
	"metaphorlab/internal/ingest"
	"metaphorlab/internal/notifier"
	"metaphorlab/internal/storage"
	"metaphorlab/internal/testutil"
)

type failingRepo struct {
	*storage.Memory
}

func (failingRepo) Save(context.Context, domain.Analysis) error {
	return errors.New("db down")
}

func newTestConsumer(repo storage.AnalysisRepository) (*Consumer, *testutil.MockNotifier, *testutil.MockBroadcaster) {
	n := &testutil.MockNotifier{}
	b := &testutil.MockBroadcaster{}
	c := NewConsumer(nil, repo, &testutil.MockGateway{}, batch.NewOrchestrator(batch.Options{}), n, b, nil)
	return c, n, b
}

func TestHandleJobArchivesAndAnnounces(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemory()
	c, n, b := newTestConsumer(repo)

	job := domain.AnalysisJob{ID: "job-1", Text: "Her eyes are stars\nThe door is closed.", Source: domain.SourceAPI}
	require.NoError(t, c.HandleJob(ctx, job))

	saved, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Her eyes are stars", "The door is closed."}, saved.Results.Units())
	assert.Equal(t, 1, saved.Results.Stats().MetaphorCount)

	sent := b.Sent()
	require.Len(t, sent, 1)
	var ev domain.Event
	require.NoError(t, json.Unmarshal([]byte(sent[0]), &ev))
	assert.Equal(t, domain.EventAnalysisCompleted, ev.Type)
	assert.Equal(t, "job-1", ev.Analysis.ID)

	require.Len(t, n.Notifications, 1)
	assert.Equal(t, "job-1", n.Notifications[0].Job.ID)
}

func TestHandleJobSkipsArchivedJobs(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemory()
	require.NoError(t, repo.Save(ctx, domain.Analysis{ID: "job-1", Results: domain.NewResultSet(nil)}))

	c, n, b := newTestConsumer(repo)
	require.NoError(t, c.HandleJob(ctx, domain.AnalysisJob{ID: "job-1", Text: "again"}))

	assert.Empty(t, b.Sent())
	assert.Empty(t, n.Notifications)
}

func TestHandleJobSaveFailureIsReturned(t *testing.T) {
	c, n, _ := newTestConsumer(failingRepo{storage.NewMemory()})

	err := c.HandleJob(context.Background(), domain.AnalysisJob{ID: "x", Text: "a."})
	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, n.Notifications)
}

func TestHandleJobNotifyFailureIsLogged(t *testing.T) {
	c, n, _ := newTestConsumer(storage.NewMemory())
	n.NotifyFunc = func(context.Context, notifier.Notification) error { return errors.New("telegram down") }

	assert.NoError(t, c.HandleJob(context.Background(), domain.AnalysisJob{ID: "x", Text: "a."}))
}

func TestIngestQueuesOnlyNewItems(t *testing.T) {
	ctx := context.Background()
	feed := "https://poems.example/rss"
	fetcher := &testutil.MockFetcher{Items: map[string][]ingest.Item{
		feed: {
			{GUID: "1", FeedURL: feed, Title: "One", Text: "The sea is a mirror."},
			{GUID: "2", FeedURL: feed, Title: "Two", Text: "Birds sang."},
		},
	}}
	pub := &testutil.MockPublisher{}
	w := NewIngest(fetcher, pub, IngestOptions{Feeds: []string{feed}})

	assert.Equal(t, 2, w.PollAll(ctx))
	assert.Equal(t, 0, w.PollAll(ctx))

	jobs := pub.Published()
	require.Len(t, jobs, 2)
	assert.Equal(t, domain.SourceFeed, jobs[0].Source)
	assert.Equal(t, feed, jobs[0].Origin)
	assert.Equal(t, JobID(ingest.Item{GUID: "1", FeedURL: feed}), jobs[0].ID)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
}

func TestIngestRequeuesItemAfterPublishFailure(t *testing.T) {
	ctx := context.Background()
	feed := "https://poems.example/rss"
	fetcher := &testutil.MockFetcher{Items: map[string][]ingest.Item{
		feed: {{GUID: "1", FeedURL: feed, Text: "Time is a thief."}},
	}}
	brokerDown := true
	pub := &testutil.MockPublisher{PublishFunc: func(context.Context, domain.AnalysisJob) error {
		if brokerDown {
			return errors.New("broker unavailable")
		}
		return nil
	}}
	w := NewIngest(fetcher, pub, IngestOptions{Feeds: []string{feed}})

	assert.Equal(t, 0, w.PollAll(ctx))
	brokerDown = false
	assert.Equal(t, 1, w.PollAll(ctx))
	assert.Equal(t, 0, w.PollAll(ctx))

	jobs := pub.Published()
	require.Len(t, jobs, 1)
	assert.Equal(t, JobID(ingest.Item{GUID: "1", FeedURL: feed}), jobs[0].ID)
}

type staticLister []string

func (l staticLister) GetFeeds(context.Context) ([]string, error) { return l, nil }

func TestIngestMergesListedFeedsAndSkipsBroken(t *testing.T) {
	fetcher := &testutil.MockFetcher{
		Items: map[string][]ingest.Item{
			"b": {{GUID: "x", FeedURL: "b", Text: "text"}},
		},
		Errs: map[string]error{"a": errors.New("timeout")},
	}
	pub := &testutil.MockPublisher{}
	w := NewIngest(fetcher, pub, IngestOptions{Feeds: []string{"a"}, Lister: staticLister{"a", "b"}})

	assert.Equal(t, []string{"a", "b"}, w.allFeeds(context.Background()))
	assert.Equal(t, 1, w.PollAll(context.Background()))
}

type failingLister struct{}

func (failingLister) GetFeeds(context.Context) ([]string, error) {
	return nil, errors.New("redis down")
}

func TestListersKeepPartialResults(t *testing.T) {
	ls := Listers{staticLister{"a"}, failingLister{}, staticLister{"b"}}

	feeds, err := ls.GetFeeds(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, feeds)

	w := NewIngest(&testutil.MockFetcher{}, &testutil.MockPublisher{}, IngestOptions{Feeds: []string{"b", "c"}, Lister: ls})
	assert.Equal(t, []string{"b", "c", "a"}, w.allFeeds(context.Background()))
}

func TestJobIDIsStable(t *testing.T) {
	item := ingest.Item{GUID: "g", FeedURL: "f"}
	assert.Equal(t, JobID(item), JobID(item))
	assert.NotEqual(t, JobID(item), JobID(ingest.Item{GUID: "g", FeedURL: "other"}))
}
