package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaphorlab/internal/assistant"
	"metaphorlab/internal/domain"
	"metaphorlab/internal/gateway"
	"metaphorlab/internal/history"
	"metaphorlab/internal/storage"
	"metaphorlab/internal/testutil"
)

type fakeHistory struct {
	mu    sync.Mutex
	snaps map[string]history.Snapshot
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{snaps: make(map[string]history.Snapshot)}
}

func (f *fakeHistory) SaveHistory(_ context.Context, name string, snap history.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[name] = snap
	return nil
}

func (f *fakeHistory) LoadHistory(_ context.Context, name string) (history.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[name]
	if !ok {
		return history.Snapshot{}, history.ErrSnapshotNotFound
	}
	return snap, nil
}

type fakeFeeds struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeFeeds) AddFeed(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return nil
}

func (f *fakeFeeds) RemoveFeed(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, u := range f.urls {
		if u == url {
			f.urls = append(f.urls[:i], f.urls[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeFeeds) GetFeeds(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.urls...), nil
}

type fixture struct {
	srv     *Server
	gw      *testutil.MockGateway
	repo    *storage.Memory
	history *fakeHistory
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		gw:      &testutil.MockGateway{},
		repo:    storage.NewMemory(),
		history: newFakeHistory(),
	}
	d := Deps{
		Session: assistant.NewSession(f.gw, assistant.Options{}),
		Repo:    f.repo,
		History: f.history,
	}
	if mutate != nil {
		mutate(&d)
	}
	f.srv = NewServer(d)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAnalyzeArchivesAndRecordsHistory(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/analyze", `{"text":"The sky is blue. Time is a thief"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[analysisResponse](t, rec)
	require.NotEmpty(t, got.ID)
	assert.Equal(t, domain.SourceAPI, got.Source)
	assert.False(t, got.Stale)

	results := got.Results.Results()
	require.Len(t, results, 2)
	assert.Equal(t, domain.LabelLiteral, results[0].Label)
	assert.Equal(t, domain.LabelMetaphor, results[1].Label)
	assert.Equal(t, 1, got.Results.Stats().MetaphorCount)

	stored, err := f.repo.FindByID(context.Background(), got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Text, stored.Text)

	assert.Equal(t, []string{"The sky is blue. Time is a thief"}, f.history.snaps[SearchesKey].Recent)
}

func TestAnalyzeRejectsBlankText(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/analyze", `{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.gw.PredictCount())
}

func TestAnalyzeKeepsPartialFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.gw.PredictFunc = func(_ context.Context, text string) (gateway.Prediction, error) {
		if strings.HasPrefix(text, "bad") {
			return gateway.Malformed{Reason: "no label"}, nil
		}
		return gateway.FlatPrediction{IsMetaphor: true, Confidence: 0.7}, nil
	}

	rec := f.do(t, http.MethodPost, "/api/analyze", `{"text":"good line\nbad line"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	results := decode[analysisResponse](t, rec).Results.Results()
	require.Len(t, results, 2)
	assert.Equal(t, domain.LabelMetaphor, results[0].Label)
	assert.Equal(t, domain.LabelUnknown, results[1].Label)
}

func TestGetAnalysisDerivesPage(t *testing.T) {
	f := newFixture(t, nil)
	a := domain.Analysis{
		ID:   "a1",
		Text: "x",
		Results: testutil.Results(
			domain.Result{Unit: "one", Label: domain.LabelMetaphor, Confidence: 0.2},
			domain.Result{Unit: "two", Label: domain.LabelLiteral, Confidence: 0.9},
			domain.Result{Unit: "three", Label: domain.LabelMetaphor, Confidence: 0.95},
		),
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.repo.Save(context.Background(), a))

	rec := f.do(t, http.MethodGet, "/api/analyses/a1?label=metaphor&sort=confidence&dir=desc&page_size=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[pageResponse](t, rec)
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, 2, got.TotalFiltered)
	assert.Equal(t, 2, got.TotalPages)
	require.Len(t, got.Visible, 1)
	assert.Equal(t, "three", got.Visible[0].Unit)
	assert.Equal(t, 3, got.Stats.Total)
}

func TestGetAnalysisPageBeyondEndIsEmpty(t *testing.T) {
	f := newFixture(t, nil)
	results := testutil.Results(
		domain.Result{Unit: "one", Label: domain.LabelMetaphor, Confidence: 0.5},
		domain.Result{Unit: "two", Label: domain.LabelLiteral, Confidence: 0.5},
	)
	require.NoError(t, f.repo.Save(context.Background(), domain.Analysis{ID: "a1", Results: results}))

	rec := f.do(t, http.MethodGet, "/api/analyses/a1?page=4611686018427387905&page_size=4", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[pageResponse](t, rec).Visible)
}

func TestGetAnalysisErrors(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.repo.Save(context.Background(), domain.Analysis{ID: "a1", Results: testutil.Results()}))

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing", "/api/analyses/nope", http.StatusNotFound},
		{"bad label", "/api/analyses/a1?label=simile", http.StatusBadRequest},
		{"inverted range", "/api/analyses/a1?min=0.8&max=0.2", http.StatusBadRequest},
		{"bad page", "/api/analyses/a1?page=0", http.StatusBadRequest},
		{"bad sort", "/api/analyses/a1?sort=length", http.StatusBadRequest},
		{"not a number", "/api/analyses/a1?min=abc", http.StatusBadRequest},
		{"nan range", "/api/analyses/a1?min=NaN", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(t, http.MethodGet, tt.target, "").Code)
		})
	}
}

func TestGetAnalysesLimits(t *testing.T) {
	f := newFixture(t, nil)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.repo.Save(context.Background(), domain.Analysis{ID: id, Results: testutil.Results(), CreatedAt: time.Now()}))
	}

	rec := f.do(t, http.MethodGet, "/api/analyses?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Analysis](t, rec), 2)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/analyses?limit=500", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/analyses?offset=-1", "").Code)
}

func TestRoute(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/route", `{"message":"write a sad song about rain"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[domain.Intent](t, rec)
	assert.Equal(t, domain.ServiceLyricGenerator, got.Service)
}

func TestChatReturnsBadGatewayOnServiceFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.gw.CreateMetaphorsFunc = func(context.Context, gateway.MetaphorRequest) ([]string, error) {
		return nil, &gateway.StatusError{StatusCode: http.StatusInternalServerError}
	}

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"love relating to ocean","service":"creator"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChatLyrics(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/chat", `{"message":"anything","service":"lyrics"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[assistant.Reply](t, rec)
	assert.Equal(t, domain.ServiceLyricGenerator, got.Service)
	assert.Equal(t, []string{"line one", "line two"}, got.Lyrics)
	assert.NotEmpty(t, f.history.snaps[MoodsKey].Recent)
}

func TestSubmitJob(t *testing.T) {
	t.Run("without queue", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/jobs", `{"text":"hi"}`).Code)
	})

	t.Run("queued", func(t *testing.T) {
		pub := &testutil.MockPublisher{}
		f := newFixture(t, func(d *Deps) { d.Publisher = pub })

		rec := f.do(t, http.MethodPost, "/api/jobs", `{"text":"Time is a thief"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		jobs := pub.Published()
		require.Len(t, jobs, 1)
		assert.Equal(t, decode[map[string]string](t, rec)["job_id"], jobs[0].ID)
		assert.Equal(t, "Time is a thief", jobs[0].Text)
		assert.Equal(t, domain.SourceAPI, jobs[0].Source)
	})
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	for _, text := range []string{"first", "second", "first"} {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/analyze", `{"text":"`+text+`"}`).Code)
	}

	got := decode[historyResponse](t, f.do(t, http.MethodGet, "/api/history", ""))
	assert.Equal(t, []string{"first", "second"}, got.Recent)
	assert.Equal(t, 3, got.Analytics.Total)
	require.NotEmpty(t, got.Analytics.Frequent)
	assert.Equal(t, history.Entry{Item: "first", Count: 2}, got.Analytics.Frequent[0])

	got = decode[historyResponse](t, f.do(t, http.MethodDelete, "/api/history/0", ""))
	assert.Equal(t, []string{"second"}, got.Recent)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/api/history/x", "").Code)

	got = decode[historyResponse](t, f.do(t, http.MethodDelete, "/api/history", ""))
	assert.Empty(t, got.Recent)
	assert.Equal(t, 3, got.Analytics.Total)
	assert.Empty(t, f.history.snaps[SearchesKey].Recent)
}

func TestRestoreHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.history.snaps[SearchesKey] = history.Snapshot{
		Max:    5,
		Recent: []string{"saved"},
		Counts: []history.Entry{{Item: "saved", Count: 4}},
	}

	require.NoError(t, f.srv.RestoreHistory(context.Background()))

	got := decode[historyResponse](t, f.do(t, http.MethodGet, "/api/history", ""))
	assert.Equal(t, []string{"saved"}, got.Recent)
	assert.Equal(t, 4, got.Analytics.Total)

	moods := decode[historyResponse](t, f.do(t, http.MethodGet, "/api/moods", ""))
	assert.Empty(t, moods.Recent)
}

func TestFeeds(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/feeds", "").Code)
	})

	t.Run("add and remove", func(t *testing.T) {
		feeds := &fakeFeeds{}
		f := newFixture(t, func(d *Deps) { d.Feeds = feeds })

		form := url.Values{"url": {"https://example.com/rss"}}
		req := httptest.NewRequest(http.MethodPost, "/api/feeds", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"https://example.com/rss"}, decode[[]string](t, rec))

		rec = f.do(t, http.MethodDelete, "/api/feeds?url="+url.QueryEscape("https://example.com/rss"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]string](t, rec))
	})

	t.Run("rejects non http url", func(t *testing.T) {
		f := newFixture(t, func(d *Deps) { d.Feeds = &fakeFeeds{} })
		req := httptest.NewRequest(http.MethodPost, "/api/feeds", strings.NewReader("url=ftp://x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebsocketReceivesEvents(t *testing.T) {
	f := newFixture(t, nil)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.srv.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/analyze", "application/json", strings.NewReader(`{"text":"Time is a thief"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventAnalysisCompleted, ev.Type)
	require.NotNil(t, ev.Analysis)
	assert.Equal(t, "Time is a thief", ev.Analysis.Text)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()

	for i := 0; i < 20; i++ {
		h.Broadcast("msg")
	}
	assert.Len(t, ch, subscriberBuffer)
	assert.EqualValues(t, 20-subscriberBuffer, h.Dropped())

	cancel()
	cancel()
	assert.Zero(t, h.Subscribers())
}

func TestWriteSSESplitsLines(t *testing.T) {
	var b strings.Builder
	writeSSE(&b, "one\ntwo")
	assert.Equal(t, "event: message\ndata: one\ndata: two\n\n", b.String())
}
