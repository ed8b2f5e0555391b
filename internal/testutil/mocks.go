// Package testutil holds func-field fakes shared by package tests.
package testutil

import (
	"context"
	"sync"

	"metaphorlab/internal/domain"
	"metaphorlab/internal/gateway"
	"metaphorlab/internal/ingest"
	"metaphorlab/internal/notifier"
)

// MockGateway is a gateway.Gateway whose behaviour is set per test.
type MockGateway struct {
	PredictFunc         func(ctx context.Context, text string) (gateway.Prediction, error)
	GenerateLyricsFunc  func(ctx context.Context, req gateway.LyricsRequest) (*gateway.Lyrics, error)
	CreateMetaphorsFunc func(ctx context.Context, req gateway.MetaphorRequest) ([]string, error)

	mu            sync.Mutex
	PredictCalls  []string
	LyricsCalls   []gateway.LyricsRequest
	MetaphorCalls []gateway.MetaphorRequest
}

func (m *MockGateway) Predict(ctx context.Context, text string) (gateway.Prediction, error) {
	m.mu.Lock()
	m.PredictCalls = append(m.PredictCalls, text)
	m.mu.Unlock()

	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, text)
	}
	// Default: everything ending in "." is literal, anything else a metaphor.
	return gateway.FlatPrediction{IsMetaphor: len(text) > 0 && text[len(text)-1] != '.', Confidence: 0.9}, nil
}

func (m *MockGateway) GenerateLyrics(ctx context.Context, req gateway.LyricsRequest) (*gateway.Lyrics, error) {
	m.mu.Lock()
	m.LyricsCalls = append(m.LyricsCalls, req)
	m.mu.Unlock()

	if m.GenerateLyricsFunc != nil {
		return m.GenerateLyricsFunc(ctx, req)
	}
	return &gateway.Lyrics{Lines: []string{"line one", "line two"}}, nil
}

func (m *MockGateway) CreateMetaphors(ctx context.Context, req gateway.MetaphorRequest) ([]string, error) {
	m.mu.Lock()
	m.MetaphorCalls = append(m.MetaphorCalls, req)
	m.mu.Unlock()

	if m.CreateMetaphorsFunc != nil {
		return m.CreateMetaphorsFunc(ctx, req)
	}
	return []string{req.Source + " is a " + req.Target}, nil
}

func (m *MockGateway) PredictCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PredictCalls)
}

// Results wraps rs in a result set.
func Results(rs ...domain.Result) *domain.ResultSet {
	return domain.NewResultSet(rs)
}

// MockPublisher records published jobs.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, job domain.AnalysisJob) error

	mu   sync.Mutex
	Jobs []domain.AnalysisJob
}

func (m *MockPublisher) Publish(ctx context.Context, job domain.AnalysisJob) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Jobs = append(m.Jobs, job)
	m.mu.Unlock()
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func (m *MockPublisher) Published() []domain.AnalysisJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AnalysisJob{}, m.Jobs...)
}

// MockNotifier records notifications.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, n notifier.Notification) error

	mu            sync.Mutex
	Notifications []notifier.Notification
}

func (m *MockNotifier) Notify(ctx context.Context, n notifier.Notification) error {
	m.mu.Lock()
	m.Notifications = append(m.Notifications, n)
	m.mu.Unlock()

	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, n)
	}
	return nil
}

// MockBroadcaster records broadcast messages.
type MockBroadcaster struct {
	mu       sync.Mutex
	Messages []string
}

func (m *MockBroadcaster) Broadcast(msg string) {
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	m.mu.Unlock()
}

func (m *MockBroadcaster) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.Messages...)
}

// MockFetcher serves canned feed items per URL.
type MockFetcher struct {
	Items map[string][]ingest.Item
	Errs  map[string]error
}

func (m *MockFetcher) Fetch(_ context.Context, feedURL string) ([]ingest.Item, error) {
	if err := m.Errs[feedURL]; err != nil {
		return nil, err
	}
	return m.Items[feedURL], nil
}
