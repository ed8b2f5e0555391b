package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaphorlab/internal/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL: srv.URL + "/",
		Timeout: 2 * time.Second,
		Retry:   retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1},
	}, nil)
}

func TestPredictSendsTextAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, predictPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "அவள் ஒரு நிலா.", req.Text)

		w.Write([]byte(`{"is_metaphor":true,"confidence":0.92}`))
	})

	got, err := c.Predict(context.Background(), "அவள் ஒரு நிலா.")
	require.NoError(t, err)
	assert.Equal(t, FlatPrediction{IsMetaphor: true, Confidence: 0.92}, got)
}

func TestPredictMalformedIsNotAnError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	got, err := c.Predict(context.Background(), "x")
	require.NoError(t, err)
	assert.IsType(t, Malformed{}, got)
}

func TestPredictRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"is_metaphor":false,"confidence":0.2}`))
	})

	got, err := c.Predict(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, FlatPrediction{Confidence: 0.2}, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPredictDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad text", http.StatusBadRequest)
	})

	_, err := c.Predict(context.Background(), "x")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "bad text", se.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateLyricsAcceptsStringOrList(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"string", `{"lyrics":"first line\n\nsecond line\n","suggestions":["add a chorus"]}`, []string{"first line", "second line"}},
		{"list", `{"lyrics":["one","two"],"suggestions":["add a chorus"]}`, []string{"one", "two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, lyricsPath, r.URL.Path)

				var req map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, map[string]string{"motion": "calm", "seed": "moonlight"}, req)

				w.Write([]byte(tt.body))
			})

			got, err := c.GenerateLyrics(context.Background(), LyricsRequest{Emotion: "calm", Seed: "moonlight"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Lines)
			assert.Equal(t, []string{"add a chorus"}, got.Suggestions)
		})
	}
}

func TestGenerateLyricsRejectsBadPayload(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"lyrics":42}`))
	})

	_, err := c.GenerateLyrics(context.Background(), LyricsRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.False(t, Retryable(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateMetaphors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, metaphorPath, r.URL.Path)

		var req MetaphorRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, MetaphorRequest{Source: "love", Target: "ocean", Emotion: "positive"}, req)

		w.Write([]byte(`{"metaphors":["Love is an ocean without shores"]}`))
	})

	got, err := c.CreateMetaphors(context.Background(), MetaphorRequest{Source: "love", Target: "ocean", Emotion: "positive"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Love is an ocean without shores"}, got)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("connection refused")))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusBadGateway}))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusNotFound}))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))
}
