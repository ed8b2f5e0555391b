package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"metaphorlab/internal/domain"
	"metaphorlab/internal/gateway"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func flat(isMetaphor bool, confidence float64) gateway.Prediction {
	return gateway.FlatPrediction{IsMetaphor: isMetaphor, Confidence: confidence}
}

func TestRunPreservesOrderUnderReversedCompletion(t *testing.T) {
	units := []string{"a.", "b.", "c.", "d.", "e."}
	done := make([]chan struct{}, len(units))
	for i := range done {
		done[i] = make(chan struct{})
	}
	index := map[string]int{}
	for i, u := range units {
		index[u] = i
	}

	// Each call waits for the call after it, so completion order is the
	// reverse of input order. This only terminates with full fan-out.
	var mu sync.Mutex
	var completed []string
	call := func(ctx context.Context, unit string) (gateway.Prediction, error) {
		i := index[unit]
		if i+1 < len(units) {
			<-done[i+1]
		}
		mu.Lock()
		completed = append(completed, unit)
		mu.Unlock()
		close(done[i])
		return flat(i%2 == 0, float64(i)/10), nil
	}

	rs := NewOrchestrator(Options{}).Run(context.Background(), units, call)

	assert.Equal(t, units, rs.Units())
	assert.Equal(t, []string{"e.", "d.", "c.", "b.", "a."}, completed)
	for i, r := range rs.Results() {
		assert.InDelta(t, float64(i)/10, r.Confidence, 1e-9)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	units := []string{"one", "two", "three", "four"}
	boom := errors.New("connection reset")

	call := func(ctx context.Context, unit string) (gateway.Prediction, error) {
		if unit == "three" {
			return nil, boom
		}
		return flat(true, 0.9), nil
	}

	rs := NewOrchestrator(Options{}).Run(context.Background(), units, call)
	require.Equal(t, 4, rs.Len())

	results := rs.Results()
	for i, r := range results {
		if i == 2 {
			assert.Equal(t, domain.LabelError, r.Label)
			assert.Zero(t, r.Confidence)
			assert.Equal(t, "connection reset", r.ErrorMessage)
			continue
		}
		assert.Equal(t, domain.LabelMetaphor, r.Label)
		assert.Equal(t, 0.9, r.Confidence)
	}

	stats := rs.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.MetaphorCount)
	assert.InDelta(t, 2.7/4, stats.AverageConfidence, 1e-9)
}

func TestRunMalformedUsesMalformedLabel(t *testing.T) {
	call := func(ctx context.Context, unit string) (gateway.Prediction, error) {
		return gateway.Malformed{Reason: "unrecognised response shape"}, nil
	}

	rs := NewOrchestrator(Options{}).Run(context.Background(), []string{"x"}, call)
	r := rs.Results()[0]

	assert.Equal(t, domain.LabelUnknown, r.Label)
	assert.Zero(t, r.Confidence)
	assert.Contains(t, r.ErrorMessage, "unrecognised")
}

func TestRunCustomLabels(t *testing.T) {
	o := NewOrchestrator(Options{FailureLabel: domain.LabelUnknown, MalformedLabel: domain.LabelError})
	call := func(ctx context.Context, unit string) (gateway.Prediction, error) {
		if unit == "bad" {
			return nil, errors.New("down")
		}
		return gateway.Malformed{Reason: "?"}, nil
	}

	results := o.Run(context.Background(), []string{"bad", "odd"}, call).Results()

	assert.Equal(t, domain.LabelUnknown, results[0].Label)
	assert.Equal(t, domain.LabelError, results[1].Label)
}

func TestRunCallTimeoutIsPerUnitFailure(t *testing.T) {
	o := NewOrchestrator(Options{CallTimeout: 20 * time.Millisecond})
	call := func(ctx context.Context, unit string) (gateway.Prediction, error) {
		if unit == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return flat(false, 0.7), nil
	}

	results := o.Run(context.Background(), []string{"fast", "slow"}, call).Results()

	assert.Equal(t, domain.LabelLiteral, results[0].Label)
	assert.Equal(t, domain.LabelError, results[1].Label)
	assert.Contains(t, results[1].ErrorMessage, context.DeadlineExceeded.Error())
}

func TestRunWrapperUsesInputUnit(t *testing.T) {
	call := func(ctx context.Context, unit string) (gateway.Prediction, error) {
		return gateway.ResultsWrapper{Results: []gateway.WrappedResult{
			{Text: "server echo", Label: domain.LabelLiteral, Confidence: 0.6},
		}}, nil
	}

	r := NewOrchestrator(Options{}).Run(context.Background(), []string{"mine"}, call).Results()[0]

	assert.Equal(t, domain.Result{Unit: "mine", Label: domain.LabelLiteral, Confidence: 0.6}, r)
}

func TestRunEmpty(t *testing.T) {
	rs := NewOrchestrator(Options{}).Run(context.Background(), nil, func(context.Context, string) (gateway.Prediction, error) {
		t.Fatal("call must not be invoked")
		return nil, nil
	})

	assert.Equal(t, 0, rs.Len())
	assert.Equal(t, domain.Stats{}, rs.Stats())
}

func TestJoinAllRecoversPanics(t *testing.T) {
	got := JoinAll(context.Background(), 3, 0, func(ctx context.Context, i int) (int, error) {
		if i == 1 {
			panic("kaboom")
		}
		return i * 10, nil
	})

	require.Len(t, got, 3)
	assert.Equal(t, 0, got[0].Value)
	assert.ErrorContains(t, got[1].Err, "kaboom")
	assert.Equal(t, 20, got[2].Value)
	for i, s := range got {
		assert.Equal(t, i, s.Index)
	}
}

func TestJoinAllRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	JoinAll(context.Background(), 20, 3, func(ctx context.Context, i int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})

	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestSequencerDropsStaleBatches(t *testing.T) {
	var seq Sequencer
	var shown string

	first := seq.Next()
	second := seq.Next()

	assert.True(t, seq.Commit(second, func() { shown = "second" }))
	assert.False(t, seq.Commit(first, func() { shown = "first" }))
	assert.Equal(t, "second", shown)
	assert.False(t, seq.IsLatest(first))
	assert.True(t, seq.IsLatest(second))
}
