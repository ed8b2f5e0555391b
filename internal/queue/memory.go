package queue

import (
	"context"
	"errors"
	"sync"

	"metaphorlab/internal/domain"
)

var ErrClosed = errors.New("queue: closed")

// Memory is an in-process queue used when no Kafka brokers are configured.
// It is both Publisher and Consumer. Failed jobs are not redelivered.
type Memory struct {
	jobs chan domain.AnalysisJob

	mu     sync.RWMutex
	closed bool
}

func NewMemory(buffer int) *Memory {
	return &Memory{jobs: make(chan domain.AnalysisJob, buffer)}
}

func (m *Memory) Publish(ctx context.Context, job domain.AnalysisJob) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-m.jobs:
			if !ok {
				return nil
			}
			_ = handler(ctx, job)
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
	return nil
}
