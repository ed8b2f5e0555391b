package queue

import (
	"context"

	"metaphorlab/internal/domain"
)

// Handler processes one job. Returning an error leaves the job unacknowledged.
type Handler func(ctx context.Context, job domain.AnalysisJob) error

type Publisher interface {
	Publish(ctx context.Context, job domain.AnalysisJob) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
