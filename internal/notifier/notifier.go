package notifier

import (
	"context"

	"metaphorlab/internal/domain"
)

// Notification announces a finished analysis job.
type Notification struct {
	Job      domain.AnalysisJob
	Analysis domain.Analysis
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop drops every notification. Used when no channel is configured.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
