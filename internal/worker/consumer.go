package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"metaphorlab/internal/batch"
	"metaphorlab/internal/domain"
	"metaphorlab/internal/gateway"
	"metaphorlab/internal/notifier"
	"metaphorlab/internal/queue"
	"metaphorlab/internal/segment"
	"metaphorlab/internal/storage"
)

type Broadcaster interface {
	Broadcast(msg string)
}

// Consumer analyzes queued jobs, archives them and announces the result.
type Consumer struct {
	consumer    queue.Consumer
	repo        storage.AnalysisRepository
	gateway     gateway.Gateway
	orch        *batch.Orchestrator
	notifier    notifier.Notifier
	broadcaster Broadcaster
	log         *zap.Logger
}

func NewConsumer(c queue.Consumer, r storage.AnalysisRepository, gw gateway.Gateway, orch *batch.Orchestrator, n notifier.Notifier, b Broadcaster, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		consumer:    c,
		repo:        r,
		gateway:     gw,
		orch:        orch,
		notifier:    n,
		broadcaster: b,
		log:         log.Named("consumer"),
	}
}

func (w *Consumer) Start(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.HandleJob)
}

// HandleJob runs one job. Only a failed save is returned as an error, so
// the job stays on the queue; notification failures are logged.
func (w *Consumer) HandleJob(ctx context.Context, job domain.AnalysisJob) error {
	w.log.Info("job consumed",
		zap.String("job_id", job.ID),
		zap.String("source", string(job.Source)),
		zap.String("text", truncate(job.Text, 60)))

	exists, err := w.repo.Exists(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("check job %s: %w", job.ID, err)
	}
	if exists {
		w.log.Debug("job already archived", zap.String("job_id", job.ID))
		return nil
	}

	rs := w.orch.Run(ctx, segment.Segment(job.Text), w.gateway.Predict)

	analysis := domain.Analysis{
		ID:        job.ID,
		Text:      job.Text,
		Source:    job.Source,
		Origin:    job.Origin,
		Results:   rs,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.repo.Save(ctx, analysis); err != nil {
		w.log.Error("save failed", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}

	if w.broadcaster != nil {
		if data, err := json.Marshal(domain.Event{Type: domain.EventAnalysisCompleted, Analysis: &analysis, At: analysis.CreatedAt}); err == nil {
			w.broadcaster.Broadcast(string(data))
		}
	}

	st := rs.Stats()
	w.log.Info("job analyzed",
		zap.String("job_id", job.ID),
		zap.Int("sentences", st.Total),
		zap.Int("metaphors", st.MetaphorCount))

	if w.notifier != nil && st.Total > 0 {
		if err := w.notifier.Notify(ctx, notifier.Notification{Job: job, Analysis: analysis}); err != nil {
			w.log.Warn("notify failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
