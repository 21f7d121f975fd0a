package crawl

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cepcrawler/internal/cep"
	"cepcrawler/internal/metrics"
	"cepcrawler/internal/notify"
	"cepcrawler/internal/store"
)

// Tracker aggregates per-unit outcomes into job progress. All counter
// mutations go through the store's atomic increment; the tracker only
// decides when the job is done and what its terminal status is.
type Tracker struct {
	store    store.Store
	notifier notify.Publisher
	logger   *zap.Logger
}

// NewTracker constructs a Tracker. notifier may be nil.
func NewTracker(st store.Store, notifier notify.Publisher, logger *zap.Logger) *Tracker {
	if notifier == nil {
		notifier = notify.NoOpPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Tracker{store: st, notifier: notifier, logger: logger}
}

// Increment records one completed unit. Unknown jobs are a silent
// no-op: the job may have been deleted, or the message is stale.
//
// The increment that brings processed up to total is the only one that
// observes the completion condition, so the terminal status write runs
// exactly once per job.
func (t *Tracker) Increment(ctx context.Context, crawlID string, success bool) (cep.CrawlJob, error) {
	job, err := t.store.IncrementProgress(ctx, crawlID, success)
	if errors.Is(err, store.ErrNotFound) {
		t.logger.Debug("progress increment for unknown crawl", zap.String("crawl_id", crawlID))
		return cep.CrawlJob{}, nil
	}
	if err != nil {
		return cep.CrawlJob{}, fmt.Errorf("increment progress: %w", err)
	}

	// Strict equality: under at-least-once delivery a duplicate can
	// push processed past total, and that increment must not touch the
	// already-terminal status.
	if job.Processed != job.Total {
		return job, nil
	}

	status := cep.StatusFinished
	if job.Errors == job.Total {
		status = cep.StatusFailed
	}
	if err := t.store.UpdateJobStatus(ctx, crawlID, status); err != nil {
		return cep.CrawlJob{}, fmt.Errorf("mark crawl %s: %w", status, err)
	}
	job.Status = status

	metrics.ObserveJobFinished(string(status))
	t.logger.Info("crawl finished",
		zap.String("crawl_id", crawlID),
		zap.String("status", string(status)),
		zap.Int64("successes", job.Successes),
		zap.Int64("errors", job.Errors),
	)

	// Completion events are best-effort; a publish failure must not
	// fail the increment.
	if err := t.notifier.JobFinished(ctx, job); err != nil {
		t.logger.Warn("completion event publish failed",
			zap.String("crawl_id", crawlID), zap.Error(err))
	}

	return job, nil
}
