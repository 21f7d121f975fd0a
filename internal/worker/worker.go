// Package worker implements the queue consumption loop: rate-limited
// lookups, result persistence, progress updates and retry handling.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cepcrawler/internal/cep"
	"cepcrawler/internal/metrics"
	"cepcrawler/internal/queue"
	"cepcrawler/internal/store"
	"cepcrawler/internal/viacep"
)

// Executor serializes operations under the process-wide rate limit.
type Executor interface {
	Execute(ctx context.Context, fn func(context.Context) error) error
}

// Progress aggregates unit outcomes into job counters.
type Progress interface {
	Increment(ctx context.Context, crawlID string, success bool) (cep.CrawlJob, error)
}

// Clock returns the current time (injected for tests).
type Clock interface {
	Now() time.Time
}

// Config controls Worker behavior.
type Config struct {
	// MaxReceive is the receive count at which a failing message is
	// dead-lettered instead of left for redelivery.
	MaxReceive int
	// WaitTime is the long-poll duration per receive.
	WaitTime time.Duration
	// ErrorBackoff is how long to sleep after a failed receive.
	ErrorBackoff time.Duration
}

// Worker consumes queue messages and executes the lookup pipeline.
type Worker struct {
	queue    queue.Provider
	store    store.Store
	lookup   viacep.Lookup
	limiter  Executor
	progress Progress
	clock    Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	q queue.Provider,
	st store.Store,
	lookup viacep.Lookup,
	limiter Executor,
	progress Progress,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxReceive < 1 {
		cfg.MaxReceive = 3
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	metrics.Init()
	return &Worker{
		queue:    q,
		store:    st,
		lookup:   lookup,
		limiter:  limiter,
		progress: progress,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks, consuming messages until the context is canceled. The
// cancellation check sits at the top of each poll iteration; the
// message currently being processed always runs to completion.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started",
		zap.Int("max_receive", w.cfg.MaxReceive),
		zap.Duration("wait_time", w.cfg.WaitTime),
	)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopping")
			return
		}

		messages, err := w.queue.Receive(ctx, 1, w.cfg.WaitTime)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return
			}
			// Poll errors are never fatal; back off and keep going.
			metrics.ObserveReceiveError()
			w.logger.Error("queue receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.ErrorBackoff):
			}
			continue
		}

		for _, msg := range messages {
			// Shutdown must not abandon a message mid-flight.
			w.processMessage(context.WithoutCancel(ctx), msg)
		}
	}
}

// processMessage drives one delivery through the state machine:
// parse, rate-limited execute, persist, increment, acknowledge.
func (w *Worker) processMessage(ctx context.Context, msg queue.Message) {
	var body cep.QueueMessage
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		// Unparseable now means unparseable forever; drop it rather
		// than poison the queue. Dropped messages never count toward
		// job progress, so a crawl containing one stays running.
		w.logger.Error("malformed message body", zap.Error(err))
		w.ack(ctx, msg, "dropped")
		return
	}
	if body.CrawlID == "" || body.CEP == "" {
		w.logger.Error("message missing crawl_id or cep", zap.ByteString("body", msg.Body))
		w.ack(ctx, msg, "dropped")
		return
	}

	err := w.limiter.Execute(ctx, func(ctx context.Context) error {
		return w.fetchAndRecord(ctx, body.CrawlID, body.CEP)
	})
	if err == nil {
		w.ack(ctx, msg, "processed")
		return
	}

	w.logger.Error("processing failed",
		zap.String("crawl_id", body.CrawlID),
		zap.String("cep", body.CEP),
		zap.Int("receive_count", msg.ReceiveCount),
		zap.Error(err),
	)

	if msg.ReceiveCount < w.cfg.MaxReceive {
		// Leave the message unacknowledged; the broker redelivers it
		// after the visibility timeout.
		metrics.ObserveMessage("retried")
		w.logger.Info("message left for redelivery",
			zap.String("cep", body.CEP),
			zap.Int("attempt", msg.ReceiveCount),
			zap.Int("max", w.cfg.MaxReceive),
		)
		return
	}

	w.deadLetter(ctx, msg, body, err)
}

// fetchAndRecord is the rate-limited unit of work. The lookup itself
// never fails (semantic failures come back as outcomes); any error
// returned here is from persistence and drives the retry path.
func (w *Worker) fetchAndRecord(ctx context.Context, crawlID, code string) error {
	outcome := w.lookup.Fetch(ctx, code)

	result := cep.Result{
		CrawlID:     crawlID,
		CEP:         code,
		Success:     outcome.Success,
		Address:     outcome.Address,
		Failure:     outcome.Failure,
		ProcessedAt: w.clock.Now(),
	}
	if err := w.store.InsertResult(ctx, result); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if _, err := w.progress.Increment(ctx, crawlID, outcome.Success); err != nil {
		return err
	}

	if outcome.Success {
		w.logger.Debug("cep processed", zap.String("cep", code))
	} else {
		w.logger.Debug("cep lookup failed",
			zap.String("cep", code),
			zap.String("kind", string(outcome.Failure.Kind)),
		)
	}
	return nil
}

// deadLetter terminates a retry chain: record the failure, count it,
// acknowledge. Without this a permanently failing message would block
// job completion forever.
func (w *Worker) deadLetter(ctx context.Context, msg queue.Message, body cep.QueueMessage, cause error) {
	result := cep.Result{
		CrawlID:     body.CrawlID,
		CEP:         body.CEP,
		Success:     false,
		Failure:     cep.NewError(cep.KindMaxRetries, cause.Error()),
		ProcessedAt: w.clock.Now(),
	}
	if err := w.store.InsertResult(ctx, result); err != nil {
		// Leave unacknowledged; the next redelivery lands here again.
		w.logger.Error("dead-letter persist failed",
			zap.String("cep", body.CEP), zap.Error(err))
		return
	}
	if _, err := w.progress.Increment(ctx, body.CrawlID, false); err != nil {
		w.logger.Error("dead-letter progress update failed",
			zap.String("cep", body.CEP), zap.Error(err))
		return
	}

	w.logger.Warn("max retries exceeded",
		zap.String("crawl_id", body.CrawlID),
		zap.String("cep", body.CEP),
		zap.Int("receive_count", msg.ReceiveCount),
	)
	w.ack(ctx, msg, "dead_lettered")
}

func (w *Worker) ack(ctx context.Context, msg queue.Message, result string) {
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error("message delete failed", zap.Error(err))
		return
	}
	metrics.ObserveMessage(result)
}
