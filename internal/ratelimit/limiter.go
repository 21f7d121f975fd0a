// Package ratelimit serializes operations so that no more than a
// configured number start per second, regardless of how many callers
// submit concurrently.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cepcrawler/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerSecond float64
}

type submission struct {
	ctx    context.Context
	fn     func(context.Context) error
	done   chan error
	queued time.Time
}

// Limiter executes submitted operations strictly one at a time, in
// submission order, spacing consecutive starts at least
// 1/RequestsPerSecond apart. A single drain goroutine owns execution;
// it exits when the queue empties and is restarted by the next
// submission. Operations are never dropped.
type Limiter struct {
	mu       sync.Mutex
	pending  []submission
	draining bool
	pacer    *rate.Limiter
}

// New creates a Limiter. Non-positive rates fall back to 1 req/s.
func New(cfg Config) *Limiter {
	metrics.Init()
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Limiter{
		pacer: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// SetRate reconfigures the rate at runtime. It takes effect on the
// next dequeue; the operation currently executing is unaffected.
func (l *Limiter) SetRate(requestsPerSecond float64) {
	if requestsPerSecond <= 0 {
		return
	}
	l.pacer.SetLimit(rate.Limit(requestsPerSecond))
}

// Execute queues fn and blocks until it has run, returning its error.
// Submission order is execution order (FIFO). If ctx is canceled
// before fn's slot arrives, the ctx error is returned instead and fn
// never runs.
func (l *Limiter) Execute(ctx context.Context, fn func(context.Context) error) error {
	sub := submission{
		ctx:    ctx,
		fn:     fn,
		done:   make(chan error, 1),
		queued: time.Now(),
	}

	l.mu.Lock()
	l.pending = append(l.pending, sub)
	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()

	return <-sub.done
}

// drain runs queued operations one at a time until the queue empties.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}
		sub := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()

		if err := l.pacer.Wait(sub.ctx); err != nil {
			sub.done <- err
			continue
		}
		metrics.ObserveRateLimitDelay(time.Since(sub.queued))
		sub.done <- sub.fn(sub.ctx)
	}
}
