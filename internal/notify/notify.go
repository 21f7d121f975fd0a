// Package notify publishes job completion events. This abstraction
// keeps the progress tracker independent of a specific event bus.
package notify

import (
	"context"

	"cepcrawler/internal/cep"
)

// Publisher emits an event when a crawl job reaches a terminal status.
type Publisher interface {
	// JobFinished publishes the terminal snapshot of a job. Delivery is
	// best-effort; callers must not fail their own work on error.
	JobFinished(ctx context.Context, job cep.CrawlJob) error

	// Close cleans up any client connections and resources.
	Close() error
}

// NoOpPublisher is used when no event bus is configured.
type NoOpPublisher struct{}

// JobFinished for NoOpPublisher does nothing and returns nil.
func (NoOpPublisher) JobFinished(context.Context, cep.CrawlJob) error { return nil }

// Close for NoOpPublisher does nothing and returns nil.
func (NoOpPublisher) Close() error { return nil }
