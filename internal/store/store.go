// Package store persists crawl jobs and lookup results.
package store

import (
	"context"
	"errors"

	"cepcrawler/internal/cep"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary shared by the API and the worker.
type Store interface {
	// CreateJob inserts a new crawl job row.
	CreateJob(ctx context.Context, job cep.CrawlJob) error

	// UpdateJobStatus sets the status column. Returns ErrNotFound for
	// unknown jobs.
	UpdateJobStatus(ctx context.Context, crawlID string, status cep.Status) error

	// GetJob loads one job or returns ErrNotFound.
	GetJob(ctx context.Context, crawlID string) (cep.CrawlJob, error)

	// IncrementProgress atomically bumps processed and, depending on
	// success, successes or errors, returning the post-increment row.
	// The increment happens in a single UPDATE so concurrent workers
	// cannot lose updates. Returns ErrNotFound for unknown jobs.
	IncrementProgress(ctx context.Context, crawlID string, success bool) (cep.CrawlJob, error)

	// InsertResult appends one lookup outcome. Results are never
	// updated or deleted.
	InsertResult(ctx context.Context, result cep.Result) error

	// ListResults returns one page of results for a job, newest first,
	// along with the total result count for the job.
	ListResults(ctx context.Context, crawlID string, page, limit int) ([]cep.Result, int64, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close()
}
