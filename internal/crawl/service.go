// Package crawl implements the orchestration side of the pipeline:
// creating jobs, fanning the range out onto the queue, and reading
// status and results back. The progress tracker lives here too.
package crawl

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"cepcrawler/internal/cep"
	"cepcrawler/internal/queue"
	"cepcrawler/internal/store"
)

// IDGenerator creates unique crawl identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Service creates crawl jobs and serves status/result reads.
type Service struct {
	store    store.Store
	queue    queue.Provider
	idGen    IDGenerator
	maxRange int
	logger   *zap.Logger
}

// NewService constructs a Service.
func NewService(st store.Store, q queue.Provider, idGen IDGenerator, maxRange int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRange <= 0 {
		maxRange = cep.DefaultMaxRange
	}
	return &Service{
		store:    st,
		queue:    q,
		idGen:    idGen,
		maxRange: maxRange,
		logger:   logger,
	}
}

// CreateResult is the response to a crawl submission.
type CreateResult struct {
	CrawlID string `json:"crawl_id"`
	Total   int64  `json:"total"`
}

// CreateCrawl validates the range, persists a pending job, enqueues
// one message per code and flips the job to running. Total always
// reflects the full range even if some sends fail; there is no
// rollback, failed sends just never complete.
func (s *Service) CreateCrawl(ctx context.Context, start, end string) (CreateResult, error) {
	codes, err := cep.ExpandRange(start, end, s.maxRange)
	if err != nil {
		return CreateResult{}, err
	}

	crawlID, err := s.idGen.NewID()
	if err != nil {
		return CreateResult{}, fmt.Errorf("generate crawl id: %w", err)
	}

	job := cep.CrawlJob{
		CrawlID:  crawlID,
		CEPStart: start,
		CEPEnd:   end,
		Total:    int64(len(codes)),
		Status:   cep.StatusPending,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return CreateResult{}, fmt.Errorf("create job: %w", err)
	}

	enqueued := 0
	for _, code := range codes {
		body, err := json.Marshal(cep.QueueMessage{CrawlID: crawlID, CEP: code})
		if err != nil {
			return CreateResult{}, fmt.Errorf("marshal message: %w", err)
		}
		if err := s.queue.Send(ctx, body); err != nil {
			s.logger.Error("enqueue failed",
				zap.String("crawl_id", crawlID),
				zap.String("cep", code),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}
	s.logger.Info("crawl created",
		zap.String("crawl_id", crawlID),
		zap.Int("total", len(codes)),
		zap.Int("enqueued", enqueued),
	)

	if err := s.store.UpdateJobStatus(ctx, crawlID, cep.StatusRunning); err != nil {
		return CreateResult{}, fmt.Errorf("mark running: %w", err)
	}

	return CreateResult{CrawlID: crawlID, Total: job.Total}, nil
}

// GetStatus returns the current job snapshot.
func (s *Service) GetStatus(ctx context.Context, crawlID string) (cep.CrawlJob, error) {
	return s.store.GetJob(ctx, crawlID)
}

const maxResultsLimit = 200

// Pagination describes one page of results.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ResultsPage bundles results with pagination metadata.
type ResultsPage struct {
	Results    []cep.Result `json:"results"`
	Pagination Pagination   `json:"pagination"`
}

// GetResults returns one page of results, newest first. It returns
// store.ErrNotFound when the job itself does not exist.
func (s *Service) GetResults(ctx context.Context, crawlID string, page, limit int) (ResultsPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > maxResultsLimit {
		limit = maxResultsLimit
	}

	if _, err := s.store.GetJob(ctx, crawlID); err != nil {
		return ResultsPage{}, err
	}

	results, total, err := s.store.ListResults(ctx, crawlID, page, limit)
	if err != nil {
		return ResultsPage{}, fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []cep.Result{}
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return ResultsPage{
		Results: results,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}
