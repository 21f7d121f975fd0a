package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cepcrawler/internal/cep"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	db DB
}

// NewPostgres connects a pool and pings it.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: pool}, nil
}

// NewPostgresFromDB wraps an existing DB handle (used by tests).
func NewPostgresFromDB(db DB) *Postgres {
	return &Postgres{db: db}
}

const jobColumns = "crawl_id, cep_start, cep_end, total, processed, successes, errors, status, created_at, updated_at"

func scanJob(row pgx.Row) (cep.CrawlJob, error) {
	var job cep.CrawlJob
	err := row.Scan(
		&job.CrawlID,
		&job.CEPStart,
		&job.CEPEnd,
		&job.Total,
		&job.Processed,
		&job.Successes,
		&job.Errors,
		&job.Status,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return cep.CrawlJob{}, ErrNotFound
	}
	if err != nil {
		return cep.CrawlJob{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// CreateJob inserts a new crawl job row.
func (p *Postgres) CreateJob(ctx context.Context, job cep.CrawlJob) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO crawls (crawl_id, cep_start, cep_end, total, processed, successes, errors, status)
		 VALUES ($1, $2, $3, $4, 0, 0, 0, $5)`,
		job.CrawlID, job.CEPStart, job.CEPEnd, job.Total, job.Status,
	)
	if err != nil {
		return fmt.Errorf("insert crawl: %w", err)
	}
	return nil
}

// UpdateJobStatus sets the status column.
func (p *Postgres) UpdateJobStatus(ctx context.Context, crawlID string, status cep.Status) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE crawls SET status = $2, updated_at = now() WHERE crawl_id = $1`,
		crawlID, status,
	)
	if err != nil {
		return fmt.Errorf("update crawl status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob loads one job.
func (p *Postgres) GetJob(ctx context.Context, crawlID string) (cep.CrawlJob, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM crawls WHERE crawl_id = $1`,
		crawlID,
	)
	return scanJob(row)
}

// IncrementProgress bumps the counters in one atomic UPDATE and
// returns the resulting row. Serialization per job comes from the row
// lock the UPDATE takes, so two workers can never both observe the
// same post-increment state.
func (p *Postgres) IncrementProgress(ctx context.Context, crawlID string, success bool) (cep.CrawlJob, error) {
	row := p.db.QueryRow(ctx,
		`UPDATE crawls
		    SET processed = processed + 1,
		        successes = successes + CASE WHEN $2 THEN 1 ELSE 0 END,
		        errors    = errors    + CASE WHEN $2 THEN 0 ELSE 1 END,
		        updated_at = now()
		  WHERE crawl_id = $1
		  RETURNING `+jobColumns,
		crawlID, success,
	)
	return scanJob(row)
}

// InsertResult appends one lookup outcome. The address and failure
// payloads are stored as JSONB, matching their wire shape.
func (p *Postgres) InsertResult(ctx context.Context, result cep.Result) error {
	var data, failure []byte
	var err error
	if result.Address != nil {
		if data, err = json.Marshal(result.Address); err != nil {
			return fmt.Errorf("marshal address: %w", err)
		}
	}
	if result.Failure != nil {
		if failure, err = json.Marshal(result.Failure); err != nil {
			return fmt.Errorf("marshal failure: %w", err)
		}
	}

	_, err = p.db.Exec(ctx,
		`INSERT INTO cep_results (crawl_id, cep, success, data, error, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		result.CrawlID, result.CEP, result.Success, data, failure, result.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListResults returns one page of results, newest first.
func (p *Postgres) ListResults(ctx context.Context, crawlID string, page, limit int) ([]cep.Result, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	var total int64
	if err := p.db.QueryRow(ctx,
		`SELECT count(*) FROM cep_results WHERE crawl_id = $1`,
		crawlID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	rows, err := p.db.Query(ctx,
		`SELECT crawl_id, cep, success, data, error, processed_at
		   FROM cep_results
		  WHERE crawl_id = $1
		  ORDER BY processed_at DESC, id DESC
		  LIMIT $2 OFFSET $3`,
		crawlID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []cep.Result
	for rows.Next() {
		var (
			res     cep.Result
			data    []byte
			failure []byte
		)
		if err := rows.Scan(&res.CrawlID, &res.CEP, &res.Success, &data, &failure, &res.ProcessedAt); err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		if len(data) > 0 {
			res.Address = &cep.Address{}
			if err := json.Unmarshal(data, res.Address); err != nil {
				return nil, 0, fmt.Errorf("unmarshal address: %w", err)
			}
		}
		if len(failure) > 0 {
			res.Failure = &cep.Error{}
			if err := json.Unmarshal(failure, res.Failure); err != nil {
				return nil, 0, fmt.Errorf("unmarshal failure: %w", err)
			}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate results: %w", err)
	}
	return results, total, nil
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.db.Close()
}
