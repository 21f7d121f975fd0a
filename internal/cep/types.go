// Package cep holds the domain model for CEP range crawls: the job
// record with its progress counters, per-code lookup results, and the
// range expansion logic shared by the API and the worker.
package cep

import "time"

// Status is the lifecycle state of a crawl job. The values match the
// text stored in crawls.status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the status will never change again.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// CrawlJob is one range-crawl request and its aggregate progress.
// Counters are mutated only through the store's atomic increment, so
// processed == successes + errors holds at every observable point.
type CrawlJob struct {
	CrawlID   string    `json:"crawl_id"`
	CEPStart  string    `json:"cep_start"`
	CEPEnd    string    `json:"cep_end"`
	Total     int64     `json:"total"`
	Processed int64     `json:"processed"`
	Successes int64     `json:"successes"`
	Errors    int64     `json:"errors"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Address is the normalized ViaCEP payload for one code. Optional
// fields are empty strings rather than absent.
type Address struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	IBGE        string `json:"ibge"`
	GIA         string `json:"gia"`
	DDD         string `json:"ddd"`
	SIAFI       string `json:"siafi"`
}

// Result is the terminal outcome of looking up one code within one
// job. Exactly one of Address and Failure is set, selected by Success.
// Results are an append-only log, never updated or deleted.
type Result struct {
	CrawlID     string    `json:"crawl_id"`
	CEP         string    `json:"cep"`
	Success     bool      `json:"success"`
	Address     *Address  `json:"data,omitempty"`
	Failure     *Error    `json:"error,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Outcome is the tagged result of one lookup call. Exactly one of
// Address and Failure is set, selected by Success.
type Outcome struct {
	Success bool     `json:"success"`
	Address *Address `json:"data,omitempty"`
	Failure *Error   `json:"error,omitempty"`
}

// QueueMessage is the unit of work published per code. The broker
// wraps it with a delivery handle and receive count on the way out.
type QueueMessage struct {
	CrawlID string `json:"crawl_id"`
	CEP     string `json:"cep"`
}
