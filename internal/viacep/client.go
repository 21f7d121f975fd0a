// Package viacep wraps the ViaCEP address lookup service. Every call
// produces a tagged Outcome; transport and parsing failures are
// normalized into the outcome rather than returned as errors.
package viacep

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"cepcrawler/internal/cep"
	"cepcrawler/internal/metrics"
)

// Lookup is the consumer-facing interface so callers can wrap the
// client (e.g. with the Redis cache) without caring which they hold.
type Lookup interface {
	Fetch(ctx context.Context, code string) cep.Outcome
}

// Config holds lookup client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client performs one HTTP GET per lookup against ViaCEP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://viacep.com.br/ws"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// payload mirrors the ViaCEP JSON response. A found code carries the
// address fields; a miss carries {"erro": true}.
type payload struct {
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
	Erro        bool   `json:"erro"`
}

// Fetch looks up one code. It never returns a Go error: not-found and
// transport/parse failures come back as tagged failure outcomes.
func (c *Client) Fetch(ctx context.Context, code string) cep.Outcome {
	url := fmt.Sprintf("%s/%s/json/", c.baseURL, code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.fetchError(code, fmt.Sprintf("build request: %v", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fetchError(code, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fetchError(code, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var body payload
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return c.fetchError(code, fmt.Sprintf("decode response: %v", err))
	}

	if body.Erro {
		metrics.ObserveLookup("not_found")
		return cep.Outcome{
			Success: false,
			Failure: cep.NewError(cep.KindNotFound, "CEP not found"),
		}
	}

	metrics.ObserveLookup("success")
	return cep.Outcome{
		Success: true,
		Address: normalize(body, code),
	}
}

func (c *Client) fetchError(code, message string) cep.Outcome {
	c.logger.Warn("viacep fetch failed", zap.String("cep", code), zap.String("reason", message))
	metrics.ObserveLookup("fetch_error")
	return cep.Outcome{
		Success: false,
		Failure: cep.NewError(cep.KindFetchError, message),
	}
}

// normalize strips formatting punctuation from the returned code and
// keeps every optional field as a plain (possibly empty) string.
func normalize(body payload, requested string) *cep.Address {
	codeOut := strings.ReplaceAll(body.CEP, "-", "")
	if codeOut == "" {
		codeOut = requested
	}
	return &cep.Address{
		CEP:         codeOut,
		Logradouro:  body.Logradouro,
		Complemento: body.Complemento,
		Bairro:      body.Bairro,
		Localidade:  body.Localidade,
		UF:          body.UF,
		IBGE:        body.IBGE,
		GIA:         body.GIA,
		DDD:         body.DDD,
		SIAFI:       body.SIAFI,
	}
}
