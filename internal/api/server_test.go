package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cepcrawler/internal/cep"
	"cepcrawler/internal/crawl"
	"cepcrawler/internal/store"
)

type fakeService struct {
	createRes crawl.CreateResult
	createErr error
	job       cep.CrawlJob
	jobErr    error
	page      crawl.ResultsPage
	pageErr   error

	gotStart, gotEnd string
	gotPage, gotLim  int
}

func (f *fakeService) CreateCrawl(_ context.Context, start, end string) (crawl.CreateResult, error) {
	f.gotStart, f.gotEnd = start, end
	return f.createRes, f.createErr
}

func (f *fakeService) GetStatus(context.Context, string) (cep.CrawlJob, error) {
	return f.job, f.jobErr
}

func (f *fakeService) GetResults(_ context.Context, _ string, page, limit int) (crawl.ResultsPage, error) {
	f.gotPage, f.gotLim = page, limit
	return f.page, f.pageErr
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, svc CrawlService, pinger Pinger) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(svc, pinger, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestCreateCrawl_Accepted(t *testing.T) {
	t.Parallel()

	svc := &fakeService{createRes: crawl.CreateResult{CrawlID: "crawl-1", Total: 11}}
	ts := newTestServer(t, svc, fakePinger{})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/crawl",
		`{"cep_start":"01000000","cep_end":"01000010"}`)

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "crawl-1", body["crawl_id"])
	require.Equal(t, float64(11), body["total"])
	require.Equal(t, "01000000", svc.gotStart)
	require.Equal(t, "01000010", svc.gotEnd)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCreateCrawl_DomainErrorIsBadRequest(t *testing.T) {
	t.Parallel()

	svc := &fakeService{createErr: cep.NewError(cep.KindInvalidOrder, "cep_start must not exceed cep_end")}
	ts := newTestServer(t, svc, fakePinger{})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/crawl",
		`{"cep_start":"01000010","cep_end":"01000000"}`)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, string(cep.KindInvalidOrder), errBody["code"])
}

func TestCreateCrawl_InvalidJSON(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeService{}, fakePinger{})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/crawl", `{not json`)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid JSON", body["error"])
}

func TestCreateCrawl_InternalError(t *testing.T) {
	t.Parallel()

	svc := &fakeService{createErr: errors.New("db down")}
	ts := newTestServer(t, svc, fakePinger{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/crawl",
		`{"cep_start":"01000000","cep_end":"01000001"}`)

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetCrawl_Snapshot(t *testing.T) {
	t.Parallel()

	svc := &fakeService{job: cep.CrawlJob{
		CrawlID:   "crawl-2",
		Total:     10,
		Processed: 4,
		Successes: 3,
		Errors:    1,
		Status:    cep.StatusRunning,
		CreatedAt: time.Unix(1000, 0).UTC(),
	}}
	ts := newTestServer(t, svc, fakePinger{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/crawl/crawl-2", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "crawl-2", body["crawl_id"])
	require.Equal(t, float64(4), body["processed"])
	require.Equal(t, "running", body["status"])
}

func TestGetCrawl_NotFound(t *testing.T) {
	t.Parallel()

	svc := &fakeService{jobErr: store.ErrNotFound}
	ts := newTestServer(t, svc, fakePinger{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/crawl/ghost", "")

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "crawl not found", body["error"])
}

func TestGetResults_PassesPagination(t *testing.T) {
	t.Parallel()

	svc := &fakeService{page: crawl.ResultsPage{
		Results:    []cep.Result{},
		Pagination: crawl.Pagination{Page: 2, Limit: 10, Total: 25, TotalPages: 3},
	}}
	ts := newTestServer(t, svc, fakePinger{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/crawl/crawl-3/results?page=2&limit=10", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, svc.gotPage)
	require.Equal(t, 10, svc.gotLim)
	pagination, ok := body["pagination"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(3), pagination["totalPages"])
}

func TestGetResults_BadQueryFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	svc := &fakeService{page: crawl.ResultsPage{Results: []cep.Result{}}}
	ts := newTestServer(t, svc, fakePinger{})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/crawl/crawl-4/results?page=abc&limit=", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Zero(t, svc.gotPage, "unparseable page defers to service defaults")
	require.Zero(t, svc.gotLim)
}

func TestGetResults_NotFound(t *testing.T) {
	t.Parallel()

	svc := &fakeService{pageErr: store.ErrNotFound}
	ts := newTestServer(t, svc, fakePinger{})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/crawl/ghost/results", "")

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeService{}, fakePinger{})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ready", body["status"])
}

func TestReadyz_StoreDown(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeService{}, fakePinger{err: errors.New("no route to host")})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeService{}, fakePinger{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
