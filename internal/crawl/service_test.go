package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cepcrawler/internal/cep"
	"cepcrawler/internal/queue"
	"cepcrawler/internal/store"
)

// memStore is an in-memory store.Store for tests. Its increment is
// atomic under a mutex, mirroring the single-UPDATE semantics of the
// Postgres implementation.
type memStore struct {
	mu      sync.Mutex
	jobs    map[string]*cep.CrawlJob
	results []cep.Result

	incrementErr error
	insertErr    error
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*cep.CrawlJob{}}
}

func (m *memStore) CreateJob(_ context.Context, job cep.CrawlJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	m.jobs[job.CrawlID] = &job
	return nil
}

func (m *memStore) UpdateJobStatus(_ context.Context, crawlID string, status cep.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[crawlID]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) GetJob(_ context.Context, crawlID string) (cep.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[crawlID]
	if !ok {
		return cep.CrawlJob{}, store.ErrNotFound
	}
	return *job, nil
}

func (m *memStore) IncrementProgress(_ context.Context, crawlID string, success bool) (cep.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return cep.CrawlJob{}, m.incrementErr
	}
	job, ok := m.jobs[crawlID]
	if !ok {
		return cep.CrawlJob{}, store.ErrNotFound
	}
	job.Processed++
	if success {
		job.Successes++
	} else {
		job.Errors++
	}
	job.UpdatedAt = time.Now()
	return *job, nil
}

func (m *memStore) InsertResult(_ context.Context, result cep.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.results = append(m.results, result)
	return nil
}

func (m *memStore) ListResults(_ context.Context, crawlID string, page, limit int) ([]cep.Result, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []cep.Result
	for _, r := range m.results {
		if r.CrawlID == crawlID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ProcessedAt.After(all[j].ProcessedAt) })
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close()                     {}

// fakeQueue records sent bodies and optionally fails selected sends.
type fakeQueue struct {
	mu      sync.Mutex
	bodies  [][]byte
	failIdx map[int]error
	sends   int
}

func (q *fakeQueue) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.sends
	q.sends++
	if err, ok := q.failIdx[idx]; ok {
		return err
	}
	copied := make([]byte, len(body))
	copy(copied, body)
	q.bodies = append(q.bodies, copied)
	return nil
}

func (q *fakeQueue) Receive(context.Context, int, time.Duration) ([]queue.Message, error) {
	return nil, nil
}
func (q *fakeQueue) Delete(context.Context, string) error { return nil }
func (q *fakeQueue) Close() error                         { return nil }

type fakeIDGen struct{ id string }

func (g fakeIDGen) NewID() (string, error) { return g.id, nil }

func TestCreateCrawl_EnqueuesOneMessagePerCode(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	q := &fakeQueue{}
	svc := NewService(st, q, fakeIDGen{id: "crawl-1"}, 0, nil)

	res, err := svc.CreateCrawl(context.Background(), "01000000", "01000002")
	require.NoError(t, err)
	require.Equal(t, "crawl-1", res.CrawlID)
	require.Equal(t, int64(3), res.Total)

	require.Len(t, q.bodies, 3)
	var msg cep.QueueMessage
	require.NoError(t, json.Unmarshal(q.bodies[0], &msg))
	require.Equal(t, "crawl-1", msg.CrawlID)
	require.Equal(t, "01000000", msg.CEP)

	job, err := st.GetJob(context.Background(), "crawl-1")
	require.NoError(t, err)
	require.Equal(t, cep.StatusRunning, job.Status)
	require.Equal(t, int64(3), job.Total)
	require.Zero(t, job.Processed)
}

func TestCreateCrawl_ValidationErrorsPropagateVerbatim(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore(), &fakeQueue{}, fakeIDGen{id: "x"}, 0, nil)

	_, err := svc.CreateCrawl(context.Background(), "01000010", "01000005")
	var domainErr *cep.Error
	require.True(t, errors.As(err, &domainErr))
	require.Equal(t, cep.KindInvalidOrder, domainErr.Kind)
}

func TestCreateCrawl_PartialEnqueueFailureKeepsFullTotal(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	q := &fakeQueue{failIdx: map[int]error{1: errors.New("broker down")}}
	svc := NewService(st, q, fakeIDGen{id: "crawl-2"}, 0, nil)

	res, err := svc.CreateCrawl(context.Background(), "01000000", "01000002")
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Total, "total reports the full range")
	require.Len(t, q.bodies, 2, "only the successful sends reach the broker")

	job, err := st.GetJob(context.Background(), "crawl-2")
	require.NoError(t, err)
	require.Equal(t, cep.StatusRunning, job.Status)
}

func TestGetResults_UnknownJob(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore(), &fakeQueue{}, fakeIDGen{id: "x"}, 0, nil)

	_, err := svc.GetResults(context.Background(), "ghost", 1, 50)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetResults_Pagination(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	require.NoError(t, st.CreateJob(context.Background(), cep.CrawlJob{CrawlID: "crawl-3", Total: 5}))
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.InsertResult(context.Background(), cep.Result{
			CrawlID:     "crawl-3",
			CEP:         "0100000" + string(rune('0'+i)),
			Success:     true,
			Address:     &cep.Address{},
			ProcessedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	svc := NewService(st, &fakeQueue{}, fakeIDGen{id: "x"}, 0, nil)

	page, err := svc.GetResults(context.Background(), "crawl-3", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	require.Equal(t, Pagination{Page: 2, Limit: 2, Total: 5, TotalPages: 3}, page.Pagination)

	// Newest first: page 2 holds the 3rd and 2nd most recent.
	require.Equal(t, "01000002", page.Results[0].CEP)
	require.Equal(t, "01000001", page.Results[1].CEP)
}

func TestGetResults_DefaultsAndEmptyPage(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	require.NoError(t, st.CreateJob(context.Background(), cep.CrawlJob{CrawlID: "crawl-4", Total: 1}))
	svc := NewService(st, &fakeQueue{}, fakeIDGen{id: "x"}, 0, nil)

	page, err := svc.GetResults(context.Background(), "crawl-4", 0, 0)
	require.NoError(t, err)
	require.NotNil(t, page.Results)
	require.Empty(t, page.Results)
	require.Equal(t, 1, page.Pagination.Page)
	require.Equal(t, 50, page.Pagination.Limit)
	require.Zero(t, page.Pagination.TotalPages)
}

func TestGetResults_LimitIsCapped(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	require.NoError(t, st.CreateJob(context.Background(), cep.CrawlJob{CrawlID: "crawl-5", Total: 1}))
	svc := NewService(st, &fakeQueue{}, fakeIDGen{id: "x"}, 0, nil)

	page, err := svc.GetResults(context.Background(), "crawl-5", 1, 5000)
	require.NoError(t, err)
	require.Equal(t, 200, page.Pagination.Limit)
}
