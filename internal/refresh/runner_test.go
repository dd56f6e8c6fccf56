package refresh

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dquispe/sismo-sync/internal/igp"
	"github.com/dquispe/sismo-sync/internal/models"
	"github.com/dquispe/sismo-sync/internal/observability"
)

// fakeFetcher serves canned results per year and records the order of calls.
type fakeFetcher struct {
	mu      sync.Mutex
	results map[int]igp.FetchResult
	fetched []int
}

func (f *fakeFetcher) FetchYear(_ context.Context, year int) igp.FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, year)
	if res, ok := f.results[year]; ok {
		return res
	}
	return igp.FetchResult{OK: true, Items: []models.Record{}}
}

// fakeStore is an in-memory TableStore with keyset pagination and injectable
// failures.
type fakeStore struct {
	mu          sync.Mutex
	items       map[string]models.Record
	failScan    error
	failDelete  error
	failPut     error
	putCalls    int
	deleteCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[string]models.Record)}
}

func (f *fakeStore) Scan(_ context.Context, startToken string, limit int) ([]string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScan != nil {
		return nil, "", f.failScan
	}

	var ids []string
	for id := range f.items {
		if id > startToken {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	next := ""
	if len(ids) == limit {
		next = ids[len(ids)-1]
	}
	return ids, next, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.items, id)
	return nil
}

func (f *fakeStore) BatchPut(_ context.Context, records []models.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.failPut != nil {
		return 0, f.failPut
	}
	for _, rec := range records {
		f.items[rec.ID()] = rec
	}
	return len(records), nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func newTestRunner(fetcher Fetcher, store TableStore) *Runner {
	return NewRunner(fetcher, store, observability.NewMetricsForTesting(), 2)
}

func yearRecords(n int) []models.Record {
	records := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.Record{
			"fecha_local": "2025-01-01T00:00:00.000Z",
			"hora_local":  "1970-01-01T12:08:29.000Z",
			"magnitud":    "4.5",
		})
	}
	return records
}

func TestRunner_SwapsReversedRange(t *testing.T) {
	fetcher := &fakeFetcher{results: map[int]igp.FetchResult{}}
	runner := newTestRunner(fetcher, newFakeStore())

	summary, err := runner.Run(context.Background(), 2024, 2023)
	require.NoError(t, err)

	assert.Equal(t, []int{2023, 2024}, fetcher.fetched)
	require.Len(t, summary.YearsProcessed, 2)
	assert.Equal(t, 2023, summary.YearsProcessed[0].Year)
	assert.Equal(t, 2024, summary.YearsProcessed[1].Year)
}

func TestRunner_NoDataYearCountsZero(t *testing.T) {
	// 404 upstream surfaces as an OK empty result.
	fetcher := &fakeFetcher{results: map[int]igp.FetchResult{
		2022: {OK: true, Items: []models.Record{}},
	}}
	runner := newTestRunner(fetcher, newFakeStore())

	summary, err := runner.Run(context.Background(), 2022, 2022)
	require.NoError(t, err)

	assert.Equal(t, []models.YearCount{{Year: 2022, Count: 0}}, summary.YearsProcessed)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 0, summary.TotalInserted)
}

func TestRunner_FetchErrorYearIsSkipped(t *testing.T) {
	fetcher := &fakeFetcher{results: map[int]igp.FetchResult{
		2021: {Err: "HTTP 503"},
		2022: {OK: true, Items: yearRecords(3)},
	}}
	store := newFakeStore()
	runner := newTestRunner(fetcher, store)

	summary, err := runner.Run(context.Background(), 2021, 2022)
	require.NoError(t, err)

	assert.Equal(t, []models.YearError{{Year: 2021, Error: "HTTP 503"}}, summary.Errors)
	assert.Equal(t, []models.YearCount{{Year: 2022, Count: 3}}, summary.YearsProcessed)
	assert.Equal(t, 3, summary.TotalInserted)
	assert.Equal(t, 3, store.count())
}

func TestRunner_NormalizesBeforeInsert(t *testing.T) {
	fetcher := &fakeFetcher{results: map[int]igp.FetchResult{
		2025: {OK: true, Items: yearRecords(1)},
	}}
	store := newFakeStore()
	runner := newTestRunner(fetcher, store)

	_, err := runner.Run(context.Background(), 2025, 2025)
	require.NoError(t, err)

	for _, rec := range store.items {
		assert.NotEmpty(t, rec.ID())
		assert.Equal(t, "2025-01-01T12:08:29.000Z", rec["fecha_hora_local"])
		assert.NotEmpty(t, rec["procesado_en"])
	}
}

func TestRunner_ReplacesEntireTable(t *testing.T) {
	store := newFakeStore()
	store.items["stale-1"] = models.Record{"id": "stale-1"}
	store.items["stale-2"] = models.Record{"id": "stale-2"}
	store.items["stale-3"] = models.Record{"id": "stale-3"}

	fetcher := &fakeFetcher{results: map[int]igp.FetchResult{
		2025: {OK: true, Items: yearRecords(2)},
	}}
	runner := newTestRunner(fetcher, store)

	summary, err := runner.Run(context.Background(), 2025, 2025)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalInserted)
	assert.Equal(t, 2, store.count())
	_, stale := store.items["stale-1"]
	assert.False(t, stale, "stale rows must not survive a run")
	// Scan page size is 2, so clearing 3 rows takes multiple pages.
	assert.Equal(t, 3, store.deleteCalls)
}

func TestRunner_SecondRunDoesNotAccumulate(t *testing.T) {
	fetcher := &fakeFetcher{results: map[int]igp.FetchResult{
		2025: {OK: true, Items: yearRecords(4)},
	}}
	store := newFakeStore()
	runner := newTestRunner(fetcher, store)

	_, err := runner.Run(context.Background(), 2025, 2025)
	require.NoError(t, err)

	summary, err := runner.Run(context.Background(), 2025, 2025)
	require.NoError(t, err)

	assert.Equal(t, summary.TotalInserted, store.count())
}

func TestRunner_DeleteFailureAbortsBeforeInsert(t *testing.T) {
	store := newFakeStore()
	store.items["old"] = models.Record{"id": "old"}
	store.failDelete = errors.New("table unavailable")

	fetcher := &fakeFetcher{results: map[int]igp.FetchResult{
		2025: {OK: true, Items: yearRecords(2)},
	}}
	runner := newTestRunner(fetcher, store)

	_, err := runner.Run(context.Background(), 2025, 2025)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error clearing table")
	assert.Equal(t, 0, store.putCalls, "insert must not be attempted after a delete failure")
}

func TestRunner_ScanFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.failScan = errors.New("scan broke")
	runner := newTestRunner(&fakeFetcher{}, store)

	_, err := runner.Run(context.Background(), 2025, 2025)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error clearing table")
	assert.Equal(t, 0, store.putCalls)
}

func TestRunner_InsertFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.failPut = errors.New("disk full")

	fetcher := &fakeFetcher{results: map[int]igp.FetchResult{
		2025: {OK: true, Items: yearRecords(1)},
	}}
	runner := newTestRunner(fetcher, store)

	_, err := runner.Run(context.Background(), 2025, 2025)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error inserting records")
}

// blockingFetcher parks the first run so a second can be attempted while the
// table lock is held.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) FetchYear(context.Context, int) igp.FetchResult {
	close(f.started)
	<-f.release
	return igp.FetchResult{OK: true, Items: []models.Record{}}
}

func TestRunner_RefusesConcurrentRun(t *testing.T) {
	fetcher := &blockingFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	runner := newTestRunner(fetcher, newFakeStore())

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), 2025, 2025)
		done <- err
	}()

	<-fetcher.started
	_, err := runner.Run(context.Background(), 2025, 2025)
	assert.ErrorIs(t, err, ErrBusy)

	close(fetcher.release)
	require.NoError(t, <-done)
}
