package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dquispe/sismo-sync/internal/igp"
	"github.com/dquispe/sismo-sync/internal/models"
	"github.com/dquispe/sismo-sync/internal/normalize"
	"github.com/dquispe/sismo-sync/internal/observability"
)

// ErrBusy is returned when a refresh is requested while another run holds the
// table. Concurrent runs would race on the delete/insert phases.
var ErrBusy = errors.New("refresh already in progress")

// Fetcher retrieves the raw records for one year.
type Fetcher interface {
	FetchYear(ctx context.Context, year int) igp.FetchResult
}

// TableStore is the slice of the repository a run needs: full scan with
// pagination, delete by key, batched insert.
type TableStore interface {
	Scan(ctx context.Context, startToken string, limit int) (ids []string, nextToken string, err error)
	Delete(ctx context.Context, id string) error
	BatchPut(ctx context.Context, records []models.Record) (int, error)
}

// Runner executes full-refresh runs: fetch each year, normalize, then replace
// the table contents with the accumulated set.
type Runner struct {
	fetcher      Fetcher
	store        TableStore
	metrics      *observability.Metrics
	scanPageSize int
	mu           sync.Mutex
}

func NewRunner(fetcher Fetcher, store TableStore, metrics *observability.Metrics, scanPageSize int) *Runner {
	return &Runner{
		fetcher:      fetcher,
		store:        store,
		metrics:      metrics,
		scanPageSize: scanPageSize,
	}
}

// Run processes [startYear, endYear] in ascending order (swapping a reversed
// range), accumulates normalized records across years, and replaces the table
// once at the end.
//
// A year whose fetch fails is recorded in the summary's errors and skipped; a
// store failure during the replace is fatal and returns a non-nil error with
// no summary. ErrBusy is returned when another run is in progress.
func (r *Runner) Run(ctx context.Context, startYear, endYear int) (models.RunSummary, error) {
	if !r.mu.TryLock() {
		r.metrics.RefreshRuns.WithLabelValues("busy").Inc()
		return models.RunSummary{}, ErrBusy
	}
	defer r.mu.Unlock()

	began := time.Now()

	if endYear < startYear {
		startYear, endYear = endYear, startYear
	}

	slog.Info("refresh run starting", "start_year", startYear, "end_year", endYear)

	summary := models.NewRunSummary()
	var all []models.Record

	for year := startYear; year <= endYear; year++ {
		res := r.fetcher.FetchYear(ctx, year)
		if !res.OK {
			slog.Warn("fetch failed, skipping year", "year", year, "error", res.Err)
			r.metrics.FetchErrors.Inc()
			summary.AddError(year, res.Err)
			continue
		}

		for _, raw := range res.Items {
			all = append(all, normalize.Normalize(raw))
		}
		summary.AddYear(year, len(res.Items))
		slog.Debug("year processed", "year", year, "count", len(res.Items))
	}

	inserted, err := r.replaceTable(ctx, all)
	if err != nil {
		r.metrics.RefreshRuns.WithLabelValues("error").Inc()
		return models.RunSummary{}, err
	}
	summary.TotalInserted = inserted

	r.metrics.RefreshRuns.WithLabelValues("success").Inc()
	r.metrics.RecordsInserted.Add(float64(inserted))
	r.metrics.RunDuration.Observe(time.Since(began).Seconds())
	r.metrics.LastRefresh.SetToCurrentTime()

	slog.Info("refresh run complete",
		"years", len(summary.YearsProcessed),
		"errors", len(summary.Errors),
		"total_inserted", inserted,
	)
	return summary, nil
}

// replaceTable deletes every existing row, then bulk-inserts the new set.
// The two phases never interleave; the table is briefly empty in between,
// which this periodic full-refresh model tolerates.
func (r *Runner) replaceTable(ctx context.Context, records []models.Record) (int, error) {
	token := ""
	for {
		ids, next, err := r.store.Scan(ctx, token, r.scanPageSize)
		if err != nil {
			return 0, fmt.Errorf("error clearing table: %w", err)
		}
		for _, id := range ids {
			if err := r.store.Delete(ctx, id); err != nil {
				return 0, fmt.Errorf("error clearing table: %w", err)
			}
		}
		if next == "" {
			break
		}
		token = next
	}

	count, err := r.store.BatchPut(ctx, records)
	if err != nil {
		return count, fmt.Errorf("error inserting records: %w", err)
	}
	return count, nil
}
