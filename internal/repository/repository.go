package repository

import (
	"context"
	"time"

	"github.com/dquispe/sismo-sync/internal/models"
)

// Filter narrows List results for the query API.
type Filter struct {
	Limit       int
	MinMagnitud *float64
	Since       *time.Time
}

// Store is the persistent table keyed by record id. The refresh run only
// needs the scan/delete/put triple; List and Count serve the read API.
type Store interface {
	// Scan returns one page of ids starting after startToken. An empty
	// nextToken means the table is exhausted.
	Scan(ctx context.Context, startToken string, limit int) (ids []string, nextToken string, err error)
	Delete(ctx context.Context, id string) error
	// BatchPut writes all records in chunked transactions and returns the
	// number written.
	BatchPut(ctx context.Context, records []models.Record) (int, error)

	List(ctx context.Context, opts Filter) ([]models.Record, error)
	Count(ctx context.Context) (int, error)
}
