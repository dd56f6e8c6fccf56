package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dquispe/sismo-sync/internal/models"
)

// defaultBatchSize bounds one insert transaction.
const defaultBatchSize = 25

type SQLiteDB struct {
	db        *sql.DB
	batchSize int
}

func NewSQLiteDB(path string, batchSize int) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	if batchSize < 1 {
		batchSize = defaultBatchSize
	}

	s := &SQLiteDB{
		db:        db,
		batchSize: batchSize,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sismos (
			id TEXT PRIMARY KEY,
			fecha_hora_local TEXT,
			magnitud REAL,
			procesado_en TEXT,
			record BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sismos_fecha ON sismos(fecha_hora_local);
		CREATE INDEX IF NOT EXISTS idx_sismos_magnitud ON sismos(magnitud);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Scan pages through ids in key order. The returned token is the last id of
// a full page; passing it back resumes after that key.
func (s *SQLiteDB) Scan(ctx context.Context, startToken string, limit int) ([]string, string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sismos WHERE id > ? ORDER BY id LIMIT ?`, startToken, limit)
	if err != nil {
		return nil, "", fmt.Errorf("error scanning sismos: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, "", fmt.Errorf("error scanning row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating rows: %w", err)
	}

	next := ""
	if len(ids) == limit {
		next = ids[len(ids)-1]
	}
	return ids, next, nil
}

func (s *SQLiteDB) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sismos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("error deleting sismo %s: %w", id, err)
	}
	return nil
}

// BatchPut inserts records in transactions of at most batchSize rows,
// mirroring the chunked batch writes of a managed key-value store.
func (s *SQLiteDB) BatchPut(ctx context.Context, records []models.Record) (int, error) {
	count := 0
	for start := 0; start < len(records); start += s.batchSize {
		end := min(start+s.batchSize, len(records))
		n, err := s.putChunk(ctx, records[start:end])
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *SQLiteDB) putChunk(ctx context.Context, records []models.Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO sismos (id, fecha_hora_local, magnitud, procesado_en, record)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		blob, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("error encoding record %s: %w", rec.ID(), err)
		}

		if _, err := stmt.ExecContext(ctx,
			rec.ID(), textColumn(rec, "fecha_hora_local"), magnitudColumn(rec),
			textColumn(rec, "procesado_en"), blob,
		); err != nil {
			return 0, fmt.Errorf("error inserting sismo %s: %w", rec.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing insert batch: %w", err)
	}
	return len(records), nil
}

func (s *SQLiteDB) List(ctx context.Context, opts Filter) ([]models.Record, error) {
	query := `SELECT record FROM sismos`
	var conds []string
	var args []any

	if opts.MinMagnitud != nil {
		conds = append(conds, `magnitud >= ?`)
		args = append(args, *opts.MinMagnitud)
	}
	if opts.Since != nil {
		conds = append(conds, `fecha_hora_local >= ?`)
		args = append(args, opts.Since.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}

	query += ` ORDER BY fecha_hora_local DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing sismos: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("error scanning record: %w", err)
		}

		rec, err := decodeRecord(blob)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

func (s *SQLiteDB) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sismos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting sismos: %w", err)
	}
	return n, nil
}

// decodeRecord round-trips the stored JSON with UseNumber so numeric fields
// keep their exact stored text.
func decodeRecord(blob []byte) (models.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()

	var rec models.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("error decoding stored record: %w", err)
	}
	return rec, nil
}

func textColumn(rec models.Record, key string) any {
	if s, ok := rec[key].(string); ok && s != "" {
		return s
	}
	return nil
}

// magnitudColumn extracts a float for the indexed column. The exact decimal
// lives in the record blob; the column only serves range filters.
func magnitudColumn(rec models.Record) any {
	switch v := rec["magnitud"].(type) {
	case decimal.Decimal:
		return v.InexactFloat64()
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case float64:
		return v
	}
	return nil
}
