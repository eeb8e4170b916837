package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// ClickHouseResultSink stores CRPS results in ClickHouse for diagnostics
// queries. Append-only; results are never updated in place.
type ClickHouseResultSink struct {
	db    *sql.DB
	table string
}

// NewClickHouseResultSink creates the sink over an established connection.
func NewClickHouseResultSink(db *sql.DB, table string) *ClickHouseResultSink {
	return &ClickHouseResultSink{db: db, table: table}
}

// ResultsSchema returns the idempotent DDL for the results table.
func ResultsSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.crps_results (
			asset LowCardinality(String),
			t0 DateTime64(3, 'UTC'),
			grid_index UInt16,
			grid_time DateTime64(3, 'UTC'),
			bucket LowCardinality(String),
			crps Float64,
			realized Float64,
			missing UInt8,
			scored_at DateTime64(3, 'UTC'),
			parameter_hash String,
			path0_gap_abs Float64,
			q05 Float64,
			q50 Float64,
			q95 Float64
		) ENGINE = ReplacingMergeTree(scored_at)
		PARTITION BY toYYYYMM(grid_time)
		ORDER BY (asset, grid_time, t0, grid_index)`, database),
	}
}

// Store inserts a batch of results as multi-row VALUES, chunked to keep
// round-trips bounded.
func (s *ClickHouseResultSink) Store(ctx context.Context, results []models.CRPSResult) error {
	if len(results) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(results); start += chunkSize {
		end := start + chunkSize
		if end > len(results) {
			end = len(results)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*14)
		for _, r := range results[start:end] {
			missing := uint8(0)
			if r.Missing {
				missing = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.Asset, r.T0, uint16(r.GridIndex), r.GridTime, string(r.Bucket),
				r.Score, r.Realized, missing, r.ScoredAt, r.ParamHash,
				r.PathGapAbs, r.Q05, r.Q50, r.Q95,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (asset, t0, grid_index, grid_time, bucket, crps, realized, missing, scored_at, parameter_hash, path0_gap_abs, q05, q50, q95) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert crps results: %w", err)
		}
	}
	return nil
}

// Query returns every result whose grid time falls inside [from, to]. FINAL
// collapses not-yet-merged duplicate rows from re-scored predictions.
func (s *ClickHouseResultSink) Query(ctx context.Context, from, to time.Time) ([]models.CRPSResult, error) {
	q := fmt.Sprintf(`SELECT asset, t0, grid_index, grid_time, bucket, crps, realized, missing, scored_at, parameter_hash, path0_gap_abs, q05, q50, q95
		FROM %s FINAL WHERE grid_time >= ? AND grid_time <= ? ORDER BY grid_time`, s.table)
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("query crps results: %w", err)
	}
	defer rows.Close()

	var results []models.CRPSResult
	for rows.Next() {
		var (
			r         models.CRPSResult
			gridIndex uint16
			bucket    string
			missing   uint8
		)
		if err := rows.Scan(&r.Asset, &r.T0, &gridIndex, &r.GridTime, &bucket,
			&r.Score, &r.Realized, &missing, &r.ScoredAt, &r.ParamHash,
			&r.PathGapAbs, &r.Q05, &r.Q50, &r.Q95); err != nil {
			return nil, err
		}
		r.GridIndex = int(gridIndex)
		r.Bucket = models.HorizonBucket(bucket)
		r.Missing = missing != 0
		results = append(results, r)
	}
	return results, rows.Err()
}

// Health pings the connection.
func (s *ClickHouseResultSink) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
