package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
)

// ClickHouseCloseStore persists 1-minute closes from the tick pipeline and
// serves them back for bootstrap lookbacks and realized-price alignment.
// Implements repository.HistoricalSource.
type ClickHouseCloseStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseCloseStore creates the store over an established connection.
func NewClickHouseCloseStore(db *sql.DB, table string) *ClickHouseCloseStore {
	return &ClickHouseCloseStore{db: db, table: table}
}

// ClosesSchema returns the idempotent DDL for the minute-close table.
// ReplacingMergeTree keeps the latest close per (asset, minute) so replayed
// ticks do not duplicate rows.
func ClosesSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.minute_closes (
			asset LowCardinality(String),
			ts DateTime('UTC'),
			close Float64,
			ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(ingested_at)
		PARTITION BY toYYYYMM(ts)
		ORDER BY (asset, ts)`, database),
	}
}

// StoreCloses inserts a batch of minute closes for one asset.
func (s *ClickHouseCloseStore) StoreCloses(ctx context.Context, asset string, points []domrepo.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	values := make([]string, 0, len(points))
	args := make([]interface{}, 0, len(points)*3)
	for _, pt := range points {
		values = append(values, "(?, ?, ?)")
		args = append(args, asset, pt.TS.UTC().Truncate(time.Minute), pt.Price)
	}
	q := fmt.Sprintf("INSERT INTO %s (asset, ts, close) VALUES %s", s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert minute closes: %w", err)
	}
	return nil
}

// Closes returns minute closes inside [from, to], oldest first. Missing
// minutes simply do not appear; nothing is interpolated.
func (s *ClickHouseCloseStore) Closes(ctx context.Context, asset string, from, to time.Time) ([]domrepo.PricePoint, error) {
	q := fmt.Sprintf("SELECT ts, close FROM %s FINAL WHERE asset = ? AND ts >= ? AND ts <= ? ORDER BY ts", s.table)
	rows, err := s.db.QueryContext(ctx, q, asset, from, to)
	if err != nil {
		return nil, fmt.Errorf("query minute closes: %w", err)
	}
	defer rows.Close()

	var points []domrepo.PricePoint
	for rows.Next() {
		var pt domrepo.PricePoint
		if err := rows.Scan(&pt.TS, &pt.Price); err != nil {
			return nil, err
		}
		points = append(points, pt)
	}
	return points, rows.Err()
}
