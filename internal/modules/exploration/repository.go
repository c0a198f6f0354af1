package exploration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// Repository persists exploration records in intel.db.
type Repository struct {
	intelDB *sql.DB
	log     zerolog.Logger
}

// NewRepository creates a new exploration repository.
func NewRepository(intelDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		intelDB: intelDB,
		log:     log.With().Str("repo", "exploration").Logger(),
	}
}

// Upsert records a visit as a single atomic statement: first visit
// inserts the record, revisits bump the count and last-visit time.
func (r *Repository) Upsert(ctx context.Context, playerID, sectorID string, at time.Time) (*Record, error) {
	ts := at.UTC().Format(time.RFC3339Nano)
	_, err := r.intelDB.ExecContext(ctx, `
		INSERT INTO exploration_records (player_id, sector_id, first_visit, last_visit, visit_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (player_id, sector_id) DO UPDATE SET
			last_visit = excluded.last_visit,
			visit_count = visit_count + 1`,
		playerID, sectorID, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upsert exploration record: %v", domain.ErrTransientStore, err)
	}
	return r.Get(ctx, playerID, sectorID)
}

// Get returns the record for (player, sector), or nil when unvisited.
func (r *Repository) Get(ctx context.Context, playerID, sectorID string) (*Record, error) {
	row := r.intelDB.QueryRowContext(ctx, `
		SELECT player_id, sector_id, first_visit, last_visit, visit_count
		FROM exploration_records
		WHERE player_id = ? AND sector_id = ?`,
		playerID, sectorID,
	)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query exploration record: %v", domain.ErrTransientStore, err)
	}
	return record, nil
}

// ListByPlayer returns every sector the player has explored.
func (r *Repository) ListByPlayer(ctx context.Context, playerID string) ([]Record, error) {
	rows, err := r.intelDB.QueryContext(ctx, `
		SELECT player_id, sector_id, first_visit, last_visit, visit_count
		FROM exploration_records
		WHERE player_id = ?`,
		playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query exploration records: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exploration record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var record Record
	var firstVisit, lastVisit string
	if err := s.Scan(&record.PlayerID, &record.SectorID, &firstVisit, &lastVisit, &record.VisitCount); err != nil {
		return nil, err
	}
	var err error
	if record.FirstVisit, err = time.Parse(time.RFC3339Nano, firstVisit); err != nil {
		return nil, fmt.Errorf("malformed first_visit %q: %w", firstVisit, err)
	}
	if record.LastVisit, err = time.Parse(time.RFC3339Nano, lastVisit); err != nil {
		return nil, fmt.Errorf("malformed last_visit %q: %w", lastVisit, err)
	}
	return &record, nil
}
