package intelligence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/database"
	"github.com/interstitch/sectorwars-intel/internal/domain"
)

const intelligenceColumns = `player_id, port_id, sector_id, commodity, observations,
average_price, volatility, data_points, last_visit, decayed_at, confidence, quality, patterns, pattern_conf`

// Repository persists market intelligence rows in intel.db.
type Repository struct {
	intelDB *sql.DB
	log     zerolog.Logger
}

// NewRepository creates a new intelligence repository.
func NewRepository(intelDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		intelDB: intelDB,
		log:     log.With().Str("repo", "intelligence").Logger(),
	}
}

// Get returns the intelligence for (player, port, commodity), or nil when
// the player has never observed that market.
func (r *Repository) Get(ctx context.Context, playerID, portID, commodity string) (*Intelligence, error) {
	row := r.intelDB.QueryRowContext(ctx,
		"SELECT "+intelligenceColumns+" FROM market_intelligence WHERE player_id = ? AND port_id = ? AND commodity = ?",
		playerID, portID, commodity,
	)
	intel, err := scanIntelligence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query intelligence: %v", domain.ErrTransientStore, err)
	}
	return intel, nil
}

// ListBySector returns every intelligence row the player holds for ports
// in the sector.
func (r *Repository) ListBySector(ctx context.Context, playerID, sectorID string) ([]Intelligence, error) {
	return r.list(ctx,
		"SELECT "+intelligenceColumns+" FROM market_intelligence WHERE player_id = ? AND sector_id = ?",
		playerID, sectorID)
}

// ListByPlayer returns the player's entire intelligence holding. Used by
// the cascade planner for a snapshot read.
func (r *Repository) ListByPlayer(ctx context.Context, playerID string) ([]Intelligence, error) {
	return r.list(ctx,
		"SELECT "+intelligenceColumns+" FROM market_intelligence WHERE player_id = ?",
		playerID)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]Intelligence, error) {
	rows, err := r.intelDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query intelligence rows: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	var intels []Intelligence
	for rows.Next() {
		intel, err := scanIntelligence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intelligence row: %w", err)
		}
		intels = append(intels, *intel)
	}
	return intels, rows.Err()
}

// Save writes the full intelligence row as one atomic upsert.
func (r *Repository) Save(ctx context.Context, intel *Intelligence) error {
	observations, err := json.Marshal(intel.Observations)
	if err != nil {
		return fmt.Errorf("failed to marshal observations: %w", err)
	}
	patterns, err := json.Marshal(intel.Patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal patterns: %w", err)
	}
	patternConf, err := json.Marshal(intel.PatternConfidence)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern confidence: %w", err)
	}

	err = database.WithTransaction(r.intelDB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO market_intelligence (`+intelligenceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (player_id, port_id, commodity) DO UPDATE SET
				sector_id = excluded.sector_id,
				observations = excluded.observations,
				average_price = excluded.average_price,
				volatility = excluded.volatility,
				data_points = excluded.data_points,
				last_visit = excluded.last_visit,
				decayed_at = excluded.decayed_at,
				confidence = excluded.confidence,
				quality = excluded.quality,
				patterns = excluded.patterns,
				pattern_conf = excluded.pattern_conf`,
			intel.PlayerID, intel.PortID, intel.SectorID, intel.Commodity,
			string(observations), intel.AveragePrice, intel.Volatility,
			intel.DataPoints, intel.LastVisit.UTC().Format(time.RFC3339Nano),
			intel.DecayedAt.UTC().Format(time.RFC3339Nano),
			intel.Confidence, intel.Quality, string(patterns), string(patternConf),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to save intelligence: %v", domain.ErrTransientStore, err)
	}
	return nil
}

// DecaySector applies the daily geometric confidence decay to every
// intelligence row the player holds in the sector except the one being
// refreshed. Stale knowledge fades even without new writes. The decay
// anchor advances with the write, so the span covered here is never
// decayed again on a later read.
func (r *Repository) DecaySector(ctx context.Context, playerID, sectorID, exceptPortID, exceptCommodity string, dailyDecay float64, now time.Time) error {
	intels, err := r.ListBySector(ctx, playerID, sectorID)
	if err != nil {
		return err
	}

	for i := range intels {
		intel := &intels[i]
		if intel.PortID == exceptPortID && intel.Commodity == exceptCommodity {
			continue
		}
		days := now.Sub(intel.DecayAnchor()).Hours() / 24
		if days <= 0 {
			continue
		}
		factor := math.Pow(dailyDecay, days)
		_, err := r.intelDB.ExecContext(ctx, `
			UPDATE market_intelligence
			SET confidence = confidence * ?, quality = quality * ?, decayed_at = ?
			WHERE player_id = ? AND port_id = ? AND commodity = ?`,
			factor, factor, now.UTC().Format(time.RFC3339Nano),
			playerID, intel.PortID, intel.Commodity,
		)
		if err != nil {
			return fmt.Errorf("%w: failed to decay intelligence: %v", domain.ErrTransientStore, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIntelligence(s scanner) (*Intelligence, error) {
	var intel Intelligence
	var observations, patterns, patternConf, lastVisit, decayedAt string
	if err := s.Scan(&intel.PlayerID, &intel.PortID, &intel.SectorID, &intel.Commodity,
		&observations, &intel.AveragePrice, &intel.Volatility, &intel.DataPoints,
		&lastVisit, &decayedAt, &intel.Confidence, &intel.Quality, &patterns, &patternConf); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(observations), &intel.Observations); err != nil {
		return nil, fmt.Errorf("malformed observations: %w", err)
	}
	if err := json.Unmarshal([]byte(patterns), &intel.Patterns); err != nil {
		return nil, fmt.Errorf("malformed patterns: %w", err)
	}
	if err := json.Unmarshal([]byte(patternConf), &intel.PatternConfidence); err != nil {
		return nil, fmt.Errorf("malformed pattern confidence: %w", err)
	}
	var err error
	if intel.LastVisit, err = time.Parse(time.RFC3339Nano, lastVisit); err != nil {
		return nil, fmt.Errorf("malformed last_visit %q: %w", lastVisit, err)
	}
	if intel.DecayedAt, err = time.Parse(time.RFC3339Nano, decayedAt); err != nil {
		return nil, fmt.Errorf("malformed decayed_at %q: %w", decayedAt, err)
	}
	return &intel, nil
}
