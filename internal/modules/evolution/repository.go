package evolution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// Repository persists trading patterns in intel.db.
type Repository struct {
	intelDB *sql.DB
	log     zerolog.Logger
}

// NewRepository creates a new trading-pattern repository.
func NewRepository(intelDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		intelDB: intelDB,
		log:     log.With().Str("repo", "evolution").Logger(),
	}
}

const patternColumns = `player_id, fingerprint, pattern_type, genes, generation, parent,
	mutations, times_used, success_rate, average_profit, best_profit, worst_loss,
	fitness, active, discovered_at, last_used, evolved_at`

// Get returns the pattern for (player, fingerprint), or nil when unseen.
func (r *Repository) Get(ctx context.Context, playerID, fingerprint string) (*TradingPattern, error) {
	row := r.intelDB.QueryRowContext(ctx, `
		SELECT `+patternColumns+`
		FROM trading_patterns
		WHERE player_id = ? AND fingerprint = ?`,
		playerID, fingerprint,
	)

	pattern, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query trading pattern: %v", domain.ErrTransientStore, err)
	}
	return pattern, nil
}

// Save upserts the full pattern row atomically.
func (r *Repository) Save(ctx context.Context, pattern *TradingPattern) error {
	genes, err := json.Marshal(pattern.Genes)
	if err != nil {
		return fmt.Errorf("failed to encode genes: %w", err)
	}
	mutations, err := json.Marshal(pattern.Mutations)
	if err != nil {
		return fmt.Errorf("failed to encode mutations: %w", err)
	}

	_, err = r.intelDB.ExecContext(ctx, `
		INSERT INTO trading_patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id, fingerprint) DO UPDATE SET
			pattern_type   = excluded.pattern_type,
			genes          = excluded.genes,
			generation     = excluded.generation,
			parent         = excluded.parent,
			mutations      = excluded.mutations,
			times_used     = excluded.times_used,
			success_rate   = excluded.success_rate,
			average_profit = excluded.average_profit,
			best_profit    = excluded.best_profit,
			worst_loss     = excluded.worst_loss,
			fitness        = excluded.fitness,
			active         = excluded.active,
			last_used      = excluded.last_used,
			evolved_at     = excluded.evolved_at`,
		pattern.PlayerID, pattern.Fingerprint, pattern.Type, string(genes),
		pattern.Generation, nullable(pattern.Parent), string(mutations),
		pattern.TimesUsed, pattern.SuccessRate, pattern.AverageProfit,
		pattern.BestProfit, pattern.WorstLoss, pattern.Fitness,
		boolToInt(pattern.Active),
		pattern.DiscoveredAt.UTC().Format(time.RFC3339Nano),
		nullableTime(pattern.LastUsed), nullableTime(pattern.EvolvedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to save trading pattern: %v", domain.ErrTransientStore, err)
	}
	return nil
}

// ListTop returns the player's active patterns sorted by fitness,
// optionally filtered by type, capped at limit.
func (r *Repository) ListTop(ctx context.Context, playerID, patternType string, limit int) ([]TradingPattern, error) {
	query := `
		SELECT ` + patternColumns + `
		FROM trading_patterns
		WHERE player_id = ? AND active = 1`
	args := []interface{}{playerID}
	if patternType != "" {
		query += ` AND pattern_type = ?`
		args = append(args, patternType)
	}
	query += ` ORDER BY fitness DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.intelDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query trading patterns: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	var patterns []TradingPattern
	for rows.Next() {
		pattern, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trading pattern: %w", err)
		}
		patterns = append(patterns, *pattern)
	}
	return patterns, rows.Err()
}

// HasOffspring reports whether the pattern has already bred.
func (r *Repository) HasOffspring(ctx context.Context, playerID, parentFingerprint string) (bool, error) {
	var count int
	err := r.intelDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trading_patterns
		WHERE player_id = ? AND parent = ?`,
		playerID, parentFingerprint,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: failed to query offspring: %v", domain.ErrTransientStore, err)
	}
	return count > 0, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPattern(s scanner) (*TradingPattern, error) {
	var pattern TradingPattern
	var genes, mutations, discoveredAt string
	var parent, lastUsed, evolvedAt sql.NullString
	var active int
	if err := s.Scan(
		&pattern.PlayerID, &pattern.Fingerprint, &pattern.Type, &genes,
		&pattern.Generation, &parent, &mutations, &pattern.TimesUsed,
		&pattern.SuccessRate, &pattern.AverageProfit, &pattern.BestProfit,
		&pattern.WorstLoss, &pattern.Fitness, &active, &discoveredAt,
		&lastUsed, &evolvedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(genes), &pattern.Genes); err != nil {
		return nil, fmt.Errorf("malformed genes: %w", err)
	}
	if err := json.Unmarshal([]byte(mutations), &pattern.Mutations); err != nil {
		return nil, fmt.Errorf("malformed mutations: %w", err)
	}

	pattern.Parent = parent.String
	pattern.Active = active != 0

	var err error
	if pattern.DiscoveredAt, err = time.Parse(time.RFC3339Nano, discoveredAt); err != nil {
		return nil, fmt.Errorf("malformed discovered_at %q: %w", discoveredAt, err)
	}
	if pattern.LastUsed, err = parseNullableTime(lastUsed); err != nil {
		return nil, err
	}
	if pattern.EvolvedAt, err = parseNullableTime(evolvedAt); err != nil {
		return nil, err
	}
	return &pattern, nil
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("malformed timestamp %q: %w", v.String, err)
	}
	return &t, nil
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
