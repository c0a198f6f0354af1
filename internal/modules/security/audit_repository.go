package security

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// AuditRepository persists security events to audit.db. The table is
// append-only: there is no update or delete path.
type AuditRepository struct {
	auditDB *sql.DB
	log     zerolog.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(auditDB *sql.DB, log zerolog.Logger) *AuditRepository {
	return &AuditRepository{
		auditDB: auditDB,
		log:     log.With().Str("repo", "audit").Logger(),
	}
}

// Record appends one security event. Implements domain.AuditSink.
func (r *AuditRepository) Record(ctx context.Context, event domain.SecurityEvent) error {
	contextJSON, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal event context: %w", err)
	}

	_, err = r.auditDB.ExecContext(ctx, `
		INSERT INTO security_events (id, player_id, event_type, severity, anomaly_score, context, flagged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.PlayerID, event.EventType, string(event.Severity),
		event.AnomalyScore, string(contextJSON), boolToInt(event.Flagged),
		event.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to append security event: %v", domain.ErrTransientStore, err)
	}
	return nil
}

// CountByType returns how many events of the given type the player has
// emitted since the cutoff. Used by the anomaly scorer's burst heuristic.
func (r *AuditRepository) CountByType(ctx context.Context, playerID, eventType string, since time.Time) (int, error) {
	var count int
	err := r.auditDB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM security_events
		WHERE player_id = ? AND event_type = ? AND created_at >= ?`,
		playerID, eventType, since.UTC().Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count security events: %v", domain.ErrTransientStore, err)
	}
	return count, nil
}

// StatusWindow gathers the per-severity counts, flagged count and most
// recent events for one player since the cutoff.
func (r *AuditRepository) StatusWindow(ctx context.Context, playerID string, since time.Time, recentLimit int) (map[domain.Severity]int, int, []domain.SecurityEvent, error) {
	counts := map[domain.Severity]int{}
	flagged := 0

	rows, err := r.auditDB.QueryContext(ctx, `
		SELECT severity, flagged, COUNT(*) FROM security_events
		WHERE player_id = ? AND created_at >= ?
		GROUP BY severity, flagged`,
		playerID, since.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: failed to query event counts: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var isFlagged, count int
		if err := rows.Scan(&severity, &isFlagged, &count); err != nil {
			return nil, 0, nil, fmt.Errorf("failed to scan event counts: %w", err)
		}
		counts[domain.Severity(severity)] += count
		if isFlagged == 1 {
			flagged += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, nil, fmt.Errorf("failed to iterate event counts: %w", err)
	}

	recent, err := r.recentEvents(ctx, playerID, recentLimit)
	if err != nil {
		return nil, 0, nil, err
	}

	return counts, flagged, recent, nil
}

func (r *AuditRepository) recentEvents(ctx context.Context, playerID string, limit int) ([]domain.SecurityEvent, error) {
	rows, err := r.auditDB.QueryContext(ctx, `
		SELECT id, player_id, event_type, severity, anomaly_score, context, flagged, created_at
		FROM security_events
		WHERE player_id = ?
		ORDER BY created_at DESC
		LIMIT ?`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query recent events: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var event domain.SecurityEvent
		var severity, contextJSON, createdAt string
		var isFlagged int
		if err := rows.Scan(&event.ID, &event.PlayerID, &event.EventType, &severity,
			&event.AnomalyScore, &contextJSON, &isFlagged, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		event.Severity = domain.Severity(severity)
		event.Flagged = isFlagged == 1
		if err := json.Unmarshal([]byte(contextJSON), &event.Context); err != nil {
			r.log.Warn().Err(err).Str("event_id", event.ID).Msg("Malformed event context, skipping context")
			event.Context = nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			event.CreatedAt = ts
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
