package exploration

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// guard is the slice of the security guard this service needs.
type guard interface {
	RequireShipControl(ctx context.Context, playerID, shipID, sectorID string) error
}

// Service is the exploration ledger's public API.
type Service struct {
	repo  *Repository
	guard guard
	log   zerolog.Logger
}

// NewService creates the exploration service.
func NewService(repo *Repository, g guard, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		guard: g,
		log:   log.With().Str("module", "exploration").Logger(),
	}
}

// RecordVisit upserts a visit record after verifying the player controls
// the visiting ship. Unauthorized calls write no state.
func (s *Service) RecordVisit(ctx context.Context, playerID, shipID, sectorID string) (*Record, error) {
	if err := s.guard.RequireShipControl(ctx, playerID, shipID, sectorID); err != nil {
		return nil, err
	}

	record, err := s.repo.Upsert(ctx, playerID, sectorID, time.Now())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("player_id", playerID).
		Str("sector_id", sectorID).
		Int("visit_count", record.VisitCount).
		Msg("Sector visit recorded")
	return record, nil
}

// HasVisited returns the visit count for (player, sector); zero means
// the sector is unexplored.
func (s *Service) HasVisited(ctx context.Context, playerID, sectorID string) (int, error) {
	record, err := s.repo.Get(ctx, playerID, sectorID)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}
	return record.VisitCount, nil
}

// ExploredSectors returns the player's full exploration ledger.
func (s *Service) ExploredSectors(ctx context.Context, playerID string) ([]Record, error) {
	return s.repo.ListByPlayer(ctx, playerID)
}
