package domain

import (
	"context"
	"time"
)

// PositionVerifier answers ownership and presence questions against live
// game state. It is the single authorization predicate this engine calls;
// ship, port and sector ownership live elsewhere.
type PositionVerifier interface {
	// ControlsShip reports whether the player currently controls the ship.
	ControlsShip(ctx context.Context, playerID, shipID string) (bool, error)

	// ShipDockedAt reports whether one of the player's ships is docked at
	// the port.
	ShipDockedAt(ctx context.Context, playerID, portID string) (bool, error)

	// ShipInSector reports whether one of the player's ships is in the
	// sector.
	ShipInSector(ctx context.Context, playerID, sectorID string) (bool, error)
}

// ProfileProvider supplies trade-volume and risk-appetite priors used to
// seed new trading patterns.
type ProfileProvider interface {
	TradingProfile(ctx context.Context, playerID string) (TradingProfile, error)
}

// TransactionFeed exposes the anonymized global transaction stream. It is
// consumed only by the market-manipulation detector and carries no
// player-attributable data.
type TransactionFeed interface {
	RecentTransactions(ctx context.Context, commodity Commodity, window time.Duration) ([]AnonymizedTransaction, error)
}

// MapTopology exposes the navigable map graph. The cascade planner uses it
// to know which explored sectors are adjacent; it never reveals anything
// about unexplored market state.
type MapTopology interface {
	Neighbors(ctx context.Context, sectorID string) ([]string, error)

	// PortSector resolves the sector a port sits in.
	PortSector(ctx context.Context, portID string) (string, error)
}

// AuditSink receives every security event the engine emits. Production
// wires the append-only audit repository; tests substitute an in-memory
// sink and assert on emitted events.
type AuditSink interface {
	Record(ctx context.Context, event SecurityEvent) error
}
