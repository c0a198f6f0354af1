// Package exploration tracks which sectors a player has visited. Every
// forecast the engine makes is gated on what is in this ledger: no visit
// record, no prediction.
package exploration

import "time"

// Record is one (player, sector) entry in the exploration ledger.
// Created on first visit, mutated on every revisit, never deleted.
type Record struct {
	PlayerID   string    `json:"player_id"`
	SectorID   string    `json:"sector_id"`
	FirstVisit time.Time `json:"first_visit"`
	LastVisit  time.Time `json:"last_visit"`
	VisitCount int       `json:"visit_count"`
}
