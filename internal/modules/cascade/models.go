// Package cascade plans multi-hop trade sequences through the sectors a
// player has personally explored. The route graph is built exclusively
// from that player's own exploration and market records; ground-truth
// game state never leaks in.
package cascade

import (
	"time"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// Step is one leg of a cascade: jump to the sector and trade at the port.
type Step struct {
	Number        int                `json:"step"`
	SectorID      string             `json:"sector"`
	PortID        string             `json:"port"`
	Action        domain.TradeAction `json:"action"`
	Commodity     domain.Commodity   `json:"commodity"`
	ExpectedPrice float64            `json:"expected_price"`
	Confidence    float64            `json:"confidence"`
	BasedOn       string             `json:"based_on"`
}

// Plan is a complete cascade. It is ephemeral: handed to the caller and
// never persisted.
type Plan struct {
	ID            string    `json:"cascade_id"`
	PlayerID      string    `json:"player_id"`
	Steps         []Step    `json:"steps"`
	TotalProfit   float64   `json:"total_profit"`
	TotalJumps    int       `json:"total_jumps"`
	ProfitPerJump float64   `json:"profit_per_jump"`
	Confidence    float64   `json:"confidence"`
	PlannedAt     time.Time `json:"planned_at"`
}
