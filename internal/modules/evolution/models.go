// Package evolution maintains each player's trading DNA: behavioral gene
// records fingerprinted deterministically, scored for fitness after every
// real trade, and mutated or bred once they have enough history. Patterns
// are never deleted, only deactivated.
package evolution

import (
	"time"

	"github.com/interstitch/sectorwars-intel/internal/domain"
)

// Pattern types, classified from the preferred commodity.
const (
	TypeBulkTrading = "bulk_trading"
	TypeHighValue   = "high_value"
	TypeGeneral     = "general"
)

// Timing preferences, derived from the player's trade cadence.
const (
	TimingAggressive   = "aggressive"
	TimingConservative = "conservative"
)

// Genes is the behavioral genome of one trading pattern. Numeric genes
// are the ones mutation and breeding perturb.
type Genes struct {
	RiskAppetite       float64          `json:"risk_appetite"`       // 0-1
	PreferredCommodity domain.Commodity `json:"preferred_commodity"`
	QuantityScale      float64          `json:"quantity_scale"` // quantity/1000, capped at 1
	TimingPreference   string           `json:"timing_preference"`
	ProfitThreshold    float64          `json:"profit_threshold"` // margin fraction
	LossTolerance      float64          `json:"loss_tolerance"`   // |largest loss| / volume
}

// GeneChange records one gene's value before and after a mutation.
type GeneChange struct {
	Old float64 `json:"old"`
	New float64 `json:"new"`
}

// Mutation is one evolution event in a pattern's history.
type Mutation struct {
	Generation int                   `json:"generation"`
	Type       string                `json:"type"`
	Changes    map[string]GeneChange `json:"changes"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// TradingPattern is one evolved strategy owned by a player.
type TradingPattern struct {
	PlayerID    string `json:"player_id"`
	Fingerprint string `json:"fingerprint"`
	Type        string `json:"pattern_type"`
	Genes       Genes  `json:"genes"`
	Generation  int    `json:"generation"`
	// Parent is set on bred offspring, empty on first-generation patterns.
	Parent    string     `json:"parent,omitempty"`
	Mutations []Mutation `json:"mutations,omitempty"`

	TimesUsed     int     `json:"times_used"`
	SuccessRate   float64 `json:"success_rate"`
	AverageProfit float64 `json:"average_profit"` // mean over profitable trades
	BestProfit    float64 `json:"best_profit"`
	WorstLoss     float64 `json:"worst_loss"` // <= 0
	Fitness       float64 `json:"fitness"`

	Active       bool       `json:"active"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	EvolvedAt    *time.Time `json:"evolved_at,omitempty"`
}

// classifyType buckets a genome by its preferred commodity.
func classifyType(genes Genes) string {
	switch {
	case genes.PreferredCommodity.PortSold():
		return TypeBulkTrading
	case genes.PreferredCommodity.Valid():
		return TypeHighValue
	default:
		return TypeGeneral
	}
}
