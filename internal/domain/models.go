// Package domain provides the core types shared by every engine module.
package domain

import "time"

// Commodity is a tradeable good type with a per-port price.
type Commodity string

const (
	CommodityOre        Commodity = "ORE"
	CommodityOrganics   Commodity = "ORGANICS"
	CommodityFuel       Commodity = "FUEL"
	CommodityLuxury     Commodity = "LUXURY"
	CommodityTechnology Commodity = "TECHNOLOGY"
)

// PortSold reports whether ports sell this commodity to players (bulk goods).
// For port-sold commodities a high price favors the selling player; for the
// rest a low price favors the buying player.
func (c Commodity) PortSold() bool {
	switch c {
	case CommodityOre, CommodityOrganics, CommodityFuel:
		return true
	}
	return false
}

// Valid reports whether the commodity is one of the known good types.
func (c Commodity) Valid() bool {
	switch c {
	case CommodityOre, CommodityOrganics, CommodityFuel, CommodityLuxury, CommodityTechnology:
		return true
	}
	return false
}

// TradeAction is the direction of a trade from the player's perspective.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// Valid reports whether the action is a known trade direction.
func (a TradeAction) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Severity classifies security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is one append-only entry in a player's audit trail.
// Events are never mutated after being recorded.
type SecurityEvent struct {
	ID           string            `json:"id"`
	PlayerID     string            `json:"player_id"`
	EventType    string            `json:"event_type"`
	Severity     Severity          `json:"severity"`
	AnomalyScore float64           `json:"anomaly_score"`
	Context      map[string]string `json:"context,omitempty"`
	Flagged      bool              `json:"flagged"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TradingProfile carries the priors used to seed a player's first trading
// patterns. It is supplied by the player-profile collaborator.
type TradingProfile struct {
	PlayerID            string  `json:"player_id"`
	RiskScore           float64 `json:"risk_score"`            // 0-1
	TradesPerDay        float64 `json:"trades_per_day"`        // rolling average
	AverageProfitMargin float64 `json:"average_profit_margin"` // fraction, may be negative
	LargestLoss         float64 `json:"largest_loss"`          // credits, <= 0
	TotalVolume         float64 `json:"total_volume"`          // lifetime traded credits
}

// AnonymizedTransaction is one entry from the global transaction feed.
// The actor token is an opaque per-window identifier, never a player ID.
type AnonymizedTransaction struct {
	Commodity  Commodity `json:"commodity"`
	Price      float64   `json:"price"`
	Quantity   int       `json:"quantity"`
	ActorToken string    `json:"actor_token"`
	Timestamp  time.Time `json:"timestamp"`
}

// TradeResult describes one completed real trade, fed back into the
// strategy evolution store.
type TradeResult struct {
	Fingerprint string      `json:"fingerprint,omitempty"` // empty for first qualifying trade
	Commodity   Commodity   `json:"commodity"`
	Action      TradeAction `json:"action"`
	Quantity    int         `json:"quantity"`
	Profit      float64     `json:"profit"` // credits, negative on loss
	ExecutedAt  time.Time   `json:"executed_at"`
}
