package evolution

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint derives the deterministic DNA identifier for a genome.
// Numeric genes are scaled by 1000 and hex-encoded; string genes are
// hashed. Equal genomes always produce equal fingerprints, so a player
// repeating the same style of trade lands on the same pattern row.
func Fingerprint(genes Genes) string {
	parts := []string{
		encodeNumeric(genes.RiskAppetite),
		encodeString(string(genes.PreferredCommodity)),
		encodeNumeric(genes.QuantityScale),
		encodeString(genes.TimingPreference),
		encodeNumeric(genes.ProfitThreshold),
		encodeNumeric(genes.LossTolerance),
	}
	return strings.Join(parts, "-")
}

func encodeNumeric(value float64) string {
	return fmt.Sprintf("%04x", int64(value*1000))
}

func encodeString(value string) string {
	sum := md5.Sum([]byte(value))
	return hex.EncodeToString(sum[:])[:4]
}
