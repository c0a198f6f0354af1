package intelligence

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Pattern tags mined from an observation series.
const (
	TagRisingTrend    = "rising_trend"
	TagFallingTrend   = "falling_trend"
	TagStable         = "stable"
	TagHighVolatility = "high_volatility"
	TagLowVolatility  = "low_volatility"
)

// Miner thresholds.
const (
	minSamplesForMining = 10   // series size before any mining happens
	miningWindow        = 30   // most recent samples considered
	hourBiasSamples     = 3    // samples per hour bucket before it counts
	hourBiasDeviation   = 0.10 // +-10% from the overall mean
	trendWindow         = 5
	trendSlopeThreshold = 0.5
	volatilityWindow    = 10
	highVolatilityRatio = 0.2
	lowVolatilityRatio  = 0.05
	maxPatternTags      = 5
)

// MinePatterns derives pattern tags from the series. Returns nil when the
// series is below the mining threshold. At most maxPatternTags tags are
// returned, in detection order: hour biases, then trend, then volatility
// regime.
func MinePatterns(observations []Observation) []string {
	if len(observations) < minSamplesForMining {
		return nil
	}

	window := observations
	if len(window) > miningWindow {
		window = window[len(window)-miningWindow:]
	}
	prices := make([]float64, len(window))
	for i, o := range window {
		prices[i] = o.Price
	}
	overallMean := stat.Mean(prices, nil)

	var tags []string
	tags = append(tags, hourBiasTags(window, overallMean)...)
	tags = append(tags, trendTag(prices))
	if tag := volatilityTag(prices); tag != "" {
		tags = append(tags, tag)
	}

	if len(tags) > maxPatternTags {
		tags = tags[:maxPatternTags]
	}
	return tags
}

// hourBiasTags flags hours whose mean deviates at least 10% from the
// overall mean, given three or more samples in that hour.
func hourBiasTags(window []Observation, overallMean float64) []string {
	byHour := make(map[int][]float64)
	for _, o := range window {
		hour := o.Timestamp.UTC().Hour()
		byHour[hour] = append(byHour[hour], o.Price)
	}

	var tags []string
	for hour := 0; hour < 24; hour++ {
		samples := byHour[hour]
		if len(samples) < hourBiasSamples {
			continue
		}
		mean := stat.Mean(samples, nil)
		switch {
		case mean > overallMean*(1+hourBiasDeviation):
			tags = append(tags, fmt.Sprintf("high_hour_%d", hour))
		case mean < overallMean*(1-hourBiasDeviation):
			tags = append(tags, fmt.Sprintf("low_hour_%d", hour))
		}
	}
	return tags
}

// trendTag classifies the last five points by linear-regression slope.
func trendTag(prices []float64) string {
	if len(prices) < trendWindow {
		return TagStable
	}
	slopes := talib.LinearRegSlope(prices, trendWindow)
	slope := slopes[len(slopes)-1]
	switch {
	case slope > trendSlopeThreshold:
		return TagRisingTrend
	case slope < -trendSlopeThreshold:
		return TagFallingTrend
	default:
		return TagStable
	}
}

// volatilityTag classifies the std-dev/mean ratio over the last ten
// samples. Returns "" for the unremarkable middle band.
func volatilityTag(prices []float64) string {
	if len(prices) < volatilityWindow {
		return ""
	}
	recent := prices[len(prices)-volatilityWindow:]
	mean := stat.Mean(recent, nil)
	if mean == 0 {
		return ""
	}
	stdDevs := talib.StdDev(recent, volatilityWindow, 1.0)
	ratio := stdDevs[len(stdDevs)-1] / mean
	switch {
	case ratio > highVolatilityRatio:
		return TagHighVolatility
	case ratio < lowVolatilityRatio:
		return TagLowVolatility
	default:
		return ""
	}
}
