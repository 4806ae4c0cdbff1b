package models

import "strings"

// InsightsFilter selects which parts of a snapshot the insights surface shows.
type InsightsFilter string

const (
	FilterAll          InsightsFilter = "ALL"
	FilterPredictions  InsightsFilter = "PREDICTIONS"
	FilterCorrelations InsightsFilter = "CORRELATIONS"
)

// ParseInsightsFilter maps a case-insensitive name to a filter. Empty means ALL.
func ParseInsightsFilter(value string) (InsightsFilter, bool) {
	switch InsightsFilter(strings.ToUpper(strings.TrimSpace(value))) {
	case "", FilterAll:
		return FilterAll, true
	case FilterPredictions:
		return FilterPredictions, true
	case FilterCorrelations:
		return FilterCorrelations, true
	default:
		return "", false
	}
}

// MLStatus mirrors the strategy of the published prediction.
type MLStatus string

const (
	MLStatusRuleBased MLStatus = "RULE_BASED"
	MLStatusAdaptive  MLStatus = "ADAPTIVE"
)

// MLStatusFor converts a strategy into its display status.
func MLStatusFor(kind StrategyKind) MLStatus {
	if kind == StrategyAdaptive {
		return MLStatusAdaptive
	}
	return MLStatusRuleBased
}

// InsightsView is the full-trust view served to the insights surface.
type InsightsView struct {
	Filter       InsightsFilter    `json:"filter"`
	MLStatus     MLStatus          `json:"ml_status"`
	PassID       string            `json:"pass_id"`
	Prediction   *PredictionResult `json:"prediction,omitempty"`
	Stats        *CycleStats       `json:"stats,omitempty"`
	Correlations []Correlation     `json:"correlations,omitempty"`
}
