package engine

import (
	"time"

	"github.com/miradorstack/cycle-engine/internal/models"
)

// Params holds the tunable constants of the calculator, strategies and analyzer.
// Zero fields fall back to the defaults in DefaultParams.
type Params struct {
	// HistoryWindow is how many recent completed cycles feed the rolling averages.
	HistoryWindow int
	// OvulationLead and OvulationLag bound the ovulation window around L/2.
	OvulationLead int
	OvulationLag  int
	// LutealLength is used when the profile carries no override.
	LutealLength int
	FertileLead  int
	FertileLag   int

	MinRuleConfidence float64
	MaxRuleConfidence float64

	// MinSample is the qualifying completed-cycle count below which correlations are omitted.
	MinSample           int
	FrequencyMultiplier float64
	PairThreshold       float64

	AdaptiveTimeout time.Duration
}

// DefaultParams returns the stock engine constants.
func DefaultParams() Params {
	return Params{
		HistoryWindow:       5,
		OvulationLead:       2,
		OvulationLag:        1,
		LutealLength:        models.DefaultLutealLength,
		FertileLead:         5,
		FertileLag:          1,
		MinRuleConfidence:   0.1,
		MaxRuleConfidence:   0.9,
		MinSample:           3,
		FrequencyMultiplier: 2,
		PairThreshold:       0.5,
		AdaptiveTimeout:     750 * time.Millisecond,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.HistoryWindow <= 0 {
		p.HistoryWindow = d.HistoryWindow
	}
	if p.OvulationLead < 0 {
		p.OvulationLead = d.OvulationLead
	}
	if p.OvulationLag < 0 {
		p.OvulationLag = d.OvulationLag
	}
	if p.OvulationLead == 0 && p.OvulationLag == 0 {
		p.OvulationLead, p.OvulationLag = d.OvulationLead, d.OvulationLag
	}
	if p.LutealLength <= 0 {
		p.LutealLength = d.LutealLength
	}
	if p.FertileLead <= 0 {
		p.FertileLead = d.FertileLead
	}
	if p.FertileLag < 0 {
		p.FertileLag = d.FertileLag
	}
	if p.MinRuleConfidence <= 0 {
		p.MinRuleConfidence = d.MinRuleConfidence
	}
	if p.MaxRuleConfidence <= 0 || p.MaxRuleConfidence > 1 || p.MaxRuleConfidence < p.MinRuleConfidence {
		p.MaxRuleConfidence = d.MaxRuleConfidence
	}
	if p.MinSample <= 0 {
		p.MinSample = d.MinSample
	}
	if p.FrequencyMultiplier <= 0 {
		p.FrequencyMultiplier = d.FrequencyMultiplier
	}
	if p.PairThreshold <= 0 || p.PairThreshold > 1 {
		p.PairThreshold = d.PairThreshold
	}
	if p.AdaptiveTimeout <= 0 {
		p.AdaptiveTimeout = d.AdaptiveTimeout
	}
	return p
}
