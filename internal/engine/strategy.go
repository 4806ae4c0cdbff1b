package engine

import (
	"context"
	"time"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// PredictionInput is everything a strategy may look at for one pass.
type PredictionInput struct {
	AsOf     time.Time
	Timeline *Timeline
	// History is the validated history handed to external scorers.
	History models.History
}

// Estimate is a strategy's answer. Fallback is set when an adaptive estimate was discarded.
type Estimate struct {
	NextPeriodStart time.Time
	Confidence      float64
	Strategy        models.StrategyKind
	CycleLength     int
	Fallback        *models.StrategyFallback
}

// Strategy predicts the next period start. Implementations never fail; they degrade.
type Strategy interface {
	Kind() models.StrategyKind
	Predict(ctx context.Context, in PredictionInput) Estimate
}

// RuleBased predicts from rolling-average arithmetic.
type RuleBased struct {
	params Params
}

// NewRuleBased constructs the rule-based strategy.
func NewRuleBased(params Params) *RuleBased {
	return &RuleBased{params: params.withDefaults()}
}

// Kind implements Strategy.
func (r *RuleBased) Kind() models.StrategyKind { return models.StrategyRuleBased }

// Predict returns the active cycle start plus the effective length, with a confidence
// derived from recent length variance and bounded to the rule-based band.
func (r *RuleBased) Predict(_ context.Context, in PredictionInput) Estimate {
	asOf := utils.DateOnly(in.AsOf)
	info := in.Timeline.PhaseAt(asOf)
	length := info.CycleLength

	confidence := r.params.MinRuleConfidence
	if lengths := in.Timeline.RecentLengths(asOf); len(lengths) >= 2 && length > 0 {
		ratio := populationVariance(lengths) / float64(length*length)
		if ratio > 1 {
			ratio = 1
		}
		confidence = 1 - ratio
	}
	if info.Overrun {
		confidence *= float64(length) / float64(info.Offset+1)
	}

	return Estimate{
		NextPeriodStart: utils.AddDays(info.CycleStart, length),
		Confidence:      clamp(confidence, r.params.MinRuleConfidence, r.params.MaxRuleConfidence),
		Strategy:        models.StrategyRuleBased,
		CycleLength:     length,
	}
}

// FertileWindow derives the fertile window from a next-period estimate.
// It is identical for every strategy.
func FertileWindow(next time.Time, lutealLength int, params Params) (time.Time, time.Time) {
	params = params.withDefaults()
	ovulation := utils.AddDays(next, -lutealLength)
	return utils.AddDays(ovulation, -params.FertileLead), utils.AddDays(ovulation, params.FertileLag)
}
