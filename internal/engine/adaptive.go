package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// ErrNoScorer is returned when an adaptive strategy is built without a scorer.
var ErrNoScorer = errors.New("adaptive strategy requires a scorer")

// ErrInsufficientHistory is returned by scorers that need completed cycles.
var ErrInsufficientHistory = errors.New("insufficient cycle history")

// ScoreInput is handed to a scorer: the same history and profile the rule-based path sees.
type ScoreInput struct {
	AsOf    time.Time
	History models.History
	Profile models.Profile
}

// Candidate is a scorer's proposal. The engine does not trust it uncritically.
type Candidate struct {
	NextPeriodStart time.Time
	Confidence      float64
}

// Scorer is the pluggable inference step behind the adaptive strategy.
type Scorer interface {
	Score(ctx context.Context, in ScoreInput) (Candidate, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, in ScoreInput) (Candidate, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, in ScoreInput) (Candidate, error) {
	return f(ctx, in)
}

// Adaptive refines predictions through a Scorer and falls back to RuleBased when the
// scorer fails, times out, returns garbage, or disagrees by more than half a cycle.
type Adaptive struct {
	rule    *RuleBased
	scorer  Scorer
	timeout time.Duration
	logger  *slog.Logger
}

// NewAdaptive constructs the adaptive strategy.
func NewAdaptive(logger *slog.Logger, rule *RuleBased, scorer Scorer, timeout time.Duration) (*Adaptive, error) {
	if scorer == nil {
		return nil, ErrNoScorer
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rule == nil {
		rule = NewRuleBased(DefaultParams())
	}
	if timeout <= 0 {
		timeout = rule.params.AdaptiveTimeout
	}
	return &Adaptive{rule: rule, scorer: scorer, timeout: timeout, logger: logger}, nil
}

// Kind implements Strategy.
func (a *Adaptive) Kind() models.StrategyKind { return models.StrategyAdaptive }

type scoreOutcome struct {
	candidate Candidate
	err       error
}

// Predict implements Strategy.
func (a *Adaptive) Predict(ctx context.Context, in PredictionInput) Estimate {
	base := a.rule.Predict(ctx, in)

	scoreCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make(chan scoreOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- scoreOutcome{err: fmt.Errorf("scorer panic: %v", r)}
			}
		}()
		candidate, err := a.scorer.Score(scoreCtx, ScoreInput{
			AsOf:    utils.DateOnly(in.AsOf),
			History: in.History,
			Profile: in.Timeline.Profile(),
		})
		results <- scoreOutcome{candidate: candidate, err: err}
	}()

	var outcome scoreOutcome
	select {
	case <-scoreCtx.Done():
		reason := models.FallbackDelegateTimeout
		if !errors.Is(scoreCtx.Err(), context.DeadlineExceeded) {
			reason = models.FallbackDelegateError
		}
		return a.fallback(base, reason, time.Time{}, scoreCtx.Err().Error())
	case outcome = <-results:
	}

	if outcome.err != nil {
		if errors.Is(outcome.err, context.DeadlineExceeded) {
			return a.fallback(base, models.FallbackDelegateTimeout, time.Time{}, outcome.err.Error())
		}
		return a.fallback(base, models.FallbackDelegateError, time.Time{}, outcome.err.Error())
	}

	candidate := outcome.candidate
	if candidate.NextPeriodStart.IsZero() || math.IsNaN(candidate.Confidence) || math.IsInf(candidate.Confidence, 0) {
		return a.fallback(base, models.FallbackDelegateInvalid, candidate.NextPeriodStart, "missing date or non-finite confidence")
	}

	next := utils.DateOnly(candidate.NextPeriodStart)
	gap := utils.DaysBetween(base.NextPeriodStart, next)
	if gap < 0 {
		gap = -gap
	}
	if float64(gap) > float64(base.CycleLength)/2 {
		return a.fallback(base, models.FallbackDelegateDisagreement, next,
			fmt.Sprintf("delegate differs by %d days (limit %.1f)", gap, float64(base.CycleLength)/2))
	}

	return Estimate{
		NextPeriodStart: next,
		Confidence:      clamp(candidate.Confidence, 0, 1),
		Strategy:        models.StrategyAdaptive,
		CycleLength:     base.CycleLength,
	}
}

func (a *Adaptive) fallback(base Estimate, reason models.FallbackReason, delegateStart time.Time, detail string) Estimate {
	a.logger.Warn("adaptive prediction discarded",
		slog.String("reason", string(reason)),
		slog.String("rule_start", utils.FormatDate(base.NextPeriodStart)),
		slog.String("delegate_start", utils.FormatDate(delegateStart)),
		slog.String("detail", detail),
	)
	base.Fallback = &models.StrategyFallback{
		Reason:        reason,
		DelegateStart: delegateStart,
		RuleStart:     base.NextPeriodStart,
		Detail:        detail,
	}
	return base
}

// TrendScorer is a local scorer weighting recent cycle lengths more heavily.
type TrendScorer struct {
	params Params
	decay  float64
}

// NewTrendScorer constructs a TrendScorer. decay in (0,1) is the weight ratio between
// consecutive cycles, newest first.
func NewTrendScorer(params Params, decay float64) *TrendScorer {
	if decay <= 0 || decay >= 1 {
		decay = 0.5
	}
	return &TrendScorer{params: params.withDefaults(), decay: decay}
}

// Score implements Scorer.
func (s *TrendScorer) Score(ctx context.Context, in ScoreInput) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	timeline, _ := NewTimeline(in.History.Cycles, in.Profile, s.params)
	asOf := utils.DateOnly(in.AsOf)
	active := timeline.activeIndex(asOf)
	if active < 0 {
		return Candidate{}, ErrInsufficientHistory
	}
	lengths := timeline.RecentLengths(asOf)
	if len(lengths) == 0 {
		return Candidate{}, ErrInsufficientHistory
	}

	weight, weightSum, mean := 1.0, 0.0, 0.0
	for i := len(lengths) - 1; i >= 0; i-- {
		mean += weight * float64(lengths[i])
		weightSum += weight
		weight *= s.decay
	}
	mean /= weightSum

	weight, variance := 1.0, 0.0
	for i := len(lengths) - 1; i >= 0; i-- {
		variance += weight * math.Pow(float64(lengths[i])-mean, 2)
		weight *= s.decay
	}
	variance /= weightSum

	coverage := float64(len(lengths)) / float64(s.params.HistoryWindow)
	confidence := (1 - math.Min(1, variance/(mean*mean))) * math.Min(1, coverage)

	return Candidate{
		NextPeriodStart: utils.AddDays(timeline.cycles[active].Start, roundInt(mean)),
		Confidence:      confidence,
	}, nil
}
