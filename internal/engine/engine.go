package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/cycle-engine/internal/flags"
	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// ErrNoPublisher is returned when Recompute runs on an engine built without a publisher.
var ErrNoPublisher = errors.New("engine has no snapshot publisher")

// Publisher receives each completed pass. Implementations swap the snapshot atomically.
type Publisher interface {
	Publish(snapshot models.Snapshot) error
}

// HistorySource is the read-only store contract the engine pulls history from.
type HistorySource interface {
	LoadHistory(ctx context.Context) (models.History, error)
	LoadProfile(ctx context.Context) (models.Profile, error)
}

// Input is one recompute request.
type Input struct {
	History models.History
	Profile models.Profile
	// Flags is read once per pass. Nil means registry defaults.
	Flags flags.View
}

// Report describes a finished pass.
type Report struct {
	Snapshot models.Snapshot
	Fallback *models.StrategyFallback
	Duration time.Duration
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone whose calendar date is "today".
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithAdaptive installs the strategy used while ml_predictions is enabled.
func WithAdaptive(strategy Strategy) Option {
	return func(e *Engine) {
		e.adaptive = strategy
	}
}

// Engine runs recompute passes. Passes are serialised; each publishes one snapshot.
type Engine struct {
	logger    *slog.Logger
	params    Params
	publisher Publisher
	rule      *RuleBased
	adaptive  Strategy
	now       func() time.Time
	location  *time.Location

	mu  sync.Mutex
	seq uint64
}

// NewEngine constructs an engine publishing to publisher.
func NewEngine(logger *slog.Logger, params Params, publisher Publisher, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	params = params.withDefaults()
	e := &Engine{
		logger:    logger,
		params:    params,
		publisher: publisher,
		rule:      NewRuleBased(params),
		now:       time.Now,
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Params returns the effective engine constants.
func (e *Engine) Params() Params {
	return e.params
}

// Today returns the current calendar date in the engine's zone.
func (e *Engine) Today() time.Time {
	return utils.DateIn(e.now(), e.location)
}

// Recompute validates the input, predicts, analyses correlations and publishes the
// result as a single snapshot. Validation problems are reported, not returned.
func (e *Engine) Recompute(ctx context.Context, in Input) (Report, error) {
	if e.publisher == nil {
		return Report{}, ErrNoPublisher
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	computedAt := e.now().UTC()
	asOf := utils.DateIn(computedAt, e.location)

	snapshot, fallback := e.compute(ctx, in, asOf, computedAt)

	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("recompute cancelled: %w", err)
	}
	e.seq++
	snapshot.Seq = e.seq
	if err := e.publisher.Publish(snapshot); err != nil {
		return Report{}, fmt.Errorf("publish snapshot: %w", err)
	}

	report := Report{Snapshot: snapshot.Clone(), Fallback: fallback, Duration: time.Since(started)}
	e.logger.Debug("recompute published",
		slog.String("pass_id", snapshot.PassID),
		slog.String("phase", string(snapshot.Prediction.Phase)),
		slog.String("strategy", string(snapshot.Prediction.Strategy)),
		slog.Int("correlations", len(snapshot.Correlations)),
		slog.Int("warnings", len(snapshot.Warnings)),
	)
	return report, nil
}

// Evaluate computes a snapshot for asOf without publishing it.
func (e *Engine) Evaluate(ctx context.Context, in Input, asOf time.Time) models.Snapshot {
	snapshot, _ := e.compute(ctx, in, utils.DateOnly(asOf), e.now().UTC())
	return snapshot
}

func (e *Engine) compute(ctx context.Context, in Input, asOf, computedAt time.Time) (models.Snapshot, *models.StrategyFallback) {
	timeline, cycleWarnings := NewTimeline(in.History.Cycles, in.Profile, e.params)
	symptoms, symptomWarnings := ValidateSymptoms(in.History.Symptoms)

	warnings := make([]models.ValidationWarning, 0, len(in.History.Warnings)+len(cycleWarnings)+len(symptomWarnings))
	warnings = append(warnings, in.History.Warnings...)
	warnings = append(warnings, cycleWarnings...)
	warnings = append(warnings, symptomWarnings...)

	for _, w := range warnings {
		e.logger.Warn("history record excluded",
			slog.String("kind", string(w.Kind)),
			slog.Int("index", w.Index),
			slog.String("detail", w.Message),
		)
	}

	strategy := e.selectStrategy(in.Flags, timeline)
	estimate := strategy.Predict(ctx, PredictionInput{
		AsOf:     asOf,
		Timeline: timeline,
		History:  models.History{Cycles: timeline.Cycles(), Symptoms: symptoms},
	})

	prediction := e.buildPrediction(timeline, estimate, asOf, computedAt)

	analyzer := NewAnalyzer(e.params, flags.Enabled(in.Flags, flags.PairCorrelations))
	correlations := analyzer.FindCorrelations(symptoms, timeline.AssignPhases(symptoms, asOf))

	return models.Snapshot{
		PassID:       uuid.NewString(),
		ComputedAt:   computedAt,
		Prediction:   prediction,
		Correlations: correlations,
		Stats:        timeline.Stats(asOf),
		Warnings:     warnings,
	}, estimate.Fallback
}

func (e *Engine) selectStrategy(view flags.View, timeline *Timeline) Strategy {
	if e.adaptive == nil || !flags.Enabled(view, flags.MLPredictions) {
		return e.rule
	}
	if len(timeline.cycles) == 0 {
		return e.rule
	}
	return e.adaptive
}

func (e *Engine) buildPrediction(timeline *Timeline, estimate Estimate, asOf, computedAt time.Time) models.PredictionResult {
	info := timeline.PhaseAt(asOf)
	fertileStart, fertileEnd := FertileWindow(estimate.NextPeriodStart, timeline.LutealLength(), e.params)

	days := utils.DaysBetween(asOf, estimate.NextPeriodStart)
	overdue := days < 0
	if overdue {
		days = 0
	}

	return models.PredictionResult{
		Phase:               info.Phase,
		CycleDay:            info.Offset + 1,
		DaysUntilNextPeriod: days,
		NextPeriodStart:     estimate.NextPeriodStart,
		FertileWindowStart:  fertileStart,
		FertileWindowEnd:    fertileEnd,
		Confidence:          estimate.Confidence,
		Strategy:            estimate.Strategy,
		Overdue:             overdue,
		ComputedAt:          computedAt,
	}
}
