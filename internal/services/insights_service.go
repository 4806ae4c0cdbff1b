package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/miradorstack/cycle-engine/internal/cache"
	"github.com/miradorstack/cycle-engine/internal/engine"
	"github.com/miradorstack/cycle-engine/internal/flags"
	"github.com/miradorstack/cycle-engine/internal/metrics"
	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/privacy"
	"github.com/miradorstack/cycle-engine/internal/snapshot"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// ErrNotReady is returned by reads before the first snapshot is published.
var ErrNotReady = errors.New("no snapshot published yet")

// Trigger names an event that asks for a recompute.
type Trigger string

const (
	TriggerHistoryChanged   Trigger = "history_changed"
	TriggerForeground       Trigger = "foreground"
	TriggerMidnightRollover Trigger = "midnight_rollover"
	TriggerWidgetTick       Trigger = "widget_tick"
	TriggerManual           Trigger = "manual"
)

// ParseTrigger maps a case-insensitive name to a Trigger.
func ParseTrigger(value string) (Trigger, bool) {
	switch t := Trigger(strings.ToLower(strings.TrimSpace(value))); t {
	case TriggerHistoryChanged, TriggerForeground, TriggerMidnightRollover, TriggerWidgetTick, TriggerManual:
		return t, true
	default:
		return "", false
	}
}

// rateLimited reports whether the trigger fires often enough to need throttling.
func (t Trigger) rateLimited() bool {
	return t == TriggerWidgetTick || t == TriggerForeground
}

// TriggerResult is what became of one trigger.
type TriggerResult string

const (
	ResultRecomputed TriggerResult = "recomputed"
	ResultThrottled  TriggerResult = "throttled"
	ResultFailed     TriggerResult = "failed"
)

// WidgetMirror stores the privacy projection for out-of-process readers.
type WidgetMirror interface {
	Mirror(ctx context.Context, snapshot models.Snapshot, privacyMode bool) error
	Load(ctx context.Context) (privacy.Exposure, error)
}

// FlagOverrides layers externally managed overrides over the configured resolver.
type FlagOverrides interface {
	Resolve(ctx context.Context, base flags.Resolver) flags.Resolver
}

// Options wires the collaborators of an InsightsService.
type Options struct {
	Logger *slog.Logger
	Source engine.HistorySource
	Engine *engine.Engine
	Store  *snapshot.Store
	Filter *privacy.Filter
	Mirror WidgetMirror
	Flags  flags.Resolver
	Remote FlagOverrides
	// TriggerRate is the sustained rate (per second) of widget_tick and foreground recomputes.
	// Zero disables throttling.
	TriggerRate  float64
	TriggerBurst int
}

// Outcome describes a handled trigger. Throttled triggers carry the last published snapshot.
type Outcome struct {
	Trigger  Trigger
	Result   TriggerResult
	Snapshot models.Snapshot
	Fallback *models.StrategyFallback
}

// InsightsService orchestrates recompute passes and serves the published snapshot.
type InsightsService struct {
	logger    *slog.Logger
	source    engine.HistorySource
	engine    *engine.Engine
	store     *snapshot.Store
	filter    *privacy.Filter
	mirror    WidgetMirror
	flags     flags.Resolver
	remote    FlagOverrides
	limiter   *rate.Limiter
	latencies *utils.LatencyTracker
}

// NewInsightsService validates the options and builds the service.
func NewInsightsService(opts Options) (*InsightsService, error) {
	if opts.Source == nil {
		return nil, errors.New("insights service requires a history source")
	}
	if opts.Engine == nil {
		return nil, errors.New("insights service requires an engine")
	}
	if opts.Store == nil {
		return nil, errors.New("insights service requires a snapshot store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	filter := opts.Filter
	if filter == nil {
		filter = privacy.NewFilter(logger, privacy.DefaultBucket)
	}

	var limiter *rate.Limiter
	if opts.TriggerRate > 0 {
		burst := opts.TriggerBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.TriggerRate), burst)
	}

	return &InsightsService{
		logger:    logger,
		source:    opts.Source,
		engine:    opts.Engine,
		store:     opts.Store,
		filter:    filter,
		mirror:    opts.Mirror,
		flags:     opts.Flags,
		remote:    opts.Remote,
		limiter:   limiter,
		latencies: utils.NewLatencyTracker(1024),
	}, nil
}

// Recompute handles one trigger: it loads history, runs a full pass and publishes.
// On failure the previously published snapshot stays current.
func (s *InsightsService) Recompute(ctx context.Context, trigger Trigger) (Outcome, error) {
	if trigger.rateLimited() && s.limiter != nil {
		if current, ok := s.store.Current(); ok && !s.limiter.Allow() {
			metrics.ObserveTrigger(string(trigger), string(ResultThrottled))
			s.logger.Debug("recompute throttled", slog.String("trigger", string(trigger)))
			return Outcome{Trigger: trigger, Result: ResultThrottled, Snapshot: current}, nil
		}
	}

	resolved := s.resolveFlags(ctx)

	history, err := s.source.LoadHistory(ctx)
	if err != nil {
		return s.fail(trigger, utils.NewAppError("insights.recompute", "load history", err))
	}
	profile, err := s.source.LoadProfile(ctx)
	if err != nil {
		return s.fail(trigger, utils.NewAppError("insights.recompute", "load profile", err))
	}

	report, err := s.engine.Recompute(ctx, engine.Input{History: history, Profile: profile, Flags: resolved})
	if err != nil {
		return s.fail(trigger, err)
	}

	snap := report.Snapshot
	metrics.ObserveRecompute(report.Duration, metrics.OutcomeSuccess, string(snap.Prediction.Strategy))
	metrics.ObserveTrigger(string(trigger), string(ResultRecomputed))
	metrics.SetCorrelations(len(snap.Correlations))
	for _, w := range snap.Warnings {
		metrics.ObserveValidationWarning(string(w.Kind))
	}
	if fb := report.Fallback; fb != nil {
		metrics.ObserveFallback(string(fb.Reason))
		s.logger.Warn("adaptive prediction discarded",
			slog.String("reason", string(fb.Reason)),
			slog.String("detail", fb.Detail),
			slog.String("pass_id", snap.PassID),
		)
	}

	s.latencies.Observe(report.Duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("recompute latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	if s.mirror != nil {
		if err := s.mirror.Mirror(ctx, snap, resolved.IsEnabled(flags.PrivacyMode)); err != nil {
			s.logger.Error("widget mirror failed", slog.Any("error", err), slog.String("pass_id", snap.PassID))
		}
	}

	s.logger.Info("recompute finished",
		slog.String("trigger", string(trigger)),
		slog.String("pass_id", snap.PassID),
		slog.String("phase", string(snap.Prediction.Phase)),
		slog.Duration("duration", report.Duration),
	)
	return Outcome{Trigger: trigger, Result: ResultRecomputed, Snapshot: snap, Fallback: report.Fallback}, nil
}

func (s *InsightsService) fail(trigger Trigger, err error) (Outcome, error) {
	metrics.ObserveRecompute(0, metrics.OutcomeError, "")
	metrics.ObserveTrigger(string(trigger), string(ResultFailed))
	s.logger.Error("recompute failed", slog.String("trigger", string(trigger)), slog.Any("error", err))
	return Outcome{Trigger: trigger, Result: ResultFailed}, err
}

// Fire adapts Recompute to the scheduler callback.
func (s *InsightsService) Fire(ctx context.Context, name string) error {
	trigger, ok := ParseTrigger(name)
	if !ok {
		return fmt.Errorf("unknown trigger %q", name)
	}
	_, err := s.Recompute(ctx, trigger)
	return err
}

// Ready reports whether a snapshot has been published.
func (s *InsightsService) Ready() bool {
	_, ok := s.store.Current()
	return ok
}

// GetInsights returns the full-trust view of the current snapshot.
func (s *InsightsService) GetInsights(_ context.Context, filter models.InsightsFilter) (models.InsightsView, error) {
	current, ok := s.store.Current()
	if !ok {
		return models.InsightsView{}, ErrNotReady
	}

	view := models.InsightsView{
		Filter:   filter,
		MLStatus: models.MLStatusFor(current.Prediction.Strategy),
		PassID:   current.PassID,
	}
	switch filter {
	case models.FilterPredictions:
		view.Prediction = &current.Prediction
		view.Stats = &current.Stats
	case models.FilterCorrelations:
		view.Correlations = current.Correlations
	default:
		view.Filter = models.FilterAll
		view.Prediction = &current.Prediction
		view.Stats = &current.Stats
		view.Correlations = current.Correlations
	}
	return view, nil
}

// GetWidgetSnapshot returns the exposure allowed by the current privacy mode. Before the
// first local publish it falls back to the mirrored exposure, but never returns a full
// exposure while privacy mode is on.
func (s *InsightsService) GetWidgetSnapshot(ctx context.Context) (privacy.Exposure, error) {
	privacyMode := s.resolveFlags(ctx).IsEnabled(flags.PrivacyMode)

	if current, ok := s.store.Current(); ok {
		return s.filter.Project(current, privacyMode)
	}
	if s.mirror == nil {
		return privacy.Exposure{}, ErrNotReady
	}

	exposure, err := s.mirror.Load(ctx)
	if errors.Is(err, cache.ErrCacheMiss) {
		return privacy.Exposure{}, ErrNotReady
	}
	if err != nil {
		return privacy.Exposure{}, utils.NewAppError("insights.widget", "load mirrored exposure", err)
	}
	if privacyMode && !exposure.Reduced {
		return privacy.Exposure{}, ErrNotReady
	}
	return exposure, nil
}

// LatencyP95 returns the current p95 recompute latency.
func (s *InsightsService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func (s *InsightsService) resolveFlags(ctx context.Context) flags.Resolver {
	if s.remote == nil {
		return s.flags
	}
	return s.remote.Resolve(ctx, s.flags)
}
