package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/cycle-engine/internal/flags"
	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

func TestRecomputeSingleRecord(t *testing.T) {
	publisher := &recordingPublisher{}
	e := NewEngine(nil, DefaultParams(), publisher, WithClock(fixedClock(day(t, "2026-01-10").Add(9*time.Hour))))

	report, err := e.Recompute(context.Background(), Input{
		History: models.History{Cycles: []models.CycleRecord{closed(t, "2026-01-01", "2026-01-05")}},
		Profile: models.DefaultProfile(),
	})
	require.NoError(t, err)
	require.Len(t, publisher.published, 1)

	p := report.Snapshot.Prediction
	assert.Equal(t, models.PhaseFollicular, p.Phase)
	assert.Equal(t, 10, p.CycleDay)
	assert.Equal(t, day(t, "2026-01-29"), p.NextPeriodStart)
	assert.Equal(t, 19, p.DaysUntilNextPeriod)
	assert.False(t, p.Overdue)
	assert.InDelta(t, 0.1, p.Confidence, 1e-9)
	assert.Equal(t, models.StrategyRuleBased, p.Strategy)
	assert.Equal(t, day(t, "2026-01-10"), p.FertileWindowStart)
	assert.Equal(t, day(t, "2026-01-16"), p.FertileWindowEnd)
	assert.Empty(t, report.Snapshot.Correlations)
	assert.NotEmpty(t, report.Snapshot.PassID)
	assert.Equal(t, publisher.published[0].PassID, report.Snapshot.PassID)
	assert.Equal(t, p.ComputedAt, report.Snapshot.ComputedAt)
}

func TestRecomputeRegularHistoryOvulation(t *testing.T) {
	cycles := regularCycles(day(t, "2025-08-01"), repeat(28, 5), 5)
	last := cycles[len(cycles)-1].Start
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{}, WithClock(fixedClock(utils.AddDays(last, 13))))

	report, err := e.Recompute(context.Background(), Input{History: models.History{Cycles: cycles}, Profile: models.DefaultProfile()})
	require.NoError(t, err)

	p := report.Snapshot.Prediction
	assert.Equal(t, models.PhaseOvulation, p.Phase)
	assert.Equal(t, 14, p.CycleDay)
	assert.Equal(t, utils.AddDays(last, 28), p.NextPeriodStart)
	assert.InDelta(t, 0.9, p.Confidence, 1e-9)
	assert.Equal(t, 5, report.Snapshot.Stats.CompletedCycles)
}

func TestRecomputeCorrelationsShareThePass(t *testing.T) {
	cycles := regularCycles(day(t, "2026-01-01"), repeat(28, 4), 5)
	symptoms := symptomsAt(cycles, models.SymptomCramping, 0, 4)
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{}, WithClock(fixedClock(utils.AddDays(cycles[4].Start, 6))))

	report, err := e.Recompute(context.Background(), Input{
		History: models.History{Cycles: cycles, Symptoms: symptoms},
		Profile: models.DefaultProfile(),
	})
	require.NoError(t, err)
	require.Len(t, report.Snapshot.Correlations, 1)
	assert.Equal(t, 4, report.Snapshot.Correlations[0].SampleSize)
}

func TestRecomputeReportsInvalidInput(t *testing.T) {
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{}, WithClock(fixedClock(day(t, "2026-02-10"))))

	report, err := e.Recompute(context.Background(), Input{
		History: models.History{
			Cycles: []models.CycleRecord{
				closed(t, "2026-01-01", "2026-01-05"),
				closed(t, "2026-01-20", "2026-01-10"),
				closed(t, "2026-01-29", "2026-02-02"),
			},
			Symptoms: []models.SymptomEntry{
				{Date: day(t, "2026-01-02"), Category: "hiccups", Severity: 2},
				{Date: day(t, "2026-01-03"), Category: models.SymptomCramping, Severity: 9},
				{Date: day(t, "2026-01-04"), Category: models.SymptomCramping, Severity: 4},
			},
		},
		Profile: models.DefaultProfile(),
	})
	require.NoError(t, err)

	kinds := make([]models.WarningKind, 0, len(report.Snapshot.Warnings))
	for _, w := range report.Snapshot.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.ElementsMatch(t, []models.WarningKind{
		models.WarningCycleEndBeforeStart,
		models.WarningSymptomUnknownCategory,
		models.WarningSymptomSeverityRange,
	}, kinds)
	assert.Equal(t, 1, report.Snapshot.Stats.CompletedCycles)
}

func TestRecomputeEmptyHistoryIgnoresAdaptive(t *testing.T) {
	called := false
	scorer := ScorerFunc(func(ctx context.Context, in ScoreInput) (Candidate, error) {
		called = true
		return Candidate{NextPeriodStart: in.AsOf, Confidence: 1}, nil
	})
	adaptive, err := NewAdaptive(nil, NewRuleBased(DefaultParams()), scorer, time.Second)
	require.NoError(t, err)

	e := NewEngine(nil, DefaultParams(), &recordingPublisher{},
		WithClock(fixedClock(day(t, "2026-05-05"))),
		WithAdaptive(adaptive),
	)
	report, err := e.Recompute(context.Background(), Input{
		Profile: models.DefaultProfile(),
		Flags:   flags.NewResolver(nil, map[string]bool{flags.MLPredictions: true}),
	})
	require.NoError(t, err)

	assert.False(t, called)
	p := report.Snapshot.Prediction
	assert.Equal(t, models.PhaseMenstrual, p.Phase)
	assert.Equal(t, models.StrategyRuleBased, p.Strategy)
	assert.InDelta(t, 0.1, p.Confidence, 1e-9)
	assert.Equal(t, day(t, "2026-06-02"), p.NextPeriodStart)
}

func TestRecomputeStrategyFollowsFlag(t *testing.T) {
	cycles := regularCycles(day(t, "2026-01-01"), repeat(28, 5), 5)
	last := cycles[len(cycles)-1].Start
	scorer := ScorerFunc(func(ctx context.Context, in ScoreInput) (Candidate, error) {
		return Candidate{NextPeriodStart: utils.AddDays(last, 29), Confidence: 0.95}, nil
	})
	adaptive, err := NewAdaptive(nil, NewRuleBased(DefaultParams()), scorer, time.Second)
	require.NoError(t, err)
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{},
		WithClock(fixedClock(utils.AddDays(last, 5))),
		WithAdaptive(adaptive),
	)
	in := Input{History: models.History{Cycles: cycles}, Profile: models.DefaultProfile()}

	off, err := e.Recompute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyRuleBased, off.Snapshot.Prediction.Strategy)

	in.Flags = flags.NewResolver(map[string]bool{flags.MLPredictions: true}, nil)
	on, err := e.Recompute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyAdaptive, on.Snapshot.Prediction.Strategy)
	assert.Equal(t, utils.AddDays(last, 29), on.Snapshot.Prediction.NextPeriodStart)
	assert.Equal(t, utils.AddDays(last, 16), on.Snapshot.Prediction.FertileWindowEnd)
}

func TestRecomputeFallbackIsReported(t *testing.T) {
	cycles := regularCycles(day(t, "2026-01-01"), repeat(28, 5), 5)
	last := cycles[len(cycles)-1].Start
	scorer := ScorerFunc(func(ctx context.Context, in ScoreInput) (Candidate, error) {
		return Candidate{}, errors.New("offline")
	})
	adaptive, err := NewAdaptive(nil, NewRuleBased(DefaultParams()), scorer, time.Second)
	require.NoError(t, err)
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{},
		WithClock(fixedClock(utils.AddDays(last, 5))),
		WithAdaptive(adaptive),
	)

	report, err := e.Recompute(context.Background(), Input{
		History: models.History{Cycles: cycles},
		Profile: models.DefaultProfile(),
		Flags:   flags.NewResolver(nil, map[string]bool{flags.MLPredictions: true}),
	})
	require.NoError(t, err)
	require.NotNil(t, report.Fallback)
	assert.Equal(t, models.FallbackDelegateError, report.Fallback.Reason)
	assert.Equal(t, models.StrategyRuleBased, report.Snapshot.Prediction.Strategy)
}

func TestRecomputeOverdue(t *testing.T) {
	cycles := []models.CycleRecord{closed(t, "2026-01-01", "2026-01-05")}
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{}, WithClock(fixedClock(day(t, "2026-02-10"))))

	report, err := e.Recompute(context.Background(), Input{History: models.History{Cycles: cycles}, Profile: models.DefaultProfile()})
	require.NoError(t, err)

	p := report.Snapshot.Prediction
	assert.True(t, p.Overdue)
	assert.Equal(t, 0, p.DaysUntilNextPeriod)
	assert.Equal(t, models.PhaseLuteal, p.Phase)
	assert.Equal(t, 41, p.CycleDay)
}

func TestRecomputeUsesConfiguredZone(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{}, WithClock(fixedClock(now)), WithLocation(zone))

	report, err := e.Recompute(context.Background(), Input{
		History: models.History{Cycles: []models.CycleRecord{closed(t, "2026-01-01", "2026-01-05")}},
		Profile: models.DefaultProfile(),
	})
	require.NoError(t, err)
	assert.Equal(t, 9, report.Snapshot.Prediction.CycleDay)
	assert.Equal(t, day(t, "2026-01-09"), e.Today())
}

func TestRecomputePublishError(t *testing.T) {
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{err: errors.New("stale")}, WithClock(fixedClock(day(t, "2026-01-10"))))
	_, err := e.Recompute(context.Background(), Input{Profile: models.DefaultProfile()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish snapshot")
}

func TestRecomputeWithoutPublisher(t *testing.T) {
	e := NewEngine(nil, DefaultParams(), nil)
	_, err := e.Recompute(context.Background(), Input{})
	assert.ErrorIs(t, err, ErrNoPublisher)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cycles := regularCycles(day(t, "2025-03-01"), []int{27, 31, 29, 26, 30, 28}, 6)
	symptoms := append(
		symptomsAt(cycles, models.SymptomBloating, 22, 6),
		symptomsAt(cycles, models.SymptomCramping, 1, 5)...,
	)
	in := Input{History: models.History{Cycles: cycles, Symptoms: symptoms}, Profile: models.DefaultProfile()}
	asOf := utils.AddDays(cycles[len(cycles)-1].Start, 12)
	e := NewEngine(nil, DefaultParams(), &recordingPublisher{}, WithClock(fixedClock(asOf)))

	first := e.Evaluate(context.Background(), in, asOf)
	second := e.Evaluate(context.Background(), in, asOf)

	assert.Equal(t, first.Prediction, second.Prediction)
	assert.Equal(t, first.Correlations, second.Correlations)
	assert.Equal(t, first.Stats, second.Stats)
	assert.NotEqual(t, first.PassID, second.PassID)
}

func TestRecomputeSerialisesConcurrentPasses(t *testing.T) {
	cycles := regularCycles(day(t, "2026-01-01"), repeat(28, 3), 5)
	publisher := &recordingPublisher{}
	e := NewEngine(nil, DefaultParams(), publisher, WithClock(fixedClock(utils.AddDays(cycles[3].Start, 2))))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Recompute(context.Background(), Input{History: models.History{Cycles: cycles}, Profile: models.DefaultProfile()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, publisher.published, 8)
	ids := map[string]struct{}{}
	for i, s := range publisher.published {
		ids[s.PassID] = struct{}{}
		assert.Equal(t, uint64(i+1), s.Seq)
	}
	assert.Len(t, ids, 8)
}

func TestRecomputeCarriesReaderWarnings(t *testing.T) {
	cycles := regularCycles(day(t, "2026-01-01"), repeat(28, 3), 5)
	publisher := &recordingPublisher{}
	e := NewEngine(nil, DefaultParams(), publisher, WithClock(fixedClock(utils.AddDays(cycles[3].Start, 2))))

	report, err := e.Recompute(context.Background(), Input{
		History: models.History{
			Cycles:   cycles,
			Warnings: []models.ValidationWarning{{Kind: models.WarningCycleUnparseable, Index: 4, Message: "bad date"}},
		},
		Profile: models.DefaultProfile(),
	})
	require.NoError(t, err)

	require.Len(t, report.Snapshot.Warnings, 1)
	assert.Equal(t, models.WarningCycleUnparseable, report.Snapshot.Warnings[0].Kind)
	assert.Equal(t, 3, report.Snapshot.Stats.CompletedCycles)
	assert.Equal(t, models.PhaseMenstrual, report.Snapshot.Prediction.Phase)
}
