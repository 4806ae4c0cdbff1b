package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/cycle-engine/internal/models"
)

func TestNewTimelineExcludesInvalidRecords(t *testing.T) {
	endBeforeStart := closed(t, "2026-01-05", "2026-01-01")

	tests := []struct {
		name      string
		cycles    []models.CycleRecord
		wantKind  models.WarningKind
		wantIndex int
		wantKept  int
	}{
		{
			name:      "end before start",
			cycles:    []models.CycleRecord{endBeforeStart},
			wantKind:  models.WarningCycleEndBeforeStart,
			wantIndex: 0,
			wantKept:  0,
		},
		{
			name:      "out of order",
			cycles:    []models.CycleRecord{closed(t, "2026-02-01", "2026-02-05"), closed(t, "2026-01-01", "2026-01-05")},
			wantKind:  models.WarningCycleOutOfOrder,
			wantIndex: 1,
			wantKept:  1,
		},
		{
			name:      "overlap",
			cycles:    []models.CycleRecord{closed(t, "2026-01-01", "2026-01-10"), closed(t, "2026-01-08", "2026-01-12")},
			wantKind:  models.WarningCycleOverlap,
			wantIndex: 1,
			wantKept:  1,
		},
		{
			name:      "open record followed by later record",
			cycles:    []models.CycleRecord{open(t, "2026-01-01"), closed(t, "2026-01-29", "2026-02-02")},
			wantKind:  models.WarningCycleOpenNotLatest,
			wantIndex: 0,
			wantKept:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			timeline, warnings := NewTimeline(tc.cycles, models.DefaultProfile(), DefaultParams())
			require.Len(t, warnings, 1)
			assert.Equal(t, tc.wantKind, warnings[0].Kind)
			assert.Equal(t, tc.wantIndex, warnings[0].Index)
			assert.Len(t, timeline.Cycles(), tc.wantKept)
		})
	}
}

func TestNewTimelineKeepsLatestOpenRecord(t *testing.T) {
	cycles := []models.CycleRecord{closed(t, "2026-01-01", "2026-01-05"), open(t, "2026-01-29")}
	timeline, warnings := NewTimeline(cycles, models.DefaultProfile(), DefaultParams())
	assert.Empty(t, warnings)
	require.Len(t, timeline.Cycles(), 2)
	assert.True(t, timeline.Cycles()[1].Open())
}

func TestNewTimelineSanitisesProfile(t *testing.T) {
	luteal := 20
	profile := models.Profile{AverageCycleLength: 60, AveragePeriodLength: 1, LutealPhaseLength: &luteal}

	timeline, warnings := NewTimeline(nil, profile, DefaultParams())

	require.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.Equal(t, models.WarningProfileOutOfRange, w.Kind)
	}
	assert.Equal(t, models.DefaultCycleLength, timeline.Profile().AverageCycleLength)
	assert.Equal(t, models.DefaultPeriodLength, timeline.Profile().AveragePeriodLength)
	assert.Equal(t, models.DefaultLutealLength, timeline.LutealLength())
}

func TestTimelineLutealOverride(t *testing.T) {
	luteal := 12
	profile := models.DefaultProfile()
	profile.LutealPhaseLength = &luteal

	timeline, warnings := NewTimeline(nil, profile, DefaultParams())
	assert.Empty(t, warnings)
	assert.Equal(t, 12, timeline.LutealLength())
}

func TestTimelineRollingAverageUsesRecentWindow(t *testing.T) {
	// Older 40-day cycles fall outside the five-cycle window.
	lengths := append(repeat(40, 3), repeat(30, 5)...)
	cycles := regularCycles(day(t, "2025-01-01"), lengths, 5)
	timeline, _ := NewTimeline(cycles, models.DefaultProfile(), DefaultParams())

	last := cycles[len(cycles)-1].Start
	assert.Equal(t, repeat(30, 5), timeline.RecentLengths(last))
	assert.Equal(t, 30, timeline.EffectiveLength(last))

	stats := timeline.Stats(last)
	assert.Equal(t, 8, stats.CompletedCycles)
	assert.InDelta(t, 30.0, stats.AverageCycleLength, 1e-9)
	assert.Equal(t, 30, stats.MedianCycleLength)
	assert.InDelta(t, 0.0, stats.CycleLengthStdDev, 1e-9)
	assert.InDelta(t, 5.0, stats.AveragePeriodLength, 1e-9)
}

func TestTimelineIgnoresCyclesStartingAfterQueryDate(t *testing.T) {
	cycles := regularCycles(day(t, "2026-01-01"), repeat(28, 3), 5)
	timeline, _ := NewTimeline(cycles, models.DefaultProfile(), DefaultParams())

	// Only the first length is known 30 days in.
	assert.Equal(t, []int{28}, timeline.RecentLengths(day(t, "2026-01-31")))
}
