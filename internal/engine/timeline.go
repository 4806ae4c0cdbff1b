package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// Timeline is a validated, start-ordered cycle history paired with a sanitised profile.
// It is immutable once built.
type Timeline struct {
	cycles  []models.CycleRecord
	profile models.Profile
	params  Params
}

// NewTimeline validates cycles in their given order and drops records that break the
// history invariants. Every dropped record yields a warning.
func NewTimeline(cycles []models.CycleRecord, profile models.Profile, params Params) (*Timeline, []models.ValidationWarning) {
	params = params.withDefaults()
	profile, warnings := sanitizeProfile(profile)

	type indexed struct {
		record models.CycleRecord
		index  int
	}
	accepted := make([]indexed, 0, len(cycles))

	for i, raw := range cycles {
		record := normaliseRecord(raw)
		if record.End != nil && record.End.Before(record.Start) {
			warnings = append(warnings, models.ValidationWarning{
				Kind:    models.WarningCycleEndBeforeStart,
				Index:   i,
				Message: fmt.Sprintf("end %s precedes start %s", utils.FormatDate(*record.End), utils.FormatDate(record.Start)),
			})
			continue
		}

		if len(accepted) > 0 {
			prev := accepted[len(accepted)-1]
			if !record.Start.After(prev.record.Start) {
				warnings = append(warnings, models.ValidationWarning{
					Kind:    models.WarningCycleOutOfOrder,
					Index:   i,
					Message: fmt.Sprintf("start %s does not follow %s", utils.FormatDate(record.Start), utils.FormatDate(prev.record.Start)),
				})
				continue
			}
			if prev.record.End != nil && !record.Start.After(*prev.record.End) {
				warnings = append(warnings, models.ValidationWarning{
					Kind:    models.WarningCycleOverlap,
					Index:   i,
					Message: fmt.Sprintf("start %s overlaps period ending %s", utils.FormatDate(record.Start), utils.FormatDate(*prev.record.End)),
				})
				continue
			}
			if prev.record.Open() {
				warnings = append(warnings, models.ValidationWarning{
					Kind:    models.WarningCycleOpenNotLatest,
					Index:   prev.index,
					Message: fmt.Sprintf("open period starting %s is followed by a later record", utils.FormatDate(prev.record.Start)),
				})
				accepted = accepted[:len(accepted)-1]
			}
		}
		accepted = append(accepted, indexed{record: record, index: i})
	}

	valid := make([]models.CycleRecord, 0, len(accepted))
	for _, a := range accepted {
		valid = append(valid, a.record)
	}
	return &Timeline{cycles: valid, profile: profile, params: params}, warnings
}

func normaliseRecord(r models.CycleRecord) models.CycleRecord {
	out := models.CycleRecord{Start: utils.DateOnly(r.Start)}
	if r.End != nil {
		end := utils.DateOnly(*r.End)
		out.End = &end
	}
	return out
}

func sanitizeProfile(p models.Profile) (models.Profile, []models.ValidationWarning) {
	var warnings []models.ValidationWarning
	if p.AverageCycleLength < models.MinCycleLength || p.AverageCycleLength > models.MaxCycleLength {
		warnings = append(warnings, models.ValidationWarning{
			Kind:    models.WarningProfileOutOfRange,
			Index:   -1,
			Message: fmt.Sprintf("average cycle length %d outside [%d,%d]; using %d", p.AverageCycleLength, models.MinCycleLength, models.MaxCycleLength, models.DefaultCycleLength),
		})
		p.AverageCycleLength = models.DefaultCycleLength
	}
	if p.AveragePeriodLength < models.MinPeriodLength || p.AveragePeriodLength > models.MaxPeriodLength {
		warnings = append(warnings, models.ValidationWarning{
			Kind:    models.WarningProfileOutOfRange,
			Index:   -1,
			Message: fmt.Sprintf("average period length %d outside [%d,%d]; using %d", p.AveragePeriodLength, models.MinPeriodLength, models.MaxPeriodLength, models.DefaultPeriodLength),
		})
		p.AveragePeriodLength = models.DefaultPeriodLength
	}
	if p.LutealPhaseLength != nil {
		if v := *p.LutealPhaseLength; v < models.MinLutealLength || v > models.MaxLutealLength {
			warnings = append(warnings, models.ValidationWarning{
				Kind:    models.WarningProfileOutOfRange,
				Index:   -1,
				Message: fmt.Sprintf("luteal phase length %d outside [%d,%d]; ignored", v, models.MinLutealLength, models.MaxLutealLength),
			})
			p.LutealPhaseLength = nil
		}
	}
	return p, warnings
}

// Cycles returns a copy of the valid records.
func (t *Timeline) Cycles() []models.CycleRecord {
	return append([]models.CycleRecord(nil), t.cycles...)
}

// Profile returns the sanitised profile.
func (t *Timeline) Profile() models.Profile {
	return t.profile
}

// LutealLength is the profile override when present, else the configured constant.
func (t *Timeline) LutealLength() int {
	if t.profile.LutealPhaseLength != nil {
		return *t.profile.LutealPhaseLength
	}
	return t.params.LutealLength
}

// activeIndex returns the index of the latest record starting on or before date, or -1.
func (t *Timeline) activeIndex(date time.Time) int {
	date = utils.DateOnly(date)
	n := sort.Search(len(t.cycles), func(i int) bool {
		return t.cycles[i].Start.After(date)
	})
	return n - 1
}

// completedLengths returns every cycle length known on date, oldest first.
func (t *Timeline) completedLengths(date time.Time) []int {
	active := t.activeIndex(date)
	if active < 1 {
		return nil
	}
	lengths := make([]int, 0, active)
	for i := 1; i <= active; i++ {
		lengths = append(lengths, utils.DaysBetween(t.cycles[i-1].Start, t.cycles[i].Start))
	}
	return lengths
}

// RecentLengths returns the last up-to-HistoryWindow completed cycle lengths on date.
func (t *Timeline) RecentLengths(date time.Time) []int {
	return tailInts(t.completedLengths(date), t.params.HistoryWindow)
}

// recentPeriodLengths returns closed period lengths (inclusive days) of records started by date.
func (t *Timeline) recentPeriodLengths(date time.Time) []int {
	active := t.activeIndex(date)
	lengths := make([]int, 0, t.params.HistoryWindow)
	for i := active; i >= 0 && len(lengths) < t.params.HistoryWindow; i-- {
		record := t.cycles[i]
		if record.End == nil {
			continue
		}
		lengths = append(lengths, utils.DaysBetween(record.Start, *record.End)+1)
	}
	return lengths
}

// EffectiveLength is the rounded rolling average cycle length on date, else the profile default.
func (t *Timeline) EffectiveLength(date time.Time) int {
	if lengths := t.RecentLengths(date); len(lengths) > 0 {
		return roundInt(meanInts(lengths))
	}
	return t.profile.AverageCycleLength
}

// EffectivePeriodLength is the rounded average closed-period length on date, else the profile default.
func (t *Timeline) EffectivePeriodLength(date time.Time) int {
	if lengths := t.recentPeriodLengths(date); len(lengths) > 0 {
		return roundInt(meanInts(lengths))
	}
	return t.profile.AveragePeriodLength
}

// completedSpan returns the start and length of cycle idx when its successor started by asOf.
func (t *Timeline) completedSpan(idx int, asOf time.Time) (time.Time, int, bool) {
	if idx < 0 || idx+1 >= len(t.cycles) {
		return time.Time{}, 0, false
	}
	next := t.cycles[idx+1].Start
	if next.After(utils.DateOnly(asOf)) {
		return time.Time{}, 0, false
	}
	return t.cycles[idx].Start, utils.DaysBetween(t.cycles[idx].Start, next), true
}
