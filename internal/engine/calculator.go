package engine

import (
	"time"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// PhaseInfo describes where a date falls within its cycle.
type PhaseInfo struct {
	Phase        models.Phase
	Offset       int
	CycleIndex   int
	CycleStart   time.Time
	CycleLength  int
	PeriodLength int
	Overrun      bool
	Synthetic    bool
}

// Windows are the day offsets bounding each phase of a cycle of Length days.
type Windows struct {
	Length         int
	Period         int
	OvulationStart int
	OvulationEnd   int
}

// NewWindows derives phase windows for cycle length l and period length p.
// Menstrual takes precedence over ovulation, which takes precedence over the rest.
func NewWindows(l, p, lead, lag int) Windows {
	if l < 1 {
		l = 1
	}
	if p < 0 {
		p = 0
	}
	if p > l {
		p = l
	}
	mid := l / 2
	start := mid - lead
	if start < p {
		start = p
	}
	end := mid + lag
	if end > l-1 {
		end = l - 1
	}
	return Windows{Length: l, Period: p, OvulationStart: start, OvulationEnd: end}
}

// PhaseAt maps a 0-based day offset to its phase. Offsets past the cycle length are
// luteal with overrun set.
func (w Windows) PhaseAt(offset int) (models.Phase, bool) {
	switch {
	case offset >= w.Length:
		return models.PhaseLuteal, true
	case offset < w.Period:
		return models.PhaseMenstrual, false
	case offset >= w.OvulationStart && offset <= w.OvulationEnd:
		return models.PhaseOvulation, false
	case offset < w.OvulationStart:
		return models.PhaseFollicular, false
	default:
		return models.PhaseLuteal, false
	}
}

// PhaseAt resolves the phase for date using the history known on that date.
func (t *Timeline) PhaseAt(date time.Time) PhaseInfo {
	date = utils.DateOnly(date)
	info := PhaseInfo{
		CycleIndex:   t.activeIndex(date),
		CycleLength:  t.EffectiveLength(date),
		PeriodLength: t.EffectivePeriodLength(date),
	}
	if info.CycleIndex < 0 {
		info.Synthetic = true
		info.CycleStart = date
		info.CycleLength = t.profile.AverageCycleLength
	} else {
		info.CycleStart = t.cycles[info.CycleIndex].Start
		info.Offset = utils.DaysBetween(info.CycleStart, date)
	}

	windows := NewWindows(info.CycleLength, info.PeriodLength, t.params.OvulationLead, t.params.OvulationLag)
	info.Phase, info.Overrun = windows.PhaseAt(info.Offset)
	return info
}

// Calculator answers phase queries over raw history.
type Calculator struct {
	params Params
}

// NewCalculator constructs a Calculator.
func NewCalculator(params Params) *Calculator {
	return &Calculator{params: params.withDefaults()}
}

// PhaseFor returns the phase of date. Invalid records are ignored.
func (c *Calculator) PhaseFor(date time.Time, history []models.CycleRecord, profile models.Profile) models.Phase {
	timeline, _ := NewTimeline(history, profile, c.params)
	return timeline.PhaseAt(date).Phase
}

// PhaseFor is Calculator.PhaseFor with default parameters.
func PhaseFor(date time.Time, history []models.CycleRecord, profile models.Profile) models.Phase {
	return NewCalculator(DefaultParams()).PhaseFor(date, history, profile)
}
