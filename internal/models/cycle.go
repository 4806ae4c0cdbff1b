package models

import "time"

// Default profile values used when onboarding data is missing or out of range.
const (
	DefaultCycleLength  = 28
	DefaultPeriodLength = 5
	DefaultLutealLength = 14

	MinCycleLength  = 21
	MaxCycleLength  = 45
	MinPeriodLength = 2
	MaxPeriodLength = 10
	MinLutealLength = 10
	MaxLutealLength = 16
)

// CycleRecord is one logged period. End is nil while the period is still open.
type CycleRecord struct {
	Start time.Time  `json:"start" yaml:"start"`
	End   *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
}

// Open reports whether the period has no end date yet.
func (r CycleRecord) Open() bool {
	return r.End == nil
}

// SymptomCategory enumerates the symptom kinds the logging surface offers.
type SymptomCategory string

const (
	SymptomCramping         SymptomCategory = "cramping"
	SymptomHeadache         SymptomCategory = "headache"
	SymptomBloating         SymptomCategory = "bloating"
	SymptomFatigue          SymptomCategory = "fatigue"
	SymptomMoodSwings       SymptomCategory = "mood_swings"
	SymptomAcne             SymptomCategory = "acne"
	SymptomBreastTenderness SymptomCategory = "breast_tenderness"
	SymptomNausea           SymptomCategory = "nausea"
	SymptomBackPain         SymptomCategory = "back_pain"
	SymptomInsomnia         SymptomCategory = "insomnia"
	SymptomCravings         SymptomCategory = "cravings"
)

var knownSymptoms = map[SymptomCategory]struct{}{
	SymptomCramping:         {},
	SymptomHeadache:         {},
	SymptomBloating:         {},
	SymptomFatigue:          {},
	SymptomMoodSwings:       {},
	SymptomAcne:             {},
	SymptomBreastTenderness: {},
	SymptomNausea:           {},
	SymptomBackPain:         {},
	SymptomInsomnia:         {},
	SymptomCravings:         {},
}

// Valid reports whether c is a recognised category.
func (c SymptomCategory) Valid() bool {
	_, ok := knownSymptoms[c]
	return ok
}

// SymptomEntry is an immutable symptom log line.
type SymptomEntry struct {
	Date     time.Time       `json:"date" yaml:"date"`
	Category SymptomCategory `json:"category" yaml:"category"`
	Severity int             `json:"severity" yaml:"severity"`
}

// Profile holds onboarding defaults. The engine only reads it.
type Profile struct {
	AverageCycleLength  int  `json:"average_cycle_length" yaml:"averageCycleLength"`
	AveragePeriodLength int  `json:"average_period_length" yaml:"averagePeriodLength"`
	BirthYear           *int `json:"birth_year,omitempty" yaml:"birthYear,omitempty"`
	LutealPhaseLength   *int `json:"luteal_phase_length,omitempty" yaml:"lutealPhaseLength,omitempty"`
}

// DefaultProfile returns the profile used when onboarding never ran.
func DefaultProfile() Profile {
	return Profile{AverageCycleLength: DefaultCycleLength, AveragePeriodLength: DefaultPeriodLength}
}

// History is the read-only view handed over by the external store.
type History struct {
	Cycles   []CycleRecord  `json:"cycles" yaml:"cycles"`
	Symptoms []SymptomEntry `json:"symptoms" yaml:"symptoms"`

	// Warnings lists stored rows the reader could not decode and left out.
	// Their Index is the row position in the store, not in Cycles or Symptoms.
	Warnings []ValidationWarning `json:"warnings,omitempty" yaml:"-"`
}

// Phase is one of the four contiguous day ranges of a cycle.
type Phase string

const (
	PhaseMenstrual  Phase = "menstrual"
	PhaseFollicular Phase = "follicular"
	PhaseOvulation  Phase = "ovulation"
	PhaseLuteal     Phase = "luteal"
)

// Phases lists phases in cycle order.
var Phases = []Phase{PhaseMenstrual, PhaseFollicular, PhaseOvulation, PhaseLuteal}

// Index returns the position of p in cycle order, or -1.
func (p Phase) Index() int {
	for i, candidate := range Phases {
		if candidate == p {
			return i
		}
	}
	return -1
}
