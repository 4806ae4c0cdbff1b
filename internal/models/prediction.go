package models

import "time"

// StrategyKind identifies which prediction strategy produced a result.
type StrategyKind string

const (
	StrategyRuleBased StrategyKind = "rule_based"
	StrategyAdaptive  StrategyKind = "adaptive"
)

// PredictionResult is the immutable forecast of one recompute pass.
type PredictionResult struct {
	Phase               Phase        `json:"phase"`
	CycleDay            int          `json:"cycle_day"`
	DaysUntilNextPeriod int          `json:"days_until_next_period"`
	NextPeriodStart     time.Time    `json:"next_period_start"`
	FertileWindowStart  time.Time    `json:"fertile_window_start"`
	FertileWindowEnd    time.Time    `json:"fertile_window_end"`
	Confidence          float64      `json:"confidence"`
	Strategy            StrategyKind `json:"strategy"`
	Overdue             bool         `json:"overdue"`
	ComputedAt          time.Time    `json:"computed_at"`
}

// Factor is the second side of a correlation: a phase or another symptom category.
type Factor struct {
	Phase   Phase           `json:"phase,omitempty"`
	Symptom SymptomCategory `json:"symptom,omitempty"`
}

// FactorKind tags which side of Factor is populated.
type FactorKind string

const (
	FactorPhase   FactorKind = "phase"
	FactorSymptom FactorKind = "symptom"
)

// PhaseFactor builds a Factor holding a phase.
func PhaseFactor(p Phase) Factor { return Factor{Phase: p} }

// SymptomFactor builds a Factor holding a symptom category.
func SymptomFactor(c SymptomCategory) Factor { return Factor{Symptom: c} }

// Kind reports which variant f holds.
func (f Factor) Kind() FactorKind {
	if f.Phase != "" {
		return FactorPhase
	}
	return FactorSymptom
}

// String renders the populated side.
func (f Factor) String() string {
	if f.Kind() == FactorPhase {
		return string(f.Phase)
	}
	return string(f.Symptom)
}

// Correlation is a gated association between a symptom category and a factor.
type Correlation struct {
	FactorA    SymptomCategory `json:"factor_a"`
	FactorB    Factor          `json:"factor_b"`
	Strength   float64         `json:"strength"`
	SampleSize int             `json:"sample_size"`
}

// CycleStats summarises the recent completed cycles.
type CycleStats struct {
	CompletedCycles     int     `json:"completed_cycles"`
	AverageCycleLength  float64 `json:"average_cycle_length"`
	MedianCycleLength   int     `json:"median_cycle_length"`
	CycleLengthStdDev   float64 `json:"cycle_length_std_dev"`
	AveragePeriodLength float64 `json:"average_period_length"`
}

// Snapshot is the unit of publish: one prediction and the correlation batch of the same pass.
type Snapshot struct {
	PassID       string              `json:"pass_id"`
	// Seq increases by one per published pass of an engine. Stores order snapshots by it.
	Seq          uint64              `json:"seq"`
	ComputedAt   time.Time           `json:"computed_at"`
	Prediction   PredictionResult    `json:"prediction"`
	Correlations []Correlation       `json:"correlations"`
	Stats        CycleStats          `json:"stats"`
	Warnings     []ValidationWarning `json:"warnings,omitempty"`
}

// Clone returns a deep copy so readers cannot alias published slices.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Correlations = append([]Correlation(nil), s.Correlations...)
	out.Warnings = append([]ValidationWarning(nil), s.Warnings...)
	return out
}
