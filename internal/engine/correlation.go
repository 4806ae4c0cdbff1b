package engine

import (
	"math"
	"sort"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// PhaseAssignment tags one symptom entry with the phase and cycle it fell in.
type PhaseAssignment struct {
	Phase      models.Phase
	CycleIndex int
	// Completed is true when the entry's cycle had ended by the analysis date.
	Completed bool
	// CycleDays is the length of the completed cycle, zero otherwise.
	CycleDays int
}

// Analyzer turns phase-tagged symptom history into gated correlations.
type Analyzer struct {
	minSample     int
	multiplier    float64
	pairThreshold float64
	pairs         bool
}

// NewAnalyzer constructs an Analyzer. pairs enables symptom-to-symptom findings.
func NewAnalyzer(params Params, pairs bool) *Analyzer {
	params = params.withDefaults()
	return &Analyzer{
		minSample:     params.MinSample,
		multiplier:    params.FrequencyMultiplier,
		pairThreshold: params.PairThreshold,
		pairs:         pairs,
	}
}

type categoryAggregate struct {
	order       int
	total       int
	phaseCounts [4]int
	cycles      map[int]struct{}
	days        map[int64]struct{}
}

// FindCorrelations evaluates symptoms against their assignments (same length, same order).
// Categories logged in fewer than MinSample completed cycles are omitted entirely.
func (a *Analyzer) FindCorrelations(symptoms []models.SymptomEntry, assignments []PhaseAssignment) []models.Correlation {
	n := len(symptoms)
	if len(assignments) < n {
		n = len(assignments)
	}

	// Ties break on the first time a category was logged at all, including entries in
	// the open cycle that do not count towards any finding.
	firstSeen := make(map[models.SymptomCategory]int)
	for i := 0; i < n; i++ {
		if _, ok := firstSeen[symptoms[i].Category]; !ok {
			firstSeen[symptoms[i].Category] = len(firstSeen)
		}
	}

	aggregates := make(map[models.SymptomCategory]*categoryAggregate)
	order := make([]models.SymptomCategory, 0)
	cycleDays := make(map[int]int)

	for i := 0; i < n; i++ {
		entry, assignment := symptoms[i], assignments[i]
		if !assignment.Completed {
			continue
		}
		phaseIdx := assignment.Phase.Index()
		if phaseIdx < 0 {
			continue
		}
		agg, ok := aggregates[entry.Category]
		if !ok {
			agg = &categoryAggregate{
				cycles: make(map[int]struct{}),
				days:   make(map[int64]struct{}),
			}
			aggregates[entry.Category] = agg
			order = append(order, entry.Category)
		}
		agg.total++
		agg.phaseCounts[phaseIdx]++
		agg.cycles[assignment.CycleIndex] = struct{}{}
		agg.days[utils.DateOnly(entry.Date).Unix()] = struct{}{}
		cycleDays[assignment.CycleIndex] = assignment.CycleDays
	}

	sort.SliceStable(order, func(i, j int) bool { return firstSeen[order[i]] < firstSeen[order[j]] })
	for i, category := range order {
		aggregates[category].order = i
	}

	findings := make([]finding, 0)
	expected := 1.0 / float64(len(models.Phases))

	for _, category := range order {
		agg := aggregates[category]
		sample := len(agg.cycles)
		if sample < a.minSample || agg.total == 0 {
			continue
		}
		for phaseIdx, count := range agg.phaseCounts {
			freq := float64(count) / float64(agg.total)
			if freq <= a.multiplier*expected {
				continue
			}
			findings = append(findings, finding{
				Correlation: models.Correlation{
					FactorA:    category,
					FactorB:    models.PhaseFactor(models.Phases[phaseIdx]),
					Strength:   clamp((freq-expected)/(1-expected), -1, 1),
					SampleSize: sample,
				},
				aOrder: agg.order,
				bOrder: phaseIdx,
			})
		}
	}

	if a.pairs {
		universe := 0
		for _, days := range cycleDays {
			universe += days
		}
		findings = append(findings, a.pairFindings(order, aggregates, universe)...)
	}

	sortFindings(findings)

	out := make([]models.Correlation, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Correlation)
	}
	return out
}

func (a *Analyzer) pairFindings(order []models.SymptomCategory, aggregates map[models.SymptomCategory]*categoryAggregate, universe int) []finding {
	if universe <= 0 {
		return nil
	}
	var findings []finding
	for i, first := range order {
		aggA := aggregates[first]
		for j := i + 1; j < len(order); j++ {
			aggB := aggregates[order[j]]

			shared := 0
			for cycle := range aggA.cycles {
				if _, ok := aggB.cycles[cycle]; ok {
					shared++
				}
			}
			if shared < a.minSample {
				continue
			}

			both := 0
			for day := range aggA.days {
				if _, ok := aggB.days[day]; ok {
					both++
				}
			}
			phi, ok := phiCoefficient(universe, len(aggA.days), len(aggB.days), both)
			if !ok || math.Abs(phi) < a.pairThreshold {
				continue
			}
			findings = append(findings, finding{
				Correlation: models.Correlation{
					FactorA:    first,
					FactorB:    models.SymptomFactor(order[j]),
					Strength:   clamp(phi, -1, 1),
					SampleSize: shared,
				},
				aOrder: i,
				bOrder: j,
				pair:   true,
			})
		}
	}
	return findings
}

// phiCoefficient computes the phi coefficient of two binary daily signals over n days.
func phiCoefficient(n, countA, countB, both int) (float64, bool) {
	nf, a, b, ab := float64(n), float64(countA), float64(countB), float64(both)
	denominator := math.Sqrt(a * (nf - a) * b * (nf - b))
	if denominator == 0 {
		return 0, false
	}
	return (nf*ab - a*b) / denominator, true
}

type finding struct {
	models.Correlation
	aOrder int
	bOrder int
	pair   bool
}

func sortFindings(findings []finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		fi, fj := findings[i], findings[j]
		if si, sj := math.Abs(fi.Strength), math.Abs(fj.Strength); si != sj {
			return si > sj
		}
		if fi.SampleSize != fj.SampleSize {
			return fi.SampleSize > fj.SampleSize
		}
		if fi.aOrder != fj.aOrder {
			return fi.aOrder < fj.aOrder
		}
		if fi.pair != fj.pair {
			return !fi.pair
		}
		return fi.bOrder < fj.bOrder
	})
}
