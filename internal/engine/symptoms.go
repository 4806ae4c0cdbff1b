package engine

import (
	"fmt"
	"time"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// Severity bounds accepted on symptom entries.
const (
	MinSeverity = 1
	MaxSeverity = 5
)

// ValidateSymptoms drops entries with an unknown category or out-of-range severity.
// Kept entries are date-normalised and returned in input order.
func ValidateSymptoms(entries []models.SymptomEntry) ([]models.SymptomEntry, []models.ValidationWarning) {
	valid := make([]models.SymptomEntry, 0, len(entries))
	var warnings []models.ValidationWarning
	for i, entry := range entries {
		if !entry.Category.Valid() {
			warnings = append(warnings, models.ValidationWarning{
				Kind:    models.WarningSymptomUnknownCategory,
				Index:   i,
				Message: fmt.Sprintf("unknown symptom category %q", entry.Category),
			})
			continue
		}
		if entry.Severity < MinSeverity || entry.Severity > MaxSeverity {
			warnings = append(warnings, models.ValidationWarning{
				Kind:    models.WarningSymptomSeverityRange,
				Index:   i,
				Message: fmt.Sprintf("severity %d outside [%d,%d]", entry.Severity, MinSeverity, MaxSeverity),
			})
			continue
		}
		entry.Date = utils.DateOnly(entry.Date)
		valid = append(valid, entry)
	}
	return valid, warnings
}

// AssignPhases tags each symptom with the phase it fell in, judged with the history known
// on the symptom's own date. Only entries inside cycles completed by asOf count as completed.
func (t *Timeline) AssignPhases(symptoms []models.SymptomEntry, asOf time.Time) []PhaseAssignment {
	asOf = utils.DateOnly(asOf)
	out := make([]PhaseAssignment, len(symptoms))
	for i, entry := range symptoms {
		date := utils.DateOnly(entry.Date)
		if date.After(asOf) {
			out[i] = PhaseAssignment{CycleIndex: -1}
			continue
		}
		info := t.PhaseAt(date)
		assignment := PhaseAssignment{Phase: info.Phase, CycleIndex: info.CycleIndex}
		if _, days, ok := t.completedSpan(info.CycleIndex, asOf); ok {
			assignment.Completed = true
			assignment.CycleDays = days
		}
		out[i] = assignment
	}
	return out
}
