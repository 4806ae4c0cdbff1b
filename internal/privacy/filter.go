package privacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/miradorstack/cycle-engine/internal/metrics"
	"github.com/miradorstack/cycle-engine/internal/models"
)

// ErrRedactionFailed is returned when a projection carries keys outside its allowlist.
var ErrRedactionFailed = errors.New("privacy redaction failed")

// DefaultBucket is the countdown granularity exposed while privacy mode is on.
const DefaultBucket = 5

// Exposure is what untrusted consumers (widgets, extensions) may read.
// Reduced exposures only ever carry Phase and DaysUntilNextPeriod.
type Exposure struct {
	Reduced             bool                `json:"-"`
	Phase               models.Phase        `json:"phase"`
	DaysUntilNextPeriod int                 `json:"days_until_next_period"`
	CycleDay            *int                `json:"cycle_day,omitempty"`
	NextPeriodStart     *time.Time          `json:"next_period_start,omitempty"`
	FertileWindowStart  *time.Time          `json:"fertile_window_start,omitempty"`
	FertileWindowEnd    *time.Time          `json:"fertile_window_end,omitempty"`
	Confidence          *float64            `json:"confidence,omitempty"`
	Strategy            models.StrategyKind `json:"strategy,omitempty"`
	Overdue             *bool               `json:"overdue,omitempty"`
	ComputedAt          *time.Time          `json:"computed_at,omitempty"`
}

var (
	reducedKeys = []string{"phase", "days_until_next_period"}
	fullKeys    = []string{
		"phase", "days_until_next_period", "cycle_day", "next_period_start",
		"fertile_window_start", "fertile_window_end", "confidence", "strategy",
		"overdue", "computed_at",
	}
)

// Filter projects snapshots into exposures and verifies the result before release.
type Filter struct {
	bucket  int
	logger  *slog.Logger
	project func(models.PredictionResult, bool, int) Exposure
}

// NewFilter constructs a Filter. bucket <= 0 uses DefaultBucket.
func NewFilter(logger *slog.Logger, bucket int) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket <= 0 {
		bucket = DefaultBucket
	}
	return &Filter{bucket: bucket, logger: logger, project: project}
}

// Project derives the exposure for snapshot. It never mutates the snapshot.
func (f *Filter) Project(snapshot models.Snapshot, privacyMode bool) (Exposure, error) {
	exposure := f.project(snapshot.Prediction, privacyMode, f.bucket)

	allowed := fullKeys
	if privacyMode {
		allowed = reducedKeys
	}
	if extra, err := extraKeys(exposure, allowed); err != nil || len(extra) > 0 {
		metrics.ObserveRedactionFailure()
		f.logger.Error("privacy projection rejected",
			slog.String("pass_id", snapshot.PassID),
			slog.Bool("privacy_mode", privacyMode),
			slog.Any("extra_keys", extra),
			slog.Any("error", err),
		)
		return Exposure{}, ErrRedactionFailed
	}
	return exposure, nil
}

// Encode renders an exposure for shared storage.
func Encode(e Exposure) ([]byte, error) {
	return json.Marshal(e)
}

func project(p models.PredictionResult, reduced bool, bucket int) Exposure {
	if reduced {
		return Exposure{
			Reduced:             true,
			Phase:               p.Phase,
			DaysUntilNextPeriod: Bucket(p.DaysUntilNextPeriod, bucket),
		}
	}
	cycleDay, confidence, overdue := p.CycleDay, p.Confidence, p.Overdue
	next, fertileStart, fertileEnd, computed := p.NextPeriodStart, p.FertileWindowStart, p.FertileWindowEnd, p.ComputedAt
	return Exposure{
		Phase:               p.Phase,
		DaysUntilNextPeriod: p.DaysUntilNextPeriod,
		CycleDay:            &cycleDay,
		NextPeriodStart:     &next,
		FertileWindowStart:  &fertileStart,
		FertileWindowEnd:    &fertileEnd,
		Confidence:          &confidence,
		Strategy:            p.Strategy,
		Overdue:             &overdue,
		ComputedAt:          &computed,
	}
}

// Bucket rounds days to the nearest multiple of size, halves rounding up.
func Bucket(days, size int) int {
	if size <= 1 {
		return days
	}
	if days < 0 {
		days = 0
	}
	return ((days + size/2) / size) * size
}

func extraKeys(e Exposure, allowed []string) ([]string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal exposure: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("inspect exposure: %w", err)
	}

	permitted := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		permitted[k] = struct{}{}
	}
	var extra []string
	for k := range fields {
		if _, ok := permitted[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra, nil
}
