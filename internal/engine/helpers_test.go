package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := utils.ParseDate(value)
	require.NoError(t, err)
	return d
}

func closed(t *testing.T, start, end string) models.CycleRecord {
	t.Helper()
	e := day(t, end)
	return models.CycleRecord{Start: day(t, start), End: &e}
}

func open(t *testing.T, start string) models.CycleRecord {
	t.Helper()
	return models.CycleRecord{Start: day(t, start)}
}

// regularCycles builds n closed records of the given lengths starting at first.
func regularCycles(first time.Time, lengths []int, period int) []models.CycleRecord {
	records := make([]models.CycleRecord, 0, len(lengths)+1)
	start := first
	for i := 0; i <= len(lengths); i++ {
		end := utils.AddDays(start, period-1)
		records = append(records, models.CycleRecord{Start: start, End: &end})
		if i < len(lengths) {
			start = utils.AddDays(start, lengths[i])
		}
	}
	return records
}

func repeat(value, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = value
	}
	return out
}

type recordingPublisher struct {
	published []models.Snapshot
	err       error
}

func (r *recordingPublisher) Publish(s models.Snapshot) error {
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, s)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
