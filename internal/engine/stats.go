package engine

import (
	"math"
	"sort"
	"time"

	"github.com/miradorstack/cycle-engine/internal/models"
)

// Stats summarises the recent completed cycles known on date.
func (t *Timeline) Stats(date time.Time) models.CycleStats {
	lengths := t.RecentLengths(date)
	stats := models.CycleStats{CompletedCycles: len(t.completedLengths(date))}
	if len(lengths) > 0 {
		stats.AverageCycleLength = meanInts(lengths)
		stats.MedianCycleLength = medianInt(lengths)
		stats.CycleLengthStdDev = math.Sqrt(populationVariance(lengths))
	}
	if periods := t.recentPeriodLengths(date); len(periods) > 0 {
		stats.AveragePeriodLength = meanInts(periods)
	}
	return stats
}

func meanInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0
	for _, v := range values {
		total += v
	}
	return float64(total) / float64(len(values))
}

func populationVariance(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := meanInts(values)
	variance := 0.0
	for _, v := range values {
		variance += math.Pow(float64(v)-mean, 2)
	}
	return variance / float64(len(values))
}

func medianInt(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return roundInt(float64(sorted[mid-1]+sorted[mid]) / 2)
}

func tailInts(values []int, n int) []int {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func roundInt(v float64) int {
	return int(math.Round(v))
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
