package snapshot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/cycle-engine/internal/models"
)

func snap(id string, seq uint64, at time.Time, corr int) models.Snapshot {
	s := models.Snapshot{
		PassID:     id,
		Seq:        seq,
		ComputedAt: at,
		Prediction: models.PredictionResult{ComputedAt: at, Phase: models.PhaseLuteal},
	}
	for i := 0; i < corr; i++ {
		s.Correlations = append(s.Correlations, models.Correlation{FactorA: models.SymptomAcne, SampleSize: corr})
	}
	return s
}

func TestStoreEmpty(t *testing.T) {
	_, ok := NewStore().Current()
	assert.False(t, ok)
}

func TestStoreRejectsStale(t *testing.T) {
	st := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.Publish(snap("second", 2, now, 0)))
	assert.ErrorIs(t, st.Publish(snap("first", 1, now, 0)), ErrStaleSnapshot)
	assert.ErrorIs(t, st.Publish(snap("replay", 2, now, 0)), ErrStaleSnapshot)
	require.NoError(t, st.Publish(snap("third", 3, now, 0)))

	cur, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, "third", cur.PassID)
}

func TestStoreAcceptsLaterPassWhenClockStepsBack(t *testing.T) {
	st := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.Publish(snap("before-ntp", 1, now, 0)))
	require.NoError(t, st.Publish(snap("after-ntp", 2, now.Add(-90*time.Second), 0)))

	cur, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, "after-ntp", cur.PassID)
}

func TestStoreCurrentIsACopy(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.Publish(snap("a", 1, time.Now(), 2)))

	cur, _ := st.Current()
	cur.Correlations[0].Strength = 42

	again, _ := st.Current()
	assert.Zero(t, again.Correlations[0].Strength)
}

func TestStoreReadersSeeWholePasses(t *testing.T) {
	st := NewStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.Publish(snap("p0", 1, base, 0)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			_ = st.Publish(snap(fmt.Sprintf("p%d", i), uint64(i+1), base.Add(time.Duration(i)*time.Second), i%7))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				cur, ok := st.Current()
				if !ok {
					continue
				}
				assert.Equal(t, cur.ComputedAt, cur.Prediction.ComputedAt)
				for _, c := range cur.Correlations {
					assert.Equal(t, len(cur.Correlations), c.SampleSize)
				}
			}
		}()
	}
	wg.Wait()

	cur, _ := st.Current()
	assert.Equal(t, "p200", cur.PassID)
}

func TestStoreNotifiesListeners(t *testing.T) {
	st := NewStore()
	var seen []string
	st.Subscribe(func(s models.Snapshot) { seen = append(seen, s.PassID) })

	require.NoError(t, st.Publish(snap("a", 2, time.Unix(10, 0), 0)))
	require.Error(t, st.Publish(snap("b", 1, time.Unix(20, 0), 0)))
	require.NoError(t, st.Publish(snap("c", 3, time.Unix(5, 0), 0)))

	assert.Equal(t, []string{"a", "c"}, seen)
}
