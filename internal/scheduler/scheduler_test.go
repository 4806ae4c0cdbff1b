package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFiresRefresh(t *testing.T) {
	var ticks atomic.Int32
	s, err := New(nil, time.UTC, Jobs{RefreshInterval: 20 * time.Millisecond}, func(ctx context.Context, trigger string) error {
		if trigger == TriggerWidgetTick {
			ticks.Add(1)
		}
		return nil
	})
	require.NoError(t, err)
	s.Start()
	defer s.Shutdown()

	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerNextRolloverIsMidnight(t *testing.T) {
	// Etc/GMT-2 is two hours east of UTC.
	loc, err := time.LoadLocation("Etc/GMT-2")
	require.NoError(t, err)
	s, err := New(nil, loc, Jobs{RolloverCron: "0 0 * * *"}, func(context.Context, string) error { return nil })
	require.NoError(t, err)
	s.Start()
	defer s.Shutdown()

	var next time.Time
	require.Eventually(t, func() bool {
		n, err := s.NextRollover()
		next = n
		return err == nil && !n.IsZero()
	}, 2*time.Second, 10*time.Millisecond)
	local := next.In(loc)
	assert.Equal(t, 0, local.Hour())
	assert.Equal(t, 0, local.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestSchedulerRejectsFixedZone(t *testing.T) {
	_, err := New(nil, time.FixedZone("UTC+2", 2*3600), Jobs{RolloverCron: "0 0 * * *"}, func(context.Context, string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTC+2")
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	_, err := New(nil, time.UTC, Jobs{RolloverCron: "not a cron"}, func(context.Context, string) error { return nil })
	assert.Error(t, err)
}

func TestSchedulerRequiresFire(t *testing.T) {
	_, err := New(nil, time.UTC, Jobs{}, nil)
	assert.Error(t, err)
}

func TestSchedulerWithoutRollover(t *testing.T) {
	s, err := New(nil, time.UTC, Jobs{}, func(context.Context, string) error { return nil })
	require.NoError(t, err)
	defer s.Shutdown()
	_, err = s.NextRollover()
	assert.Error(t, err)
}
