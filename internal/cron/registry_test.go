package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string                     { return string(n) }
func (n namedJob) Run(context.Context) (int, error) { return 0, nil }

func TestScheduleRejectsInvalidJobs(t *testing.T) {
	s := NewSchedule()
	require.Error(t, s.Add(nil, time.Minute))
	require.Error(t, s.Add(namedJob(" "), time.Minute))
	require.Error(t, s.Add(namedJob("retention"), 0))
	require.NoError(t, s.Add(namedJob("retention"), time.Hour))
	require.ErrorContains(t, s.Add(namedJob("retention"), time.Minute), "already scheduled")
	require.Equal(t, []string{"retention"}, s.Names())
}

func TestScheduleDueHonoursEachCadence(t *testing.T) {
	s := NewSchedule()
	require.NoError(t, s.Add(namedJob("stale"), time.Minute))
	require.NoError(t, s.Add(namedJob("retention"), time.Hour))
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, []Job{namedJob("stale"), namedJob("retention")}, s.Due(start))
	require.Empty(t, s.Due(start.Add(30*time.Second)))
	require.Equal(t, []Job{namedJob("stale")}, s.Due(start.Add(time.Minute)))
	require.Equal(t, []Job{namedJob("stale"), namedJob("retention")}, s.Due(start.Add(time.Hour+time.Second)))
}
