package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/consignments/internal/config"
)

type fakeExporter struct {
	calls int
	err   error
}

func (f *fakeExporter) ExportPreviousMonth(ctx context.Context) (int, error) {
	f.calls++
	return 3, f.err
}

type fakeSweeper struct {
	maxIdle time.Duration
}

func (f *fakeSweeper) SweepIdle(maxIdle time.Duration) int {
	f.maxIdle = maxIdle
	return 1
}

func testConfig(schedule string) config.Config {
	return config.Config{
		Auth:      config.AuthConfig{IdleTimeout: 30 * time.Minute},
		Reporting: config.ReportingConfig{CronSchedule: schedule},
	}
}

func TestStartRegistersJobs(t *testing.T) {
	s := NewScheduler(testConfig("0 6 1 * *"), &fakeExporter{}, &fakeSweeper{}, time.UTC, nil)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 2)
}

func TestStartWithoutExporter(t *testing.T) {
	s := NewScheduler(testConfig("0 6 1 * *"), nil, &fakeSweeper{}, nil, nil)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.cron.Entries(), 1)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(testConfig("every month"), &fakeExporter{}, &fakeSweeper{}, time.UTC, nil)

	assert.Error(t, s.Start())
}

func TestJobsCallCollaborators(t *testing.T) {
	exporter := &fakeExporter{}
	sweeper := &fakeSweeper{}
	s := NewScheduler(testConfig("0 6 1 * *"), exporter, sweeper, time.UTC, nil)

	s.exportAccounts()
	s.sweepIdle()

	assert.Equal(t, 1, exporter.calls)
	assert.Equal(t, 30*time.Minute, sweeper.maxIdle)

	exporter.err = errors.New("quota")
	s.exportAccounts()
	assert.Equal(t, 2, exporter.calls)
}
