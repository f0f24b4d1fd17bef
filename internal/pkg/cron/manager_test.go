package cron

import (
	"Timeline/internal/api/config"
	"Timeline/internal/job"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(cfg config.CronConfig) *Manager {
	return NewCronManager(
		cfg,
		job.NewCounterReconcileJob(nil, job.CounterModeDirty),
		job.NewCounterReconcileJob(nil, job.CounterModeFull),
		job.NewFanoutSweepJob(nil),
		job.NewDeadLetterReplayJob(nil),
	)
}

func TestRegisterJobsSkipsEmptySpecs(t *testing.T) {
	mgr := newTestManager(config.CronConfig{
		CounterDirty: "0 * * * * *",
		FanoutSweep:  "30 * * * * *",
	})
	n, err := mgr.RegisterJobs()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, mgr.engine.Entries(), 2)
}

func TestRegisterJobsRejectsBadSpec(t *testing.T) {
	mgr := newTestManager(config.CronConfig{CounterFull: "every day"})
	_, err := mgr.RegisterJobs()
	require.ErrorContains(t, err, "counter_full")
}

func TestInitCronWithoutJobs(t *testing.T) {
	mgr := newTestManager(config.CronConfig{})
	require.NoError(t, InitCron(mgr))
	mgr.Stop()
}
