package job

import (
	"Timeline/internal/pkg/consts"
	"Timeline/internal/pkg/testutil"
	"Timeline/internal/service"
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFanout struct {
	service.FanoutService
	sweeps atomic.Int32
}

func (f *countingFanout) Sweep(context.Context) (int, error) {
	f.sweeps.Add(1)
	return 0, nil
}

type countingCounter struct {
	service.CounterService
	dirty atomic.Int32
	full  atomic.Int32
}

func (c *countingCounter) ReconcileDirty(context.Context) (int, error) {
	c.dirty.Add(1)
	return 1, nil
}

func (c *countingCounter) ReconcileAll(context.Context) (int, error) {
	c.full.Add(1)
	return 3, nil
}

func TestJobRunsAndReleasesLock(t *testing.T) {
	mr := testutil.NewTestRedis(t)
	fanout := &countingFanout{}
	job := NewFanoutSweepJob(fanout)

	job.Run()
	job.Run()
	assert.EqualValues(t, 2, fanout.sweeps.Load())
	assert.False(t, mr.Exists(consts.FanoutSweepLock))
}

func TestJobSkipsWhenLockHeld(t *testing.T) {
	mr := testutil.NewTestRedis(t)
	require.NoError(t, mr.Set(consts.FanoutSweepLock, "other-instance"))

	fanout := &countingFanout{}
	NewFanoutSweepJob(fanout).Run()
	assert.Zero(t, fanout.sweeps.Load())

	got, err := mr.Get(consts.FanoutSweepLock)
	require.NoError(t, err)
	assert.Equal(t, "other-instance", got)
}

func TestCounterJobModes(t *testing.T) {
	testutil.NewTestRedis(t)
	counter := &countingCounter{}

	NewCounterReconcileJob(counter, CounterModeDirty).Run()
	NewCounterReconcileJob(counter, CounterModeFull).Run()
	assert.EqualValues(t, 1, counter.dirty.Load())
	assert.EqualValues(t, 1, counter.full.Load())
}
