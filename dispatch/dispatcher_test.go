package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/dispatch"
	"github.com/cgminer-rs/cgominer/work"
)

type fakeDevice struct {
	id        string
	status    core.DeviceStatus
	healthy   bool
	submitted []*work.Work
	rejectErr error
}

func (d *fakeDevice) SubmitWork(ctx context.Context, w *work.Work) error {
	if d.rejectErr != nil {
		return d.rejectErr
	}
	d.submitted = append(d.submitted, w)
	return nil
}
func (d *fakeDevice) Status() core.DeviceStatus { return d.status }
func (d *fakeDevice) HealthCheck() bool         { return d.healthy }
func (d *fakeDevice) Info() core.DeviceInfo     { return core.DeviceInfo{ID: d.id} }

func newWork(t *testing.T, jobID, poolID string, cleanJobs bool) *work.Work {
	t.Helper()
	w, err := work.New(work.Params{
		JobID:           jobID,
		PoolID:          poolID,
		PrevHash:        make([]byte, 32),
		Coinbase1:       []byte{0x01},
		Coinbase2:       []byte{0x02},
		NBits:           0x207fffff,
		Extranonce1:     []byte{0xaa},
		Extranonce2Size: 4,
		Difficulty:      1,
		CleanJobs:       cleanJobs,
	})
	require.NoError(t, err)
	return w
}

func TestDispatcher_DispatchesToHealthyRunningDevices(t *testing.T) {
	d := dispatch.New(0, nil)
	dev := &fakeDevice{id: "dev-0", status: core.StatusRunning, healthy: true}
	d.RegisterDevice(dev)

	w := newWork(t, "job-1", "pool-0", false)
	d.Dispatch(context.Background(), w)

	require.Len(t, dev.submitted, 1)
	assert.Equal(t, "job-1", dev.submitted[0].JobID)
	assert.Equal(t, uint64(1), d.Stats().Dispatched)
}

func TestDispatcher_SkipsUnhealthyOrNonRunningDevices(t *testing.T) {
	d := dispatch.New(0, nil)
	stopped := &fakeDevice{id: "dev-0", status: core.StatusIdle, healthy: true}
	unhealthy := &fakeDevice{id: "dev-1", status: core.StatusRunning, healthy: false}
	d.RegisterDevice(stopped)
	d.RegisterDevice(unhealthy)

	d.Dispatch(context.Background(), newWork(t, "job-1", "pool-0", false))

	assert.Empty(t, stopped.submitted)
	assert.Empty(t, unhealthy.submitted)
}

func TestDispatcher_CountsDroppedOnRejection(t *testing.T) {
	d := dispatch.New(0, nil)
	dev := &fakeDevice{id: "dev-0", status: core.StatusRunning, healthy: true, rejectErr: assert.AnError}
	d.RegisterDevice(dev)

	d.Dispatch(context.Background(), newWork(t, "job-1", "pool-0", false))

	assert.Equal(t, uint64(1), d.Stats().Dropped)
	assert.Equal(t, uint64(0), d.Stats().Dispatched)
}

func TestDispatcher_CleanJobsFencesPriorJobsFromThatPool(t *testing.T) {
	d := dispatch.New(0, nil)
	dev := &fakeDevice{id: "dev-0", status: core.StatusRunning, healthy: true}
	d.RegisterDevice(dev)

	first := newWork(t, "job-1", "pool-0", false)
	d.Dispatch(context.Background(), first)
	_, ok := d.LookupActiveJob("job-1")
	require.True(t, ok)

	second := newWork(t, "job-2", "pool-0", true)
	d.Dispatch(context.Background(), second)

	_, ok = d.LookupActiveJob("job-1")
	assert.False(t, ok, "clean_jobs must fence out the prior job from the same pool")
	_, ok = d.LookupActiveJob("job-2")
	assert.True(t, ok)
}

func TestDispatcher_LookupActiveJobMissingReturnsFalse(t *testing.T) {
	d := dispatch.New(0, nil)
	_, ok := d.LookupActiveJob("does-not-exist")
	assert.False(t, ok)
}

func TestDispatcher_PruneExpiredRemovesOnlyExpiredEntries(t *testing.T) {
	d := dispatch.New(0, nil)
	w := newWork(t, "job-1", "pool-0", false)
	d.Dispatch(context.Background(), w)

	// Mutate the stored Work (the active-job table holds the same
	// pointer) to simulate it having aged past expiry.
	w.ExpiresAt = time.Now().Add(-time.Second)

	pruned := d.PruneExpired()
	assert.Equal(t, 1, pruned)
	_, ok := d.LookupActiveJob("job-1")
	assert.False(t, ok)
}

func TestDispatcher_AssignsDistinctExtranonce2SeedsPerDevice(t *testing.T) {
	d := dispatch.New(0, nil)
	devA := &fakeDevice{id: "dev-0", status: core.StatusRunning, healthy: true}
	devB := &fakeDevice{id: "dev-1", status: core.StatusRunning, healthy: true}
	d.RegisterDevice(devA)
	d.RegisterDevice(devB)

	d.Dispatch(context.Background(), newWork(t, "job-1", "pool-0", false))

	require.Len(t, devA.submitted, 1)
	require.Len(t, devB.submitted, 1)
	assert.NotEqual(t, devA.submitted[0].StartExtranonce2, devB.submitted[0].StartExtranonce2,
		"devices mining the same job must search distinct extranonce2 lanes")
}

func TestDispatcher_UnregisterDeviceStopsDispatch(t *testing.T) {
	d := dispatch.New(0, nil)
	dev := &fakeDevice{id: "dev-0", status: core.StatusRunning, healthy: true}
	d.RegisterDevice(dev)
	d.UnregisterDevice("dev-0")

	d.Dispatch(context.Background(), newWork(t, "job-1", "pool-0", false))
	assert.Empty(t, dev.submitted)
}
