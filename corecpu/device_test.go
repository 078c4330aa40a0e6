package corecpu_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/corecpu"
	"github.com/cgminer-rs/cgominer/work"
)

func easyWork(t *testing.T) *work.Work {
	t.Helper()
	w, err := work.New(work.Params{
		JobID:           "J1",
		PoolID:          "pool-0",
		PrevHash:        make([]byte, 32),
		Coinbase1:       []byte{0x01},
		Coinbase2:       []byte{0x02},
		Version:         1,
		NBits:           0x207fffff, // regtest-style trivial difficulty
		NTime:           0x5e000000,
		Extranonce1:     []byte{0xaa, 0xbb},
		Extranonce2Size: 4,
		Difficulty:      1e-6,
	})
	require.NoError(t, err)
	return w
}

func TestDevice_LifecycleTransitions(t *testing.T) {
	d := corecpu.NewDevice("cpu-0", 0, 1, nil)
	ctx := context.Background()

	assert.Equal(t, core.StatusUninitialized, d.Status())

	require.NoError(t, d.Initialize(ctx, core.DeviceConfig{Algorithm: work.SHA256d}))
	assert.Equal(t, core.StatusIdle, d.Status())

	require.NoError(t, d.Start(ctx))
	assert.Equal(t, core.StatusRunning, d.Status())

	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, core.StatusIdle, d.Status())
}

func TestDevice_SubmitWorkRejectedWhenNotRunning(t *testing.T) {
	d := corecpu.NewDevice("cpu-0", 0, 1, nil)
	ctx := context.Background()
	require.NoError(t, d.Initialize(ctx, core.DeviceConfig{Algorithm: work.SHA256d}))

	err := d.SubmitWork(ctx, easyWork(t))
	var devErr *core.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, core.DeviceErrNotRunning, devErr.Kind)
}

func TestDevice_FindsShareOnTrivialDifficulty(t *testing.T) {
	d := corecpu.NewDevice("cpu-0", 0, 1, nil)
	ctx := context.Background()
	require.NoError(t, d.Initialize(ctx, core.DeviceConfig{Algorithm: work.SHA256d}))
	require.NoError(t, d.Start(ctx))
	defer d.Stop(ctx)

	require.NoError(t, d.SubmitWork(ctx, easyWork(t)))

	deadline := time.After(5 * time.Second)
	for {
		if r, ok := d.CollectResult(); ok {
			assert.True(t, r.MeetsTarget)
			return
		}
		select {
		case <-deadline:
			t.Fatal("no share found within timeout at trivial difficulty")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestDevice_HealthCheck(t *testing.T) {
	d := corecpu.NewDevice("cpu-0", 0, 1, nil)
	ctx := context.Background()
	require.NoError(t, d.Initialize(ctx, core.DeviceConfig{Algorithm: work.SHA256d}))
	assert.True(t, d.HealthCheck())

	require.NoError(t, d.Start(ctx))
	assert.True(t, d.HealthCheck())
	d.Stop(ctx)
}
