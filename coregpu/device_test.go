package coregpu_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/coregpu"
	"github.com/cgminer-rs/cgominer/work"
)

func newEasyWork(t *testing.T, jobID string) *work.Work {
	t.Helper()
	w, err := work.New(work.Params{
		JobID:           jobID,
		PoolID:          "pool-0",
		PrevHash:        make([]byte, 32),
		Coinbase1:       []byte{0x01},
		Coinbase2:       []byte{0x02},
		NBits:           0x207fffff,
		Extranonce1:     []byte{0xaa},
		Extranonce2Size: 4,
		Difficulty:      1,
	})
	require.NoError(t, err)
	return w
}

func TestDevice_FindsResultAgainstEasyTarget(t *testing.T) {
	dev := coregpu.NewDevice("gpu-0", 0, 1, nil)

	ctx := context.Background()
	require.NoError(t, dev.Initialize(ctx, core.DeviceConfig{Algorithm: work.SHA256d}))
	require.NoError(t, dev.Start(ctx))
	defer dev.Stop(ctx)

	require.NoError(t, dev.SubmitWork(ctx, newEasyWork(t, "job-1")))

	require.Eventually(t, func() bool {
		_, ok := dev.CollectResult()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDevice_RejectsExpiredWork(t *testing.T) {
	dev := coregpu.NewDevice("gpu-0", 0, 1, nil)

	ctx := context.Background()
	require.NoError(t, dev.Initialize(ctx, core.DeviceConfig{}))
	require.NoError(t, dev.Start(ctx))
	defer dev.Stop(ctx)

	w := newEasyWork(t, "job-1")
	w.ExpiresAt = time.Now().Add(-time.Second)

	err := dev.SubmitWork(ctx, w)
	require.Error(t, err)
}
