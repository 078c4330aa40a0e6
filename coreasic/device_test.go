package coreasic_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/coreasic"
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
		NBits:           0x207fffff, // lowest-difficulty regtest target: about half of all nonces qualify
		Extranonce1:     []byte{0xaa},
		Extranonce2Size: 4,
		Difficulty:      1,
	})
	require.NoError(t, err)
	return w
}

func TestDevice_FindsResultAgainstEasyTarget(t *testing.T) {
	hw := coreasic.NewSimulatedHardware()
	chain := coreasic.NewChain(0, hw)
	dev := coreasic.NewDevice("chain-0", chain, nil)

	ctx := context.Background()
	require.NoError(t, dev.Initialize(ctx, core.DeviceConfig{}))
	require.NoError(t, dev.Start(ctx))
	defer dev.Stop(ctx)

	require.NoError(t, dev.SubmitWork(ctx, newEasyWork(t, "job-1")))

	require.Eventually(t, func() bool {
		_, ok := dev.CollectResult()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDevice_HealthCheckReflectsLifecycle(t *testing.T) {
	hw := coreasic.NewSimulatedHardware()
	chain := coreasic.NewChain(0, hw)
	dev := coreasic.NewDevice("chain-0", chain, nil)

	ctx := context.Background()
	require.False(t, dev.HealthCheck(), "uninitialized device must not report healthy")

	require.NoError(t, dev.Initialize(ctx, core.DeviceConfig{}))
	require.True(t, dev.HealthCheck())

	require.NoError(t, dev.Start(ctx))
	require.True(t, dev.HealthCheck())

	require.NoError(t, dev.Stop(ctx))
	require.True(t, dev.HealthCheck())
}

func TestDevice_RecordAccessorsIncrementStats(t *testing.T) {
	hw := coreasic.NewSimulatedHardware()
	chain := coreasic.NewChain(0, hw)
	dev := coreasic.NewDevice("chain-0", chain, nil)

	dev.RecordAccepted()
	dev.RecordRejected()
	dev.RecordStale()
	dev.RecordHardwareError()

	stats := dev.Stats()
	require.Equal(t, uint64(1), stats.AcceptedShares)
	require.Equal(t, uint64(1), stats.RejectedShares)
	require.Equal(t, uint64(1), stats.StaleShares)
	require.Equal(t, uint64(1), stats.HardwareErrors)
}
