package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgminer-rs/cgominer/pool"
	"github.com/cgminer-rs/cgominer/work"
)

func TestManager_ConnectsAndReachesActive(t *testing.T) {
	addr, stop := scriptedServer(t, false)
	defer stop()

	m := pool.NewManager(pool.ManagerConfig{Strategy: pool.StrategyFailover}, func(*work.Work) {}, nil)
	m.AddPool(pool.Config{Name: "p1", URL: addr, User: "worker1", Priority: 0, Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, m.WaitActive(waitCtx))

	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		return len(snap) == 1 && snap[0].Active
	}, time.Second, 10*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, "p1", snap[0].Name)

	assert.NotNil(t, m.ClientByName("p1"))
	assert.Nil(t, m.ClientByName("does-not-exist"))
}

func TestManager_LoadBalanceWeightsByQuota(t *testing.T) {
	addrHeavy, stopHeavy := scriptedServer(t, false)
	defer stopHeavy()
	addrLight, stopLight := scriptedServer(t, false)
	defer stopLight()

	m := pool.NewManager(pool.ManagerConfig{
		Strategy:       pool.StrategyLoadBalance,
		SwitchCooldown: 10 * time.Millisecond,
	}, func(*work.Work) {}, nil)
	m.AddPool(pool.Config{Name: "heavy", URL: addrHeavy, User: "w1", Priority: 0, Enabled: true, Quota: 3})
	m.AddPool(pool.Config{Name: "light", URL: addrLight, User: "w2", Priority: 0, Enabled: true, Quota: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, m.WaitActive(waitCtx))

	counts := map[string]int{}
	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		for _, s := range m.Snapshot() {
			if s.Active {
				counts[s.Name]++
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	assert.Greater(t, counts["heavy"], counts["light"],
		"higher-quota pool should be selected as active more often under LoadBalance")
}

func TestManager_ShouldDispatch_RoundRobinAlwaysTrue(t *testing.T) {
	m := pool.NewManager(pool.ManagerConfig{Strategy: pool.StrategyRoundRobin}, func(*work.Work) {}, nil)
	m.AddPool(pool.Config{Name: "p1", Priority: 0, Enabled: true})
	m.AddPool(pool.Config{Name: "p2", Priority: 1, Enabled: true})

	assert.True(t, m.ShouldDispatch("p1"))
	assert.True(t, m.ShouldDispatch("p2"))
	assert.True(t, m.ShouldDispatch("does-not-exist"))
}

func TestManager_ShouldDispatch_FailoverOnlyActivePool(t *testing.T) {
	addr, stop := scriptedServer(t, false)
	defer stop()

	m := pool.NewManager(pool.ManagerConfig{Strategy: pool.StrategyFailover}, func(*work.Work) {}, nil)
	m.AddPool(pool.Config{Name: "p1", URL: addr, User: "w1", Priority: 0, Enabled: true})
	m.AddPool(pool.Config{Name: "p2", Priority: 1, Enabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, m.WaitActive(waitCtx))

	require.Eventually(t, func() bool {
		return m.ShouldDispatch("p1")
	}, time.Second, 10*time.Millisecond)
	assert.False(t, m.ShouldDispatch("p2"))
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, pool.StrategyLoadBalance, pool.ParseStrategy("load_balance"))
	assert.Equal(t, pool.StrategyRoundRobin, pool.ParseStrategy("round_robin"))
	assert.Equal(t, pool.StrategyFailover, pool.ParseStrategy("failover"))
	assert.Equal(t, pool.StrategyFailover, pool.ParseStrategy("unknown"))
}
