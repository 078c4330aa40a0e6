package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/work"
)

// Strategy selects how the manager picks an active pool among the
// healthy candidates.
type Strategy int

const (
	StrategyFailover Strategy = iota
	StrategyLoadBalance
	StrategyRoundRobin
)

func ParseStrategy(s string) Strategy {
	switch s {
	case "load_balance":
		return StrategyLoadBalance
	case "round_robin":
		return StrategyRoundRobin
	default:
		return StrategyFailover
	}
}

// DefaultSwitchCooldown bounds how often LoadBalance re-weighs and
// rotates the active pool, so a flapping pool doesn't thrash the
// active selection.
const DefaultSwitchCooldown = 2 * time.Minute

// managedPool bundles one Client with its scheduling metadata.
type managedPool struct {
	client   *Client
	name     string
	priority int
	quota    int
	demoted  bool
	consecutiveFailures int
	lastFailureWindow   time.Time

	// wrrCurrent is the smooth-weighted-round-robin accumulator used by
	// LoadBalance: it grows by quota every rotation and is drained by
	// the total candidate weight whenever this pool is picked, so over
	// many rotations each pool is chosen proportional to its quota.
	wrrCurrent int
}

// Manager owns a fleet of pool Clients and picks which one is active
// per the configured Strategy: Failover demotes on repeated
// disconnects, LoadBalance rotates by quota-weighted round robin, and
// RoundRobin rotates evenly.
type Manager struct {
	mu       sync.RWMutex
	strategy Strategy

	pools []*managedPool

	failoverTimeout time.Duration
	switchCooldown  time.Duration

	active       int // index into pools
	lastSwitchAt time.Time
	rrCounter    int

	onWork func(*work.Work)

	log logrus.FieldLogger
}

// ManagerConfig configures pool policy.
type ManagerConfig struct {
	Strategy        Strategy
	FailoverTimeout time.Duration
	SwitchCooldown  time.Duration
}

// NewManager builds a Manager with no pools yet; AddPool registers
// each configured endpoint.
func NewManager(cfg ManagerConfig, onWork func(*work.Work), log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.FailoverTimeout <= 0 {
		cfg.FailoverTimeout = 30 * time.Second
	}
	if cfg.SwitchCooldown <= 0 {
		cfg.SwitchCooldown = DefaultSwitchCooldown
	}

	return &Manager{
		strategy:        cfg.Strategy,
		failoverTimeout: cfg.FailoverTimeout,
		switchCooldown:  cfg.SwitchCooldown,
		onWork:          onWork,
		log:             log,
		active:          -1,
	}
}

// AddPool registers a configured pool endpoint. Pools are kept sorted
// by ascending priority (1 = highest).
func (m *Manager) AddPool(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client := NewClient(cfg, m.onWork, m.log)
	m.pools = append(m.pools, &managedPool{
		client:   client,
		name:     cfg.Name,
		priority: cfg.Priority,
		quota:    cfg.Quota,
	})
	sort.SliceStable(m.pools, func(i, j int) bool {
		return m.pools[i].priority < m.pools[j].priority
	})
}

// Run connects every enabled pool concurrently and blocks until every
// pool client has stopped: when ctx is canceled, or earlier if every
// client has ended with a fatal handshake failure (Run then returns
// nil). Startup succeeds as soon as at least one pool reaches Active.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.RLock()
	pools := append([]*managedPool(nil), m.pools...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range pools {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.client.Run(ctx); err != nil && ctx.Err() == nil {
				m.log.WithField("pool", p.name).WithError(err).
					Error("pool client terminated")
			}
		}()
	}

	go m.evaluateLoop(ctx)

	wg.Wait()
	return ctx.Err()
}

// WaitActive blocks until at least one pool reaches Active or ctx is
// done, per the coordinator's startup requirement.
func (m *Manager) WaitActive(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.AnyActive() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) AnyActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pools {
		if p.client.State() == StateActive {
			return true
		}
	}
	return false
}

func (m *Manager) evaluateLoop(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evaluate()
		}
	}
}

// evaluate runs the active-pool selection policy. It is safe to call
// on every tick; auto-switch is itself cooldown-gated.
func (m *Manager) evaluate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.strategy {
	case StrategyFailover:
		m.evaluateFailoverLocked()
	case StrategyLoadBalance:
		m.evaluateLoadBalanceLocked()
	case StrategyRoundRobin:
		// Rotation is driven by ActivePoolForSubmit, not by a timer.
	}
}

func (m *Manager) evaluateFailoverLocked() {
	// Demote pools with excessive consecutive disconnects within the
	// failover window; promote the highest-priority healthy pool.
	for _, p := range m.pools {
		if p.client.Stats().Disconnects > 3 && time.Since(p.lastFailureWindow) < m.failoverTimeout {
			p.demoted = true
		}
	}

	for i, p := range m.pools {
		if !p.demoted && p.client.State() == StateActive {
			if m.active != i {
				m.switchTo(i)
			}
			return
		}
	}

	// All healthy pools exhausted: clear demotions and retry from the
	// top, allowing backoff-recovered pools back in.
	for _, p := range m.pools {
		p.demoted = false
	}
}

// evaluateLoadBalanceLocked implements weighted round-robin by quota:
// every non-demoted Active pool is a candidate, and the candidate
// picked to become (or remain) the dispatch source is chosen by a
// smooth weighted round-robin over quota, so that over many rotations
// each pool serves as the active source proportional to its quota.
// Ties (equal accumulator value, e.g. equal quotas) are broken by
// whichever candidate has handled fewer shares recently, per the
// dispatcher fairness rule. Rotation is paced by switchCooldown so a
// flapping pool can't thrash the active selection.
func (m *Manager) evaluateLoadBalanceLocked() {
	if time.Since(m.lastSwitchAt) < m.switchCooldown {
		return
	}

	var candidates []int
	for i, p := range m.pools {
		if !p.demoted && p.client.State() == StateActive {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return
	}
	if len(candidates) == 1 {
		if m.active != candidates[0] {
			m.switchTo(candidates[0])
		}
		return
	}

	totalWeight := 0
	for _, i := range candidates {
		weight := m.pools[i].quota
		if weight <= 0 {
			weight = 1
		}
		m.pools[i].wrrCurrent += weight
		totalWeight += weight
	}

	best := candidates[0]
	for _, i := range candidates[1:] {
		switch {
		case m.pools[i].wrrCurrent > m.pools[best].wrrCurrent:
			best = i
		case m.pools[i].wrrCurrent == m.pools[best].wrrCurrent:
			if recentShares(m.pools[i].client.Stats()) < recentShares(m.pools[best].client.Stats()) {
				best = i
			}
		}
	}
	m.pools[best].wrrCurrent -= totalWeight

	if best != m.active {
		m.switchTo(best)
	}
}

// recentShares is the tiebreaker metric for weighted round-robin: the
// total shares a pool has handled so far.
func recentShares(s Stats) uint64 {
	return s.Accepted + s.Rejected + s.Stale
}

func (m *Manager) switchTo(idx int) {
	m.active = idx
	m.lastSwitchAt = time.Now()
	m.log.WithField("pool", m.pools[idx].name).Info("switched active pool")
}

// ActivePoolForSubmit returns the Client a freshly found share should
// be submitted to: for Failover/LoadBalance this is the current
// active pool; for RoundRobin it rotates on every call.
func (m *Manager) ActivePoolForSubmit() *Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pools) == 0 {
		return nil
	}

	if m.strategy == StrategyRoundRobin {
		for i := 0; i < len(m.pools); i++ {
			idx := (m.rrCounter + i) % len(m.pools)
			if m.pools[idx].client.State() == StateActive {
				m.rrCounter = idx + 1
				return m.pools[idx].client
			}
		}
		return nil
	}

	if m.active >= 0 && m.active < len(m.pools) {
		return m.pools[m.active].client
	}
	for _, p := range m.pools {
		if p.client.State() == StateActive {
			return p.client
		}
	}
	return nil
}

// ShouldDispatch reports whether Work originating from poolName should
// currently be handed to devices. Under RoundRobin every pool's jobs
// legitimately flow through, interleaved at submit time. Under
// Failover/LoadBalance only the current active pool sources jobs, so
// a demoted/non-active pool's jobs are dropped at the dispatcher gate
// rather than mined and then discarded at share-submit time.
func (m *Manager) ShouldDispatch(poolName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.strategy == StrategyRoundRobin {
		return true
	}
	if m.active < 0 || m.active >= len(m.pools) {
		return false
	}
	return m.pools[m.active].name == poolName
}

// ClientByName looks up a pool's Client by its originating name, so
// the collector can route a share back to the pool that issued the
// underlying job rather than whichever pool is currently active.
func (m *Manager) ClientByName(name string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pools {
		if p.name == name {
			return p.client
		}
	}
	return nil
}

// Snapshot returns the name and state of every configured pool.
func (m *Manager) Snapshot() []PoolStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PoolStatus, 0, len(m.pools))
	for i, p := range m.pools {
		out = append(out, PoolStatus{
			Name:    p.name,
			State:   p.client.State(),
			Active:  i == m.active,
			Demoted: p.demoted,
			Stats:   p.client.Stats(),
		})
	}
	return out
}

// PoolStatus is a point-in-time view of one configured pool.
type PoolStatus struct {
	Name    string
	State   State
	Active  bool
	Demoted bool
	Stats   Stats
}
