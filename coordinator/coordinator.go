// Package coordinator owns the composed mining system: it creates
// cores via the registry, connects the pool fleet, wires the
// dispatcher and collector together, and exposes the lifecycle and
// stats surface the outer process (cmd/cgominerd) drives.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cgminer-rs/cgominer/collector"
	"github.com/cgminer-rs/cgominer/config"
	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/dispatch"
	"github.com/cgminer-rs/cgominer/hashmeter"
	"github.com/cgminer-rs/cgominer/pool"
	"github.com/cgminer-rs/cgominer/work"
)

// State is the coordinator's global lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	defaultPoolActiveTimeout   = 30 * time.Second
	defaultSubsystemStopBudget = 10 * time.Second
	maxDeviceRestartAttempts   = 3
)

// Coordinator composes the registry, dispatcher, collector and pool
// manager into one system with a single start/stop lifecycle.
type Coordinator struct {
	cfg *config.Config

	registry   *core.Registry
	dispatcher *dispatch.Dispatcher
	collector  *collector.Collector
	pools      *pool.Manager
	meters     *hashmeter.Aggregator
	bus        *EventBus

	log logrus.FieldLogger

	mu        sync.RWMutex
	state     State
	errMsg    string
	startedAt time.Time

	handles []core.Handle
	devices map[string]core.MiningDevice

	paused atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	restartMu       sync.Mutex
	restartAttempts map[string]int
}

// New builds a Coordinator. cfg must already pass config.Validate.
func New(cfg *config.Config, registry *core.Registry, log logrus.FieldLogger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}

	c := &Coordinator{
		cfg:             cfg,
		registry:        registry,
		bus:             NewEventBus(),
		log:             log,
		devices:         make(map[string]core.MiningDevice),
		restartAttempts: make(map[string]int),
	}

	c.dispatcher = dispatch.New(dispatch.DefaultActiveJobCapacity, log.WithField("component", "dispatch"))
	c.collector = collector.NewCollector(collector.Config{
		WindowSize: collector.DefaultWindowSize,
		WindowAge:  collector.DefaultWindowAge,
	}, c.dispatcher.LookupActiveJob, c.submitterForPool, log.WithField("component", "collector"))

	c.pools = pool.NewManager(pool.ManagerConfig{
		Strategy:        pool.ParseStrategy(cfg.Pools.Strategy),
		FailoverTimeout: cfg.Pools.FailoverTimeout.Std(),
	}, c.handleWork, log.WithField("component", "pool"))

	return c
}

func (c *Coordinator) submitterForPool(poolID string) collector.ShareSubmitter {
	client := c.pools.ClientByName(poolID)
	if client == nil {
		return nil
	}
	return client
}

// handleWork is the pool manager's onWork callback. Under
// Failover/LoadBalance only the currently active pool's jobs reach
// devices, so a demoted pool's work is never mined after the switch;
// RoundRobin lets every pool's jobs flow through and interleaves at
// submit time instead.
func (c *Coordinator) handleWork(w *work.Work) {
	if c.paused.Load() {
		return
	}
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel == nil {
		return
	}
	if !c.pools.ShouldDispatch(w.PoolID) {
		return
	}
	c.dispatcher.Dispatch(context.Background(), w)
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) fail(err error) {
	c.mu.Lock()
	c.state = StateError
	c.errMsg = err.Error()
	c.mu.Unlock()
	c.bus.Publish(Event{Kind: EventAlert, Severity: SeverityCritical, Message: err.Error()})
}

// Start runs the full startup sequence: init monitoring, create and
// initialize cores (and their devices), connect pools (tolerating
// partial pool failure as long as one reaches Active), start the
// dispatcher and collector loops, then transition to Running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped && c.state != StateError {
		s := c.state
		c.mu.Unlock()
		return fmt.Errorf("coordinator: start invalid from state %s", s)
	}
	c.state = StateStarting
	c.mu.Unlock()

	c.meters = hashmeter.NewAggregator()
	c.startedAt = time.Now()

	runCtx, cancel := context.WithCancel(context.Background())

	if err := c.startCores(runCtx); err != nil {
		cancel()
		c.fail(err)
		return err
	}

	c.connectPools(runCtx)

	waitCtx, waitCancel := context.WithTimeout(runCtx, defaultPoolActiveTimeout)
	err := c.pools.WaitActive(waitCtx)
	waitCancel()
	if err != nil {
		cancel()
		werr := fmt.Errorf("coordinator: no pool reached active state: %w", err)
		c.fail(werr)
		return werr
	}

	for _, h := range c.handles {
		if err := h.Core().Start(runCtx); err != nil {
			c.bus.Publish(Event{Kind: EventAlert, Severity: SeverityError, DeviceID: h.Name(), Message: err.Error()})
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatcher.RunPruneLoop(runCtx, c.scanInterval())
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.collector.Run(runCtx, c.onCollected)
	}()

	for id, d := range c.devices {
		c.wg.Add(1)
		go c.pollDevice(runCtx, id, d)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.state = StateRunning
	c.mu.Unlock()

	return nil
}

func (c *Coordinator) scanInterval() time.Duration {
	if d := c.cfg.General.ScanTime.Std(); d > 0 {
		return d
	}
	return time.Second
}

// startCores creates and initializes one core per enabled backend in
// parallel; an error from any backend aborts the whole start.
func (c *Coordinator) startCores(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, backend := range c.cfg.Cores.EnabledCores {
		backend := backend
		g.Go(func() error {
			coreCfg := c.buildCoreConfig(backend)
			handle, err := c.registry.Create(gctx, backend, coreCfg)
			if err != nil {
				return fmt.Errorf("coordinator: core %s: %w", backend, err)
			}
			mu.Lock()
			c.handles = append(c.handles, handle)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if len(c.handles) == 0 {
		return fmt.Errorf("coordinator: no cores configured")
	}

	for _, h := range c.handles {
		for _, d := range h.Core().Devices() {
			id := d.Info().ID
			c.devices[id] = d
			c.dispatcher.RegisterDevice(d)
		}
	}
	return nil
}

func (c *Coordinator) buildCoreConfig(backend string) core.CoreConfig {
	bc := c.cfg.Cores.Backends[backend]
	algo, _ := work.ParseAlgorithm(bc.Algorithm)
	if algo == "" {
		algo = work.SHA256d
	}
	deviceCount := bc.DeviceCount
	if deviceCount <= 0 {
		deviceCount = 1
	}
	extra := bc.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extra["cpu_affinity_strategy"] = bc.CPUAffinity.Strategy

	return core.CoreConfig{
		Name:        backend,
		DeviceCount: deviceCount,
		BatchSize:   bc.BatchSize,
		Algorithm:   algo,
		Extra:       extra,
	}
}

func (c *Coordinator) connectPools(ctx context.Context) {
	for _, p := range c.cfg.Pools.Pools {
		if !p.Enabled {
			continue
		}
		c.pools.AddPool(pool.Config{
			Name:           p.URL,
			URL:            stripStratumScheme(p.URL),
			User:           p.User,
			Password:       p.Password,
			Priority:       p.Priority,
			Quota:          p.Quota,
			Enabled:        p.Enabled,
			KeepaliveEvery: pool.DefaultKeepaliveInterval,
			RetryInterval:  c.cfg.Pools.RetryInterval.Std(),
		})
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.pools.Run(ctx); err != nil {
			c.log.WithError(err).Warn("pool manager exited")
		}
	}()
}

func stripStratumScheme(url string) string {
	const prefix = "stratum+tcp://"
	if len(url) >= len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):]
	}
	return url
}

func (c *Coordinator) pollDevice(ctx context.Context, id string, d core.MiningDevice) {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				r, ok := d.CollectResult()
				if !ok {
					break
				}
				c.meters.Device(id).Sample(d.Stats().TotalResults)
				c.bus.Publish(Event{Kind: EventShareFound, DeviceID: id, JobID: r.JobID})
				if !c.collector.Submit(collector.Pending{DeviceID: id, Device: d, Result: *r}) {
					c.log.WithField("device", id).Warn("collector queue full, dropping result")
				}
			}
		}
	}
}

func (c *Coordinator) onCollected(col collector.Collected) {
	var kind EventKind
	switch col.Outcome {
	case collector.OutcomeAccepted:
		kind = EventShareAccepted
	case collector.OutcomeStale:
		kind = EventShareStale
	default:
		kind = EventShareRejected
	}
	c.bus.Publish(Event{Kind: kind, DeviceID: col.DeviceID, PoolID: col.PoolID, JobID: col.JobID})
}

// Stop runs the shutdown sequence in reverse order, with a bounded
// timeout per subsystem; a subsystem that misses its budget is left
// behind and an Alert event is emitted rather than hanging
// indefinitely.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRunning && c.state != StatePaused {
		s := c.state
		c.mu.Unlock()
		return fmt.Errorf("coordinator: stop invalid from state %s", s)
	}
	c.state = StateStopping
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(defaultSubsystemStopBudget):
		c.bus.Publish(Event{Kind: EventAlert, Severity: SeverityCritical, Message: "forced shutdown: background tasks did not stop within budget"})
	}

	for _, h := range c.handles {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), defaultSubsystemStopBudget)
		if err := c.registry.Destroy(stopCtx, h); err != nil {
			c.bus.Publish(Event{Kind: EventAlert, Severity: SeverityError, Message: err.Error()})
		}
		stopCancel()
	}

	c.mu.Lock()
	c.state = StateStopped
	c.handles = nil
	c.devices = make(map[string]core.MiningDevice)
	c.mu.Unlock()
	return nil
}

// Pause stops dispatching fresh Work to devices without tearing the
// system down; in-flight work already on a device keeps mining.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return fmt.Errorf("coordinator: pause invalid from state %s", c.state)
	}
	c.paused.Store(true)
	c.state = StatePaused
	return nil
}

// Resume reverses Pause.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return fmt.Errorf("coordinator: resume invalid from state %s", c.state)
	}
	c.paused.Store(false)
	c.state = StateRunning
	return nil
}

// RestartDevice restarts a single device by id, up to
// maxDeviceRestartAttempts times; beyond that it reports an Alert and
// leaves the device in whatever state Restart left it.
func (c *Coordinator) RestartDevice(ctx context.Context, id string) error {
	c.mu.RLock()
	d, ok := c.devices[id]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("coordinator: unknown device %q", id)
	}

	c.restartMu.Lock()
	attempts := c.restartAttempts[id]
	if attempts >= maxDeviceRestartAttempts {
		c.restartMu.Unlock()
		err := fmt.Errorf("coordinator: device %s exceeded restart budget", id)
		c.bus.Publish(Event{Kind: EventAlert, Severity: SeverityError, DeviceID: id, Message: err.Error()})
		return err
	}
	c.restartAttempts[id] = attempts + 1
	c.restartMu.Unlock()

	if err := d.Restart(ctx); err != nil {
		c.bus.Publish(Event{Kind: EventAlert, Severity: SeverityError, DeviceID: id, Message: err.Error()})
		return err
	}
	c.bus.Publish(Event{Kind: EventDeviceStateChanged, DeviceID: id})
	return nil
}

// GetStats aggregates hashrate, per-device, dispatcher, collector and
// pool stats into one snapshot.
func (c *Coordinator) GetStats() MiningStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := MiningStats{
		Hashrate:   c.meters.Total(),
		PerDevice:  c.meters.PerDevice(),
		Dispatcher: c.dispatcher.Stats(),
		Collector:  c.collector.Stats(),
		Pools:      c.pools.Snapshot(),
	}
	if !c.startedAt.IsZero() {
		stats.Uptime = time.Since(c.startedAt)
	}
	for _, d := range c.devices {
		stats.Devices = append(stats.Devices, d.Stats())
	}
	return stats
}

// GetSystemStatus returns host-level telemetry, independent of mining
// state.
func (c *Coordinator) GetSystemStatus() SystemStatus {
	return CollectSystemStatus()
}

// SubscribeEvents registers a new event listener.
func (c *Coordinator) SubscribeEvents() (int, <-chan Event) {
	return c.bus.Subscribe()
}

// UnsubscribeEvents removes a previously registered listener.
func (c *Coordinator) UnsubscribeEvents(id int) {
	c.bus.Unsubscribe(id)
}
