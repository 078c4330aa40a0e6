// Package dispatch forwards fresh Work to eligible devices, enforces
// the clean_jobs fence, partitions the extranonce2 space per pool
// session, and applies backpressure without ever blocking.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// DefaultActiveJobCapacity bounds the active-job LRU: Work is retained
// until expiry or supersession, with the least recently used entry
// evicted once the table is full.
const DefaultActiveJobCapacity = 256

// Device is the subset of core.MiningDevice the dispatcher needs.
type Device interface {
	SubmitWork(ctx context.Context, w *work.Work) error
	Status() core.DeviceStatus
	HealthCheck() bool
	Info() core.DeviceInfo
}

// Stats tracks dispatcher-level counters.
type Stats struct {
	Dispatched uint64
	Dropped    uint64
	Pruned     uint64
}

// Dispatcher owns the active-job table and drives per-tick
// distribution of fresh Work to eligible devices.
type Dispatcher struct {
	mu      sync.RWMutex
	devices map[string]Device

	activeJobs *lru.Cache[string, *work.Work]

	extranonce2Counters sync.Map // poolID -> *atomic.Uint32, monotonic per pool session

	log logrus.FieldLogger

	dispatched atomic.Uint64
	dropped    atomic.Uint64
	pruned     atomic.Uint64
}

// New builds a Dispatcher with a bounded active-job table.
func New(capacity int, log logrus.FieldLogger) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultActiveJobCapacity
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	cache, _ := lru.New[string, *work.Work](capacity)

	return &Dispatcher{
		devices:    make(map[string]Device),
		activeJobs: cache,
		log:        log,
	}
}

// RegisterDevice adds a device as an eligible dispatch target.
func (d *Dispatcher) RegisterDevice(dev Device) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[dev.Info().ID] = dev
}

// UnregisterDevice removes a device, e.g. on hot-unplug.
func (d *Dispatcher) UnregisterDevice(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.devices, id)
}

// nextExtranonce2Seed returns the next monotonic extranonce2 counter
// value for a pool session, partitioning the space across the devices
// dispatched to so round-robin/quota strategies don't search the same
// nonce lane twice within one job.
func (d *Dispatcher) nextExtranonce2Seed(poolID string) uint32 {
	val, _ := d.extranonce2Counters.LoadOrStore(poolID, new(atomic.Uint32))
	counter := val.(*atomic.Uint32)
	return counter.Add(1) - 1
}

// CleanJobs invalidates every active job originating from poolID. It
// is a hard fence: it must run before any subsequent Work from that
// pool is dispatched, so that stale jobs never outlive a clean_jobs
// signal.
func (d *Dispatcher) CleanJobs(poolID string) {
	for _, jobID := range d.activeJobs.Keys() {
		if w, ok := d.activeJobs.Peek(jobID); ok && w.PoolID == poolID {
			d.activeJobs.Remove(jobID)
		}
	}
}

// Dispatch broadcasts w to every eligible device (Running status,
// healthy), skipping devices whose submit queue rejects (backpressure
// is recorded as a drop, never blocking). If w.CleanJobs is set, the
// fence is applied first.
func (d *Dispatcher) Dispatch(ctx context.Context, w *work.Work) {
	if w.CleanJobs {
		d.CleanJobs(w.PoolID)
	}

	if w.IsExpired() {
		return
	}

	d.activeJobs.Add(w.JobID, w)

	d.mu.RLock()
	targets := make([]Device, 0, len(d.devices))
	for _, dev := range d.devices {
		targets = append(targets, dev)
	}
	d.mu.RUnlock()

	for _, dev := range targets {
		if dev.Status() != core.StatusRunning || !dev.HealthCheck() {
			continue
		}
		deviceWork := w.WithStartExtranonce2(d.nextExtranonce2Seed(w.PoolID))
		if err := dev.SubmitWork(ctx, deviceWork); err != nil {
			d.dropped.Add(1)
			d.log.WithFields(logrus.Fields{
				"device": dev.Info().ID,
				"job_id": w.JobID,
				"err":    err,
			}).Warn("dropped work: device rejected submission")
			continue
		}
		d.dispatched.Add(1)
	}
}

// LookupActiveJob finds the active job-table entry for a job id,
// returning false if it is missing or has expired. Used by the result
// collector's freshness check.
func (d *Dispatcher) LookupActiveJob(jobID string) (*work.Work, bool) {
	w, ok := d.activeJobs.Get(jobID)
	if !ok {
		return nil, false
	}
	if w.IsExpired() {
		return nil, false
	}
	return w, true
}

// PruneExpired removes expired entries from the active-job table and
// returns how many were removed.
func (d *Dispatcher) PruneExpired() int {
	pruned := 0
	for _, jobID := range d.activeJobs.Keys() {
		if w, ok := d.activeJobs.Peek(jobID); ok && w.IsExpired() {
			d.activeJobs.Remove(jobID)
			pruned++
		}
	}
	d.pruned.Add(uint64(pruned))
	return pruned
}

// RunPruneLoop periodically prunes expired Work until ctx is canceled.
func (d *Dispatcher) RunPruneLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.PruneExpired()
		}
	}
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Dropped:    d.dropped.Load(),
		Pruned:     d.pruned.Load(),
	}
}
