// Package collector implements the result collector and validator: it
// drains MiningResults from every device, re-verifies each share
// against its originating Work, and routes accepted shares to the
// pool that issued the job.
package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/work"
)

// Outcome classifies how a collected result was handled.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeRejected
	OutcomeStale
	OutcomeDuplicate
	OutcomeHardwareError
	OutcomeInvalidShare
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeStale:
		return "stale"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeHardwareError:
		return "hardware-error"
	case OutcomeInvalidShare:
		return "invalid-share"
	default:
		return "unknown"
	}
}

// JobLookup resolves a job id to its active Work, returning false if
// the job is missing or has expired. Satisfied by *dispatch.Dispatcher.
type JobLookup func(jobID string) (*work.Work, bool)

// DeviceRecorder lets the collector feed share outcomes back into a
// device's own stats, which remain owned exclusively by that device.
type DeviceRecorder interface {
	RecordAccepted()
	RecordRejected()
	RecordStale()
	RecordHardwareError()
}

// ShareSubmitter submits an accepted share to the pool that issued
// the originating job. Satisfied by *pool.Client.
type ShareSubmitter interface {
	Submit(ctx context.Context, jobID string, extranonce2 []byte, ntime, nonce uint32) error
}

// Source produces device results for the collector to drain. One
// Device implementation is polled per tick; real backends push into a
// bounded channel and CollectResult simply drains it non-blockingly.
type Source interface {
	CollectResult() (*work.Result, bool)
}

// Pending is one result handed to the collector for processing,
// already tagged with its originating device.
type Pending struct {
	DeviceID string
	Device   DeviceRecorder
	Result   work.Result
}

// Collected is the outcome of processing one Pending result, emitted
// for telemetry and the coordinator's event bus.
type Collected struct {
	DeviceID        string
	PoolID          string
	JobID           string
	Outcome         Outcome
	ShareDifficulty float64
	Err             error
}

// Collector consumes results in arrival order: per-device FIFO is
// preserved, but there is no cross-device ordering guarantee.
type Collector struct {
	lookupJob   JobLookup
	dedup       *dedupWindow
	poolForJob  func(poolID string) ShareSubmitter

	log logrus.FieldLogger

	in chan Pending

	processed processedCounters
}

type processedCounters struct {
	accepted  atomic.Uint64
	stale     atomic.Uint64
	duplicate atomic.Uint64
	hwError   atomic.Uint64
	invalid   atomic.Uint64
}

// Config configures window bounds; zero values take the spec defaults.
type Config struct {
	WindowSize int
	WindowAge  time.Duration
	QueueDepth int
}

// NewCollector builds a Collector. poolForJob resolves a Work's PoolID
// to the ShareSubmitter that should receive an accepted share.
func NewCollector(cfg Config, lookupJob JobLookup, poolForJob func(string) ShareSubmitter, log logrus.FieldLogger) *Collector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}

	return &Collector{
		lookupJob:  lookupJob,
		dedup:      newDedupWindow(cfg.WindowSize, cfg.WindowAge),
		poolForJob: poolForJob,
		log:        log,
		in:         make(chan Pending, cfg.QueueDepth),
	}
}

// Submit enqueues a device result for processing. It never blocks:
// when the bounded queue is full the result is not enqueued and Submit
// returns false, leaving the caller to decide what to do with it.
func (c *Collector) Submit(p Pending) bool {
	select {
	case c.in <- p:
		return true
	default:
		return false
	}
}

// Run drains the input queue until ctx is canceled, invoking onResult
// for every processed share.
func (c *Collector) Run(ctx context.Context, onResult func(Collected)) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-c.in:
			collected := c.process(ctx, p)
			if onResult != nil {
				onResult(collected)
			}
		}
	}
}

func (c *Collector) process(ctx context.Context, p Pending) Collected {
	r := p.Result

	w, ok := c.lookupJob(r.JobID)
	if !ok {
		c.processed.stale.Add(1)
		if p.Device != nil {
			p.Device.RecordStale()
		}
		return Collected{DeviceID: p.DeviceID, JobID: r.JobID, Outcome: OutcomeStale}
	}

	if c.dedup.CheckAndAdd(r.JobID, r.Nonce, r.Extranonce2) {
		c.processed.duplicate.Add(1)
		return Collected{DeviceID: p.DeviceID, PoolID: w.PoolID, JobID: w.JobID, Outcome: OutcomeDuplicate}
	}

	header := w.HeaderFor(r.Extranonce2, r.Nonce)
	algo := r.Algorithm
	if algo == "" {
		algo = work.SHA256d
	}
	recomputed := algo.HashFunc()(header[:])
	if recomputed != r.Hash {
		c.processed.hwError.Add(1)
		if p.Device != nil {
			p.Device.RecordHardwareError()
		}
		return Collected{DeviceID: p.DeviceID, PoolID: w.PoolID, JobID: w.JobID, Outcome: OutcomeHardwareError}
	}

	if !work.HashMeetsTarget(r.Hash, w.Target) {
		c.processed.invalid.Add(1)
		return Collected{DeviceID: p.DeviceID, PoolID: w.PoolID, JobID: w.JobID, Outcome: OutcomeInvalidShare}
	}

	shareDifficulty := work.ShareDifficulty(r.Hash)

	submitter := c.poolForJob(w.PoolID)
	if submitter == nil {
		c.processed.accepted.Add(1)
		if p.Device != nil {
			p.Device.RecordAccepted()
		}
		return Collected{DeviceID: p.DeviceID, PoolID: w.PoolID, JobID: w.JobID, Outcome: OutcomeAccepted, ShareDifficulty: shareDifficulty}
	}

	if err := submitter.Submit(ctx, w.JobID, r.Extranonce2, w.NTime, r.Nonce); err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"device": p.DeviceID,
			"pool":   w.PoolID,
			"job_id": w.JobID,
		}).Warn("failed to submit share to pool")
	}

	c.processed.accepted.Add(1)
	if p.Device != nil {
		p.Device.RecordAccepted()
	}
	return Collected{DeviceID: p.DeviceID, PoolID: w.PoolID, JobID: w.JobID, Outcome: OutcomeAccepted, ShareDifficulty: shareDifficulty}
}

// Stats returns a snapshot of per-outcome counters.
func (c *Collector) Stats() Stats {
	return Stats{
		Accepted:      c.processed.accepted.Load(),
		Stale:         c.processed.stale.Load(),
		Duplicate:     c.processed.duplicate.Load(),
		HardwareError: c.processed.hwError.Load(),
		InvalidShare:  c.processed.invalid.Load(),
	}
}

// Stats is a snapshot of collector outcome counters.
type Stats struct {
	Accepted      uint64
	Stale         uint64
	Duplicate     uint64
	HardwareError uint64
	InvalidShare  uint64
}
