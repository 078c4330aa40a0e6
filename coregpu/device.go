// Package coregpu implements the GPU mining-core backend: a device
// that simulates a GPU kernel's large per-dispatch nonce batch,
// grounded on original_source/benches/gpu_btc_core_benchmark.rs's
// GpuDevice/target_hashrate shape. A real OpenCL/CUDA kernel is out of
// scope; the hot path reuses work's SHA256d the same way corecpu does,
// batched to approximate a GPU dispatch's parallelism.
package coregpu

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// batchSize is how many nonces one simulated kernel dispatch searches,
// standing in for a GPU's per-launch thread count.
const batchSize = 1 << 18

// dispatchInterval paces simulated kernel launches so the loop still
// cooperatively yields between batches.
const dispatchInterval = time.Millisecond

// Device is one simulated GPU mining worker.
type Device struct {
	id          string
	workerIndex uint32
	workerCount uint32

	log logrus.FieldLogger

	statusVal atomic.Int32 // core.DeviceStatus

	mu          sync.Mutex
	cfg         core.DeviceConfig
	currentWork *work.Work
	generation  uint64

	results chan work.Result

	runWg  sync.WaitGroup
	cancel context.CancelFunc

	startedAt time.Time

	hashesSinceReset                                 atomic.Uint64
	accepted, rejected, stale, hwErrors, totalResults atomic.Uint64
}

// NewDevice constructs an uninitialized GPU device; workerIndex/
// workerCount partition the nonce space across sibling devices the
// same way corecpu.Device does.
func NewDevice(id string, workerIndex, workerCount uint32, log logrus.FieldLogger) *Device {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Device{
		id:          id,
		workerIndex: workerIndex,
		workerCount: workerCount,
		log:         log.WithField("device", id),
		results:     make(chan work.Result, 64),
	}
	d.statusVal.Store(int32(core.StatusUninitialized))
	return d
}

func (d *Device) Initialize(ctx context.Context, cfg core.DeviceConfig) error {
	if cfg.Algorithm == "" {
		cfg.Algorithm = work.SHA256d
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	d.statusVal.Store(int32(core.StatusIdle))
	return nil
}

func (d *Device) Start(ctx context.Context) error {
	if core.DeviceStatus(d.statusVal.Load()) == core.StatusRunning {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.startedAt = time.Now()
	d.statusVal.Store(int32(core.StatusRunning))

	d.runWg.Add(1)
	go d.loop(runCtx)

	return nil
}

func (d *Device) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	d.runWg.Wait()

	d.mu.Lock()
	d.currentWork = nil
	d.mu.Unlock()

	d.statusVal.Store(int32(core.StatusIdle))
	return nil
}

func (d *Device) Restart(ctx context.Context) error {
	if err := d.Stop(ctx); err != nil {
		return err
	}
	return d.Start(ctx)
}

func (d *Device) SubmitWork(ctx context.Context, w *work.Work) error {
	if core.DeviceStatus(d.statusVal.Load()) != core.StatusRunning {
		return core.NewDeviceError(d.id, core.DeviceErrNotRunning, nil)
	}
	if w.IsExpired() {
		return core.NewDeviceError(d.id, core.DeviceErrInvalidConfig, work.ErrMalformed)
	}

	d.mu.Lock()
	d.currentWork = w
	d.generation++
	d.mu.Unlock()

	return nil
}

func (d *Device) CollectResult() (*work.Result, bool) {
	select {
	case r := <-d.results:
		return &r, true
	default:
		return nil, false
	}
}

func (d *Device) Status() core.DeviceStatus {
	return core.DeviceStatus(d.statusVal.Load())
}

func (d *Device) Stats() core.DeviceStats {
	var uptime time.Duration
	if !d.startedAt.IsZero() {
		uptime = time.Since(d.startedAt)
	}

	hashrate := 0.0
	if uptime > 0 {
		hashrate = float64(d.hashesSinceReset.Load()) / uptime.Seconds()
	}

	return core.DeviceStats{
		DeviceID:        d.id,
		CurrentHashrate: hashrate,
		AverageHashrate: hashrate,
		AcceptedShares:  d.accepted.Load(),
		RejectedShares:  d.rejected.Load(),
		StaleShares:     d.stale.Load(),
		HardwareErrors:  d.hwErrors.Load(),
		TotalResults:    d.totalResults.Load(),
		Uptime:          uptime,
		LastUpdate:      time.Now(),
	}
}

func (d *Device) Info() core.DeviceInfo {
	return core.DeviceInfo{ID: d.id, CoreType: core.CoreTypeGpu}
}

// SetFrequency/SetVoltage/SetFanSpeed are unimplemented: the simulated
// kernel has no clock/power domain to tune.
func (d *Device) SetFrequency(mhz uint32) error {
	return core.NewDeviceError(d.id, core.DeviceErrUnsupported, nil)
}

func (d *Device) SetVoltage(mv uint32) error {
	return core.NewDeviceError(d.id, core.DeviceErrUnsupported, nil)
}

func (d *Device) SetFanSpeed(percent uint32) error {
	return core.NewDeviceError(d.id, core.DeviceErrUnsupported, nil)
}

func (d *Device) HealthCheck() bool {
	status := d.Status()
	return status == core.StatusRunning || status == core.StatusIdle
}

func (d *Device) RecordAccepted()      { d.accepted.Add(1) }
func (d *Device) RecordRejected()      { d.rejected.Add(1) }
func (d *Device) RecordStale()         { d.stale.Add(1) }
func (d *Device) RecordHardwareError() { d.hwErrors.Add(1) }

func (d *Device) loop(ctx context.Context) {
	defer d.runWg.Done()

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	var (
		myGeneration  uint64
		nonceCursor   uint32
		extranonce2   uint32
		lastGenSeen   uint64 = ^uint64(0)
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		w := d.currentWork
		generation := d.generation
		algo := d.cfg.Algorithm
		d.mu.Unlock()

		if w == nil {
			continue
		}
		if w.IsExpired() {
			continue
		}
		if algo == "" {
			algo = work.SHA256d
		}

		if generation != lastGenSeen {
			nonceCursor = d.workerIndex
			extranonce2 = w.StartExtranonce2
			lastGenSeen = generation
		}
		myGeneration = generation

		d.dispatchBatch(ctx, w, myGeneration, algo, &nonceCursor, &extranonce2)
	}
}

// dispatchBatch simulates one kernel launch: it searches batchSize
// nonces (wrapping extranonce2 forward on nonce-space exhaustion) and
// reports any share found, mirroring a GPU's single large parallel
// dispatch rather than corecpu's incremental single-nonce loop.
func (d *Device) dispatchBatch(ctx context.Context, w *work.Work, generation uint64, algo work.Algorithm, nonceCursor, extranonce2 *uint32) {
	hashFunc := algo.HashFunc()
	extranonce2Bytes := uint32ToLE(*extranonce2)

	for i := 0; i < batchSize; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.mu.Lock()
		stale := d.generation != generation
		d.mu.Unlock()
		if stale {
			return
		}

		header := w.HeaderFor(extranonce2Bytes, *nonceCursor)
		hash := hashFunc(header[:])

		d.hashesSinceReset.Add(1)

		if work.HashMeetsTarget(hash, w.Target) {
			result := work.NewResult(d.id, algo, w, extranonce2Bytes, *nonceCursor, hash)
			d.totalResults.Add(1)
			select {
			case d.results <- result:
			case <-ctx.Done():
				return
			}
		}

		if *nonceCursor > ^uint32(0)-d.workerCount {
			*extranonce2++
			extranonce2Bytes = uint32ToLE(*extranonce2)
			*nonceCursor = d.workerIndex
			continue
		}
		*nonceCursor += d.workerCount
	}
}

func uint32ToLE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
