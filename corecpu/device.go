package corecpu

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// yieldEveryHashes is how often the hot loop cooperatively yields so
// other goroutines progress. The inner SHA-256d
// computation itself never suspends between yields.
const yieldEveryHashes = 4096

// Device is one logical CPU-BTC mining worker: a tight SHA-256d loop
// over a private slice of the nonce/extranonce2 space.
type Device struct {
	id          string
	workerIndex uint32
	workerCount uint32

	log logrus.FieldLogger

	statusVal atomic.Int32 // core.DeviceStatus

	mu          sync.Mutex
	cfg         core.DeviceConfig
	currentWork *work.Work
	generation  uint64 // bumped on every SubmitWork to abandon stale search

	results chan work.Result

	runWg  sync.WaitGroup
	cancel context.CancelFunc

	startedAt time.Time

	hashesSinceReset atomic.Uint64
	accepted         atomic.Uint64
	rejected         atomic.Uint64
	stale            atomic.Uint64
	hwErrors         atomic.Uint64
	totalResults     atomic.Uint64

	affinityCore int
}

// NewDevice constructs an uninitialized CPU device.
func NewDevice(id string, workerIndex, workerCount uint32, log logrus.FieldLogger) *Device {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Device{
		id:           id,
		workerIndex:  workerIndex,
		workerCount:  workerCount,
		log:          log.WithField("device", id),
		results:      make(chan work.Result, 64),
		affinityCore: -1,
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
	d.affinityCore = cfg.CPUAffinityCore
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

// SubmitWork supersedes any in-flight work: at most one active Work
// per device at a time. The previous nonce search is abandoned via
// the generation counter.
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

	d.mu.Lock()
	cfg := d.cfg
	d.mu.Unlock()

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
		Frequency:       cfg.Frequency,
		Voltage:         cfg.Voltage,
		FanSpeed:        cfg.FanSpeed,
		Uptime:          uptime,
		LastUpdate:      time.Now(),
	}
}

func (d *Device) Info() core.DeviceInfo {
	return core.DeviceInfo{ID: d.id, CoreType: core.CoreTypeCpuBtc}
}

func (d *Device) SetFrequency(mhz uint32) error {
	return core.NewDeviceError(d.id, core.DeviceErrUnsupported, nil)
}

func (d *Device) SetVoltage(mv uint32) error {
	return core.NewDeviceError(d.id, core.DeviceErrUnsupported, nil)
}

func (d *Device) SetFanSpeed(percent uint32) error {
	return core.NewDeviceError(d.id, core.DeviceErrUnsupported, nil)
}

// HealthCheck reports true iff the device is Running or Idle. CPU
// devices read no temperature sensor (Stats leaves Temperature at
// zero), so temperature never trips this check.
func (d *Device) HealthCheck() bool {
	status := d.Status()
	return status == core.StatusRunning || status == core.StatusIdle
}

// RecordAccepted/RecordRejected/RecordStale/RecordHardwareError let the
// collector feed share outcomes back so DeviceStats stays the
// authoritative record, owned exclusively by the device's backend.
func (d *Device) RecordAccepted()     { d.accepted.Add(1) }
func (d *Device) RecordRejected()     { d.rejected.Add(1) }
func (d *Device) RecordStale()        { d.stale.Add(1) }
func (d *Device) RecordHardwareError() { d.hwErrors.Add(1) }

func (d *Device) loop(ctx context.Context) {
	defer d.runWg.Done()

	var (
		myGeneration uint64
		w            *work.Work
		hashFunc     func([]byte) [32]byte
	)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.mu.Lock()
		w = d.currentWork
		generation := d.generation
		algo := d.cfg.Algorithm
		d.mu.Unlock()

		if w == nil {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if algo == "" {
			algo = work.SHA256d
		}
		hashFunc = algo.HashFunc()
		myGeneration = generation

		d.mineOnce(ctx, w, myGeneration, algo, hashFunc)
	}
}

func (d *Device) mineOnce(ctx context.Context, w *work.Work, generation uint64, algo work.Algorithm, hashFunc func([]byte) [32]byte) {
	hashes := 0

	for extraNonce2 := w.StartExtranonce2; ; extraNonce2++ {
		extranonce2 := uint32ToLE(extraNonce2)

		for nonce := d.workerIndex; ; nonce += d.workerCount {
			select {
			case <-ctx.Done():
				return
			default:
			}

			d.mu.Lock()
			staleCheck := d.generation != generation
			d.mu.Unlock()
			if staleCheck {
				return
			}
			if w.IsExpired() {
				return
			}

			header := w.HeaderFor(extranonce2, nonce)
			hash := hashFunc(header[:])

			hashes++
			d.hashesSinceReset.Add(1)
			if hashes%yieldEveryHashes == 0 {
				runtime.Gosched()
			}

			if work.HashMeetsTarget(hash, w.Target) {
				result := work.NewResult(d.id, algo, w, extranonce2, nonce, hash)
				d.totalResults.Add(1)
				select {
				case d.results <- result:
				case <-ctx.Done():
					return
				}
			}

			if nonce > ^uint32(0)-d.workerCount {
				break
			}
		}
	}
}

func uint32ToLE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
