package coreasic

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// pollInterval is how often a chain is polled for new work frames and
// results. Unlike corecpu.Device, the nonce search itself runs behind
// HardwareInterface, so Device's loop is a thin frame-feed/poll cycle.
const pollInterval = 20 * time.Millisecond

// Device is one ASIC chain's MiningDevice: it feeds work frames into a
// Chain and drains result frames back out, translating to/from the
// work package's Result type.
type Device struct {
	id    string
	chain *Chain

	log logrus.FieldLogger

	statusVal atomic.Int32 // core.DeviceStatus

	mu          sync.Mutex
	currentWork *work.Work
	generation  uint64

	results chan work.Result

	runWg  sync.WaitGroup
	cancel context.CancelFunc

	startedAt time.Time

	accepted, rejected, stale, hwErrors, totalResults atomic.Uint64
}

// NewDevice constructs an uninitialized ASIC chain device.
func NewDevice(id string, chain *Chain, log logrus.FieldLogger) *Device {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Device{
		id:      id,
		chain:   chain,
		log:     log.WithField("device", id),
		results: make(chan work.Result, 64),
	}
	d.statusVal.Store(int32(core.StatusUninitialized))
	return d
}

func (d *Device) Initialize(ctx context.Context, cfg core.DeviceConfig) error {
	if err := d.chain.Reset(ctx); err != nil {
		return core.NewDeviceError(d.id, core.DeviceErrHardware, err)
	}
	d.statusVal.Store(int32(core.StatusIdle))
	return nil
}

func (d *Device) Start(ctx context.Context) error {
	if core.DeviceStatus(d.statusVal.Load()) == core.StatusRunning {
		return nil
	}

	if err := d.chain.PowerOn(ctx); err != nil {
		return core.NewDeviceError(d.id, core.DeviceErrHardware, err)
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

	if err := d.chain.PowerOff(ctx); err != nil {
		return core.NewDeviceError(d.id, core.DeviceErrHardware, err)
	}

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

// SubmitWork supersedes any in-flight work. The chain is handed the
// new header/target the next time the poll loop wakes.
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

	return core.DeviceStats{
		DeviceID:       d.id,
		AcceptedShares: d.accepted.Load(),
		RejectedShares: d.rejected.Load(),
		StaleShares:    d.stale.Load(),
		HardwareErrors: d.hwErrors.Load(),
		TotalResults:   d.totalResults.Load(),
		Uptime:         uptime,
		LastUpdate:     time.Now(),
	}
}

func (d *Device) Info() core.DeviceInfo {
	return core.DeviceInfo{ID: d.id, CoreType: core.CoreTypeAsic, ChainID: uint32(d.chain.ID)}
}

// SetFrequency/SetVoltage/SetFanSpeed are unimplemented: the simulated
// chain has no clock/voltage domain to tune.
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

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var sentGeneration uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		w := d.currentWork
		generation := d.generation
		d.mu.Unlock()

		if w == nil || w.IsExpired() {
			continue
		}

		if generation != sentGeneration {
			// Chains receive a single finalized header per job: the
			// extranonce2 and merkle root are fixed by the host before
			// the work is handed to the chain, so the chip only
			// searches the nonce space.
			header := w.HeaderFor(make([]byte, w.Extranonce2Size), 0)
			resp, err := d.chain.hw.SPITransfer(ctx, d.chain.ID, encodeWorkFrame(header, w.Target))
			if err != nil || decodeWorkAck(resp) != nil {
				d.hwErrors.Add(1)
				d.log.WithError(err).Warn("asic chain rejected work frame")
				continue
			}
			sentGeneration = generation
		}

		resp, err := d.chain.hw.SPITransfer(ctx, d.chain.ID, readResultFrame())
		if err != nil {
			d.hwErrors.Add(1)
			continue
		}
		nonce, hash, found := decodeResultFrame(resp)
		if !found {
			continue
		}

		d.totalResults.Add(1)
		result := work.NewResult(d.id, work.SHA256d, w, make([]byte, w.Extranonce2Size), nonce, hash)
		select {
		case d.results <- result:
		case <-ctx.Done():
			return
		}
	}
}
