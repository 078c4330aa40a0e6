package corecpu

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// Core is the CPU-BTC mining-core backend: it owns DeviceCount logical
// software workers, each a Device, optionally pinned per an
// AffinityStrategy.
type Core struct {
	name      string
	devices   []*Device
	affinity  *AffinityManager
	log       logrus.FieldLogger
}

// New builds an uninitialized CPU core with deviceCount logical workers.
func New(name string, deviceCount int, strategy AffinityStrategy, manual map[uint32]int, log logrus.FieldLogger) *Core {
	if log == nil {
		log = logrus.StandardLogger()
	}

	devices := make([]*Device, deviceCount)
	for i := 0; i < deviceCount; i++ {
		devices[i] = NewDevice(fmt.Sprintf("%s-%d", name, i), uint32(i), uint32(deviceCount), log)
	}

	return &Core{
		name:     name,
		devices:  devices,
		affinity: NewAffinityManager(strategy, manual),
		log:      log.WithField("core", name),
	}
}

func (c *Core) Info() core.CoreInfo {
	return core.CoreInfo{
		Name:                c.name,
		Type:                core.CoreTypeCpuBtc,
		Version:             "1.0.0",
		SupportedAlgorithms: []work.Algorithm{work.SHA256d, work.Scrypt, work.X11},
		Capabilities: core.CoreCapabilities{
			SupportsTemperatureControl: false,
			SupportsFrequencyControl:   false,
			SupportsVoltageControl:     false,
			SupportsMultiChain:         false,
		},
	}
}

func (c *Core) Initialize(ctx context.Context, cfg core.CoreConfig) error {
	algo := cfg.Algorithm
	if algo == "" {
		algo = work.SHA256d
	}

	for i, d := range c.devices {
		dc := core.DeviceConfig{
			DeviceID:         d.id,
			Algorithm:        algo,
			TemperatureLimit: 95,
			CPUAffinityCore:  c.affinity.AssignCore(uint32(i), nil),
		}
		if err := d.Initialize(ctx, dc); err != nil {
			return &core.CoreError{CoreName: c.name, Op: "initialize", Err: err}
		}
	}
	return nil
}

func (c *Core) Start(ctx context.Context) error {
	for _, d := range c.devices {
		if err := d.Start(ctx); err != nil {
			return &core.CoreError{CoreName: c.name, Op: "start", Err: err}
		}
	}
	return nil
}

func (c *Core) Stop(ctx context.Context) error {
	for _, d := range c.devices {
		if err := d.Stop(ctx); err != nil {
			return &core.CoreError{CoreName: c.name, Op: "stop", Err: err}
		}
	}
	return nil
}

func (c *Core) Devices() []core.MiningDevice {
	out := make([]core.MiningDevice, len(c.devices))
	for i, d := range c.devices {
		out[i] = d
	}
	return out
}
