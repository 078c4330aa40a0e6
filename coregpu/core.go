package coregpu

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// Core is the GPU mining-core backend: deviceCount simulated kernel
// workers sharing the nonce space the same way corecpu partitions it
// across CPU workers.
type Core struct {
	name    string
	devices []*Device
	log     logrus.FieldLogger
}

// New builds an uninitialized GPU core with deviceCount workers.
func New(name string, deviceCount int, log logrus.FieldLogger) *Core {
	if log == nil {
		log = logrus.StandardLogger()
	}

	devices := make([]*Device, deviceCount)
	for i := 0; i < deviceCount; i++ {
		devices[i] = NewDevice(fmt.Sprintf("%s-%d", name, i), uint32(i), uint32(deviceCount), log)
	}

	return &Core{name: name, devices: devices, log: log.WithField("core", name)}
}

func (c *Core) Info() core.CoreInfo {
	return core.CoreInfo{
		Name:                c.name,
		Type:                core.CoreTypeGpu,
		Version:             "1.0.0",
		SupportedAlgorithms: []work.Algorithm{work.SHA256d, work.Scrypt, work.X11},
	}
}

func (c *Core) Initialize(ctx context.Context, cfg core.CoreConfig) error {
	algo := cfg.Algorithm
	if algo == "" {
		algo = work.SHA256d
	}

	for _, d := range c.devices {
		dc := core.DeviceConfig{DeviceID: d.id, Algorithm: algo}
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
