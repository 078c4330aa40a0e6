// Package coreasic implements the ASIC mining-core backend: one
// Device per hardware chain, each driven through a HardwareInterface
// (SimulatedHardware stands in for the vendor SPI protocol, since
// real register-level vendor protocols stay out of scope).
package coreasic

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// Core owns one Device per configured chain.
type Core struct {
	name    string
	devices []*Device
	log     logrus.FieldLogger
}

// New builds an uninitialized ASIC core with chainCount chains, all
// driven by the given HardwareInterface.
func New(name string, chainCount int, hw HardwareInterface, log logrus.FieldLogger) *Core {
	if log == nil {
		log = logrus.StandardLogger()
	}

	devices := make([]*Device, chainCount)
	for i := 0; i < chainCount; i++ {
		chain := NewChain(uint8(i), hw)
		devices[i] = NewDevice(fmt.Sprintf("%s-chain-%d", name, i), chain, log)
	}

	return &Core{name: name, devices: devices, log: log.WithField("core", name)}
}

func (c *Core) Info() core.CoreInfo {
	return core.CoreInfo{
		Name:                c.name,
		Type:                core.CoreTypeAsic,
		Version:             "1.0.0",
		SupportedAlgorithms: []work.Algorithm{work.SHA256d},
		Capabilities: core.CoreCapabilities{
			SupportsMultiChain: true,
		},
	}
}

func (c *Core) Initialize(ctx context.Context, cfg core.CoreConfig) error {
	for i, d := range c.devices {
		dc := core.DeviceConfig{
			DeviceID:  d.id,
			Algorithm: work.SHA256d,
			ChainID:   uint32(i),
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
