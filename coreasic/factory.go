package coreasic

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// Factory implements core.CoreFactory for the ASIC backend, grounded
// on original_source/cgminer-asic-core/src/device.rs and the
// HardwareInterface trait in
// original_source/cgminer-a-maijie-l7-core/src/hardware.rs.
type Factory struct {
	log logrus.FieldLogger
}

// NewFactory builds an ASIC core factory backed by a fresh
// SimulatedHardware per created core.
func NewFactory(log logrus.FieldLogger) *Factory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Factory{log: log}
}

func (f *Factory) Info() core.CoreInfo {
	return core.CoreInfo{
		Name:                "asic",
		Type:                core.CoreTypeAsic,
		Version:             "1.0.0",
		SupportedAlgorithms: []work.Algorithm{work.SHA256d},
	}
}

func (f *Factory) ValidateConfig(cfg core.CoreConfig) error {
	if cfg.DeviceCount <= 0 {
		return errors.New("device_count (chain count) must be positive")
	}
	return nil
}

func (f *Factory) Create(cfg core.CoreConfig) (core.MiningCore, error) {
	return New(cfg.Name, cfg.DeviceCount, NewSimulatedHardware(), f.log), nil
}
