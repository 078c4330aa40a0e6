package coregpu

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// Factory implements core.CoreFactory for the GPU backend, grounded on
// original_source/benches/gpu_btc_core_benchmark.rs's GpuMiningCore/
// GpuDevice shape. Real OpenCL/CUDA dispatch is out of scope; Create
// builds simulated kernel workers instead.
type Factory struct {
	log logrus.FieldLogger
}

// NewFactory builds a GPU core factory.
func NewFactory(log logrus.FieldLogger) *Factory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Factory{log: log}
}

func (f *Factory) Info() core.CoreInfo {
	return core.CoreInfo{
		Name:                "gpu",
		Type:                core.CoreTypeGpu,
		Version:             "1.0.0",
		SupportedAlgorithms: []work.Algorithm{work.SHA256d, work.Scrypt, work.X11},
	}
}

func (f *Factory) ValidateConfig(cfg core.CoreConfig) error {
	if cfg.DeviceCount <= 0 {
		return errors.New("device_count must be positive")
	}
	if cfg.Algorithm != "" {
		if _, err := work.ParseAlgorithm(string(cfg.Algorithm)); err != nil {
			return fmt.Errorf("algorithm: %w", err)
		}
	}
	return nil
}

func (f *Factory) Create(cfg core.CoreConfig) (core.MiningCore, error) {
	return New(cfg.Name, cfg.DeviceCount, f.log), nil
}
