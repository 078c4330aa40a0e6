package corecpu

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/work"
)

// Factory implements core.CoreFactory for the CPU-BTC backend,
// grounded on original_source/cgminer-software-core/src/factory.rs.
type Factory struct {
	log logrus.FieldLogger
}

// NewFactory builds a CPU-BTC core factory.
func NewFactory(log logrus.FieldLogger) *Factory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Factory{log: log}
}

func (f *Factory) Info() core.CoreInfo {
	return core.CoreInfo{
		Name:                "cpu_btc",
		Type:                core.CoreTypeCpuBtc,
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
	strategy, manual := affinityFromExtra(cfg.Extra)
	return New(cfg.Name, cfg.DeviceCount, strategy, manual, f.log), nil
}

func affinityFromExtra(extra map[string]any) (AffinityStrategy, map[uint32]int) {
	strategy := AffinityRoundRobin
	if raw, ok := extra["cpu_affinity_strategy"]; ok {
		if s, ok := raw.(string); ok {
			switch s {
			case "manual":
				strategy = AffinityManual
			case "performance_first":
				strategy = AffinityPerformanceFirst
			case "physical_cores_only":
				strategy = AffinityPhysicalCoresOnly
			case "intelligent":
				strategy = AffinityIntelligent
			case "load_balanced":
				strategy = AffinityLoadBalanced
			}
		}
	}

	manual := map[uint32]int{}
	if raw, ok := extra["cpu_affinity_manual"]; ok {
		if m, ok := raw.(map[uint32]int); ok {
			manual = m
		}
	}

	return strategy, manual
}
