// Package core defines the mining-core registry and the device
// capability contract every backend (CPU, ASIC, GPU) implements. It
// holds no concrete hashing logic; that lives in corecpu, coreasic
// and coregpu.
package core

import (
	"context"
	"time"

	"github.com/cgminer-rs/cgominer/work"
)

// CoreType tags the concrete backend family.
type CoreType string

const (
	CoreTypeCpuBtc CoreType = "cpu_btc"
	CoreTypeAsic   CoreType = "asic"
	CoreTypeGpu    CoreType = "gpu"
)

// CustomCoreType builds a Custom(name) tag.
func CustomCoreType(name string) CoreType {
	return CoreType("custom:" + name)
}

// CoreInfo describes a registered backend.
type CoreInfo struct {
	Name                string
	Type                CoreType
	Version             string
	SupportedAlgorithms []work.Algorithm
	Capabilities        CoreCapabilities
}

// CoreCapabilities are the booleans a backend advertises.
type CoreCapabilities struct {
	SupportsTemperatureControl bool
	SupportsFrequencyControl   bool
	SupportsVoltageControl     bool
	SupportsMultiChain         bool
}

// DeviceStatus is a MiningDevice's lifecycle state.
type DeviceStatus int

const (
	StatusUninitialized DeviceStatus = iota
	StatusIdle
	StatusRunning
	StatusPaused
	StatusError
	StatusStopped
)

func (s DeviceStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DeviceConfig configures a single device at initialize() time.
type DeviceConfig struct {
	DeviceID          string
	Frequency         uint32 // MHz
	Voltage           uint32 // mV
	ChipCount         uint32
	TemperatureLimit  float64 // Celsius
	FanSpeed          uint32  // percent
	ChainID           uint32
	Algorithm         work.Algorithm
	CPUAffinityCore   int // -1 = unset
}

// DeviceStats are the rolling counters and telemetry owned exclusively
// by a device's backend.
type DeviceStats struct {
	DeviceID         string
	CurrentHashrate  float64
	AverageHashrate  float64
	AcceptedShares   uint64
	RejectedShares   uint64
	StaleShares      uint64
	HardwareErrors   uint64
	TotalResults     uint64
	Temperature      float64
	Voltage          uint32
	Frequency        uint32
	FanSpeed         uint32
	Uptime           time.Duration
	LastUpdate       time.Time
}

// DeviceInfo is the static identity of an attached device.
type DeviceInfo struct {
	ID       string
	CoreName string
	CoreType CoreType
	ChainID  uint32
}

// DeviceErrorKind classifies a DeviceError.
type DeviceErrorKind int

const (
	DeviceErrHardware DeviceErrorKind = iota
	DeviceErrCommunication
	DeviceErrNotRunning
	DeviceErrBusy
	DeviceErrOutOfRange
	DeviceErrInvalidConfig
	DeviceErrUnsupported
)

// MiningDevice is the uniform capability contract every backend
// implements. Implementations must be safe for
// concurrent use by the dispatcher (SubmitWork), the collector
// (CollectResult) and the coordinator (lifecycle + telemetry calls).
type MiningDevice interface {
	Initialize(ctx context.Context, cfg DeviceConfig) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error

	SubmitWork(ctx context.Context, w *work.Work) error
	CollectResult() (*work.Result, bool)

	Status() DeviceStatus
	Stats() DeviceStats
	Info() DeviceInfo

	SetFrequency(mhz uint32) error
	SetVoltage(mv uint32) error
	SetFanSpeed(percent uint32) error

	HealthCheck() bool

	// RecordAccepted/RecordRejected/RecordStale/RecordHardwareError let
	// the collector feed a share outcome back into the device's own
	// stats, which stay owned exclusively by the device.
	RecordAccepted()
	RecordRejected()
	RecordStale()
	RecordHardwareError()
}

// MiningCore owns zero or more MiningDevices and is the unit the
// registry creates and destroys.
type MiningCore interface {
	Info() CoreInfo
	Initialize(ctx context.Context, cfg CoreConfig) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Devices() []MiningDevice
}

// CoreConfig is the opaque, backend-specific configuration blob passed
// to CoreFactory.Create, decoded from the `cores.<backend>` TOML table.
type CoreConfig struct {
	Name       string
	DeviceCount int
	BatchSize   int
	Algorithm   work.Algorithm
	Extra       map[string]any
}

// CoreFactory constructs and validates a concrete MiningCore.
type CoreFactory interface {
	Info() CoreInfo
	ValidateConfig(cfg CoreConfig) error
	Create(cfg CoreConfig) (MiningCore, error)
}
