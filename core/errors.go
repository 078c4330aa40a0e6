package core

import "fmt"

// DeviceError wraps a device-local failure. It never
// propagates past the device/core boundary uncaught — the offending
// device is marked StatusError and the coordinator emits an Alert.
type DeviceError struct {
	Kind     DeviceErrorKind
	DeviceID string
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.DeviceID, e.kindString(), e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func (e *DeviceError) kindString() string {
	switch e.Kind {
	case DeviceErrHardware:
		return "hardware-error"
	case DeviceErrCommunication:
		return "communication-error"
	case DeviceErrNotRunning:
		return "not-running"
	case DeviceErrBusy:
		return "busy"
	case DeviceErrOutOfRange:
		return "out-of-range"
	case DeviceErrInvalidConfig:
		return "invalid-config"
	case DeviceErrUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

func NewDeviceError(deviceID string, kind DeviceErrorKind, err error) *DeviceError {
	return &DeviceError{Kind: kind, DeviceID: deviceID, Err: err}
}

// CoreError wraps a mining-core-level failure: initialization failed,
// unsupported operation, or a backend crash. Other cores continue
// running when one core errors.
type CoreError struct {
	CoreName string
	Op       string
	Err      error
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("core %s: %s: %v", e.CoreName, e.Op, e.Err)
}

func (e *CoreError) Unwrap() error { return e.Err }

// RegistryErrorKind classifies a RegistryError.
type RegistryErrorKind int

const (
	RegistryErrUnknownName RegistryErrorKind = iota
	RegistryErrDuplicateName
	RegistryErrValidation
	RegistryErrInitialization
)

// RegistryError is returned by Registry operations.
type RegistryError struct {
	Kind  RegistryErrorKind
	Name  string
	Field string
	Err   error
}

func (e *RegistryError) Error() string {
	switch e.Kind {
	case RegistryErrUnknownName:
		return fmt.Sprintf("registry: unknown core %q", e.Name)
	case RegistryErrDuplicateName:
		return fmt.Sprintf("registry: core %q already registered", e.Name)
	case RegistryErrValidation:
		return fmt.Sprintf("registry: invalid config for core %q, field %q: %v", e.Name, e.Field, e.Err)
	case RegistryErrInitialization:
		return fmt.Sprintf("registry: failed to initialize core %q: %v", e.Name, e.Err)
	default:
		return fmt.Sprintf("registry: error for core %q: %v", e.Name, e.Err)
	}
}

func (e *RegistryError) Unwrap() error { return e.Err }
