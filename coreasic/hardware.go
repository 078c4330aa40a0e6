package coreasic

import (
	"context"
)

// HardwareInterface is the narrow SPI-style contract a chain sits
// behind: transfer a framed command/response, and drive the chain's
// power/reset lines. A real vendor backend would satisfy this same
// interface; coreasic ships only SimulatedHardware, since vendor
// register protocols stay out of scope.
type HardwareInterface interface {
	SPITransfer(ctx context.Context, chainID uint8, data []byte) ([]byte, error)
	ResetChain(ctx context.Context, chainID uint8) error
	PowerOnChain(ctx context.Context, chainID uint8) error
	PowerOffChain(ctx context.Context, chainID uint8) error
}
