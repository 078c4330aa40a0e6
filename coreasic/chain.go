package coreasic

import (
	"context"
	"fmt"
)

// Chain owns one ASIC chain's power lifecycle, delegating the actual
// transitions to a HardwareInterface.
type Chain struct {
	ID uint8

	hw        HardwareInterface
	poweredOn bool
}

// NewChain builds a Chain bound to hw.
func NewChain(id uint8, hw HardwareInterface) *Chain {
	return &Chain{ID: id, hw: hw}
}

func (c *Chain) PowerOn(ctx context.Context) error {
	if err := c.hw.PowerOnChain(ctx, c.ID); err != nil {
		return fmt.Errorf("coreasic: chain %d power on: %w", c.ID, err)
	}
	c.poweredOn = true
	return nil
}

func (c *Chain) Reset(ctx context.Context) error {
	if err := c.hw.ResetChain(ctx, c.ID); err != nil {
		return fmt.Errorf("coreasic: chain %d reset: %w", c.ID, err)
	}
	return nil
}

func (c *Chain) PowerOff(ctx context.Context) error {
	if err := c.hw.PowerOffChain(ctx, c.ID); err != nil {
		return fmt.Errorf("coreasic: chain %d power off: %w", c.ID, err)
	}
	c.poweredOn = false
	return nil
}

func (c *Chain) PoweredOn() bool { return c.poweredOn }
