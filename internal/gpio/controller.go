// Package gpio implements register-level control of a two-bank AXI GPIO
// peripheral.
package gpio

import (
	"fmt"

	"github.com/tinyrange/zgpio/internal/regmap"
)

// Bank selects one of the two 32-bit GPIO channels.
type Bank uint8

const (
	BankA Bank = iota
	BankB
)

func (b Bank) String() string {
	switch b {
	case BankA:
		return "A"
	case BankB:
		return "B"
	default:
		return fmt.Sprintf("Bank(%d)", uint8(b))
	}
}

// Valid reports whether b names an existing bank.
func (b Bank) Valid() bool {
	return b == BankA || b == BankB
}

// Controller performs register operations on the peripheral. It holds no
// lock of its own; callers serialize access.
type Controller struct {
	regs regmap.Window
	cfg  Config
}

// NewController returns a Controller over an already mapped window. The
// window is borrowed for the lifetime of the Controller.
func NewController(regs regmap.Window, cfg Config) *Controller {
	return &Controller{regs: regs, cfg: cfg}
}

// Config returns the register layout in use.
func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) dataOffset(b Bank) uint64 {
	if b == BankB {
		return c.cfg.DataOffsetB
	}
	return DataOffsetA
}

func (c *Controller) enableMask(b Bank) uint32 {
	if b == BankB {
		return c.cfg.IRQEnableMaskB
	}
	return c.cfg.IRQEnableMaskA
}

// Reset writes bank A's direction mask into bank A's data register.
func (c *Controller) Reset() {
	c.regs.Write32(DataOffsetA, c.cfg.DirMaskA)
}

// SetBank writes the data register of bank b.
func (c *Controller) SetBank(b Bank, value uint32) {
	c.regs.Write32(c.dataOffset(b), value)
}

// GetBank reads the data register of bank b.
func (c *Controller) GetBank(b Bank) uint32 {
	return c.regs.Read32(c.dataOffset(b))
}

// SetGlobalInterrupt writes the global interrupt mask, or zero when
// disabling.
func (c *Controller) SetGlobalInterrupt(enabled bool) {
	var v uint32
	if enabled {
		v = c.cfg.GlobalIRQMask
	}
	c.regs.Write32(c.cfg.GlobalIRQOffset, v)
}

// SetBankInterruptEnable updates the enable bit of bank b and leaves every
// other bit of the enable register untouched. The read-modify-write is not
// atomic on its own.
func (c *Controller) SetBankInterruptEnable(b Bank, enabled bool) {
	mask := c.enableMask(b)
	v := c.regs.Read32(c.cfg.IRQEnableOffset) &^ mask
	if enabled {
		v |= mask
	}
	c.regs.Write32(c.cfg.IRQEnableOffset, v)
}

// InterruptEnable returns the raw interrupt-enable register.
func (c *Controller) InterruptEnable() uint32 {
	return c.regs.Read32(c.cfg.IRQEnableOffset)
}

// AcknowledgeInterrupts reads the interrupt status and writes the same value
// back, clearing the asserted bits.
func (c *Controller) AcknowledgeInterrupts() uint32 {
	st := c.regs.Read32(c.cfg.IRQStatusOffset)
	c.regs.Write32(c.cfg.IRQStatusOffset, st)
	return st
}

// PendingBanks decodes which banks are flagged in a status value.
func (c *Controller) PendingBanks(status uint32) []Bank {
	var banks []Bank
	if status&c.cfg.IRQStatusMaskA != 0 {
		banks = append(banks, BankA)
	}
	if status&c.cfg.IRQStatusMaskB != 0 {
		banks = append(banks, BankB)
	}
	return banks
}

// ApplyStartup programs the direction of both banks, enables the global
// interrupt and enables bank A's interrupt.
func (c *Controller) ApplyStartup() {
	c.regs.Write32(c.cfg.DirOffsetA, c.cfg.DirMaskA)
	c.regs.Write32(c.cfg.DirOffsetB, c.cfg.DirMaskB)

	c.regs.Write32(c.cfg.GlobalIRQOffset, c.cfg.GlobalIRQMask)
	c.regs.Write32(c.cfg.IRQEnableOffset, c.cfg.IRQEnableMaskA)
}
