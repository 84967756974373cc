// Package axigpio implements an emulated Xilinx AXI GPIO core with two
// channels and interrupt support.
package axigpio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tinyrange/zgpio/internal/chipset"
)

// AXI GPIO register offsets
const (
	GPIO_DATA  = 0x000 // Channel 1 data
	GPIO_TRI   = 0x004 // Channel 1 tri-state control (1 = input)
	GPIO2_DATA = 0x008 // Channel 2 data
	GPIO2_TRI  = 0x00C // Channel 2 tri-state control
	GIER       = 0x11C // Global interrupt enable
	IP_ISR     = 0x120 // Interrupt status (write 1 to clear)
	IP_IER     = 0x128 // Interrupt enable
)

// Interrupt bits
const (
	GIER_ENABLE = 1 << 31
	IP_CH1      = 1 << 0
	IP_CH2      = 1 << 1
)

// Default base address and size for the emulated core
const (
	DefaultBase = 0x41200000
	DefaultSize = 0x1000
)

// Channel selects one of the two GPIO channels.
type Channel int

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
)

type channel struct {
	out uint32 // output latch
	in  uint32 // input pin levels
	tri uint32
}

func (c *channel) read() uint32 {
	return (c.out &^ c.tri) | (c.in & c.tri)
}

// Device is an emulated AXI GPIO core.
type Device struct {
	mu sync.Mutex

	base uint64
	size uint64

	ch   [2]channel
	gier uint32
	isr  uint32
	ier  uint32

	irqLine chipset.LineInterrupt
}

// New creates an AXI GPIO core at base raising irqLine.
func New(base uint64, irqLine chipset.LineInterrupt) *Device {
	if irqLine == nil {
		irqLine = chipset.LineInterruptDetached()
	}
	d := &Device{
		base:    base,
		size:    DefaultSize,
		irqLine: irqLine,
	}
	d.resetLocked()
	return d
}

func (d *Device) resetLocked() {
	d.ch[0] = channel{tri: 0xffffffff}
	d.ch[1] = channel{tri: 0xffffffff}
	d.gier = 0
	d.isr = 0
	d.ier = 0
}

// Reset implements chipset.ChipsetDevice.
func (d *Device) Reset() error {
	d.mu.Lock()
	d.resetLocked()
	level, line := d.levelLocked(), d.irqLine
	d.mu.Unlock()

	line.SetLevel(level)
	return nil
}

// SupportsMmio implements chipset.ChipsetDevice.
func (d *Device) SupportsMmio() *chipset.MmioIntercept {
	return &chipset.MmioIntercept{
		Regions: []chipset.Region{
			{
				Address: d.base,
				Size:    d.size,
			},
		},
		Handler: d,
	}
}

// Base returns the MMIO base address.
func (d *Device) Base() uint64 {
	return d.base
}

// Size returns the MMIO region size.
func (d *Device) Size() uint64 {
	return d.size
}

func (d *Device) checkAccess(addr uint64, data []byte) (uint64, error) {
	if addr < d.base || addr+uint64(len(data)) > d.base+d.size {
		return 0, fmt.Errorf("axigpio: address 0x%x out of bounds", addr)
	}
	offset := addr - d.base
	if len(data) != 4 || offset%4 != 0 {
		return 0, fmt.Errorf("axigpio: unsupported %d-byte access at offset 0x%x", len(data), offset)
	}
	return offset, nil
}

// ReadMMIO implements chipset.MmioHandler.
func (d *Device) ReadMMIO(addr uint64, data []byte) error {
	offset, err := d.checkAccess(addr, data)
	if err != nil {
		return err
	}

	d.mu.Lock()
	var value uint32
	switch offset {
	case GPIO_DATA:
		value = d.ch[0].read()
	case GPIO_TRI:
		value = d.ch[0].tri
	case GPIO2_DATA:
		value = d.ch[1].read()
	case GPIO2_TRI:
		value = d.ch[1].tri
	case GIER:
		value = d.gier
	case IP_ISR:
		value = d.isr
	case IP_IER:
		value = d.ier
	}
	d.mu.Unlock()

	binary.LittleEndian.PutUint32(data, value)
	return nil
}

// WriteMMIO implements chipset.MmioHandler.
func (d *Device) WriteMMIO(addr uint64, data []byte) error {
	offset, err := d.checkAccess(addr, data)
	if err != nil {
		return err
	}
	value := binary.LittleEndian.Uint32(data)

	d.mu.Lock()
	switch offset {
	case GPIO_DATA:
		d.ch[0].out = value
	case GPIO_TRI:
		d.ch[0].tri = value
	case GPIO2_DATA:
		d.ch[1].out = value
	case GPIO2_TRI:
		d.ch[1].tri = value
	case GIER:
		d.gier = value & GIER_ENABLE
	case IP_ISR:
		d.isr &^= value
	case IP_IER:
		d.ier = value & (IP_CH1 | IP_CH2)
	}
	level, line := d.levelLocked(), d.irqLine
	d.mu.Unlock()

	line.SetLevel(level)
	return nil
}

// DriveInputs sets the external levels of a channel's pins. A change on any
// input pin latches the channel's status bit when its interrupt is enabled.
func (d *Device) DriveInputs(ch Channel, value uint32) error {
	idx, bit, err := channelIndex(ch)
	if err != nil {
		return err
	}

	d.mu.Lock()
	c := &d.ch[idx]
	changed := (c.in ^ value) & c.tri
	c.in = value
	if changed != 0 && d.ier&bit != 0 {
		d.isr |= bit
	}
	level, line := d.levelLocked(), d.irqLine
	d.mu.Unlock()

	line.SetLevel(level)
	return nil
}

// Outputs returns the output latch of a channel.
func (d *Device) Outputs(ch Channel) (uint32, error) {
	idx, _, err := channelIndex(ch)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ch[idx].out, nil
}

// InterruptStatus returns the raw IP_ISR value.
func (d *Device) InterruptStatus() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isr
}

// SetIRQLine configures the interrupt line.
func (d *Device) SetIRQLine(line chipset.LineInterrupt) {
	d.mu.Lock()
	d.irqLine = line
	level := d.levelLocked()
	d.mu.Unlock()

	line.SetLevel(level)
}

func (d *Device) levelLocked() bool {
	return d.gier&GIER_ENABLE != 0 && d.isr&d.ier != 0
}

func channelIndex(ch Channel) (int, uint32, error) {
	switch ch {
	case Channel1:
		return 0, IP_CH1, nil
	case Channel2:
		return 1, IP_CH2, nil
	default:
		return 0, 0, fmt.Errorf("axigpio: invalid channel %d", ch)
	}
}

var (
	_ chipset.ChipsetDevice = (*Device)(nil)
	_ chipset.MmioHandler   = (*Device)(nil)
)
