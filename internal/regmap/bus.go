package regmap

import (
	"encoding/binary"
	"fmt"
)

// BusHandler dispatches raw MMIO accesses, for example a chipset.Chipset.
type BusHandler interface {
	HandleMMIO(addr uint64, data []byte, isWrite bool) error
}

// Bus is a Window that forwards every access to a BusHandler at a fixed
// base address. It is used to drive emulated peripherals through the same
// code path as real hardware.
type Bus struct {
	bus  BusHandler
	base uint64
	size uint64
}

// NewBus returns a Window of size bytes located at base on bus.
func NewBus(bus BusHandler, base, size uint64) *Bus {
	return &Bus{bus: bus, base: base, size: size}
}

// Read32 implements Window.
func (b *Bus) Read32(off uint64) uint32 {
	checkAccess(b.size, off)
	var buf [4]byte
	if err := b.bus.HandleMMIO(b.base+off, buf[:], false); err != nil {
		panic(fmt.Sprintf("regmap: bus read at %#x: %v", b.base+off, err))
	}
	return binary.LittleEndian.Uint32(buf[:])
}

// Write32 implements Window.
func (b *Bus) Write32(off uint64, value uint32) {
	checkAccess(b.size, off)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	if err := b.bus.HandleMMIO(b.base+off, buf[:], true); err != nil {
		panic(fmt.Sprintf("regmap: bus write at %#x: %v", b.base+off, err))
	}
}

// Size implements Window.
func (b *Bus) Size() uint64 {
	return b.size
}

// Base returns the bus address of the window.
func (b *Bus) Base() uint64 {
	return b.base
}

var _ Window = (*Bus)(nil)
