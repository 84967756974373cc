// Package regmap provides 32-bit register access over a memory-mapped
// register window.
package regmap

import (
	"fmt"
	"sync/atomic"
)

// Window is a fixed-size block of device registers.
//
// Accesses are performed in call order. Offsets are byte offsets from the
// start of the window and must be 4-byte aligned and inside the window;
// anything else is a programming error and panics.
type Window interface {
	Read32(off uint64) uint32
	Write32(off uint64, value uint32)
	Size() uint64
}

func checkAccess(size, off uint64) {
	if off%4 != 0 {
		panic(fmt.Sprintf("regmap: unaligned register offset %#x", off))
	}
	if off >= size || size-off < 4 {
		panic(fmt.Sprintf("regmap: register offset %#x outside window of size %#x", off, size))
	}
}

// Memory is a Window backed by ordinary memory. It behaves like a bank of
// plain read/write registers with no side effects.
type Memory struct {
	words []uint32
}

// NewMemory returns a zeroed Memory window of size bytes, rounded up to a
// whole number of registers.
func NewMemory(size uint64) *Memory {
	return &Memory{words: make([]uint32, (size+3)/4)}
}

// Read32 implements Window.
func (m *Memory) Read32(off uint64) uint32 {
	checkAccess(m.Size(), off)
	return atomic.LoadUint32(&m.words[off/4])
}

// Write32 implements Window.
func (m *Memory) Write32(off uint64, value uint32) {
	checkAccess(m.Size(), off)
	atomic.StoreUint32(&m.words[off/4], value)
}

// Size implements Window.
func (m *Memory) Size() uint64 {
	return uint64(len(m.words)) * 4
}

var _ Window = (*Memory)(nil)
