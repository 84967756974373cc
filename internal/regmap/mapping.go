//go:build linux

package regmap

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is a Window over a shared mmap of a device file such as /dev/mem
// or a UIO map. Every access is a single aligned 32-bit load or store.
type Mapping struct {
	mem  []byte // whole mapping, page aligned
	regs []byte // the register window inside mem
}

// MapFile maps size bytes of the register window located at offset in the
// file at path. offset need not be page aligned.
func MapFile(path string, offset, size uint64) (*Mapping, error) {
	if size == 0 {
		return nil, fmt.Errorf("regmap: cannot map zero-size window")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("regmap: open %s: %w", path, err)
	}
	defer f.Close()

	pageSize := uint64(os.Getpagesize())
	pageBase := offset &^ (pageSize - 1)
	delta := offset - pageBase
	length := alignUp(delta+size, pageSize)

	mem, err := unix.Mmap(int(f.Fd()), int64(pageBase), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("regmap: mmap %s at %#x: %w", path, pageBase, err)
	}

	return &Mapping{
		mem:  mem,
		regs: mem[delta : delta+size],
	}, nil
}

// Read32 implements Window.
func (m *Mapping) Read32(off uint64) uint32 {
	checkAccess(m.Size(), off)
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&m.regs[off])))
}

// Write32 implements Window.
func (m *Mapping) Write32(off uint64, value uint32) {
	checkAccess(m.Size(), off)
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&m.regs[off])), value)
}

// Size implements Window.
func (m *Mapping) Size() uint64 {
	return uint64(len(m.regs))
}

// Unmap releases the mapping. The Mapping must not be used afterwards.
func (m *Mapping) Unmap() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	m.regs = nil
	return err
}

func alignUp(value, align uint64) uint64 {
	if align == 0 {
		return value
	}
	mask := align - 1
	return (value + mask) &^ mask
}

var _ Window = (*Mapping)(nil)
