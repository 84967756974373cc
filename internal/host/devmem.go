//go:build linux

// Package host provides driver collaborators backed by real hardware on
// Linux: register windows mapped from /dev/mem or a UIO device, and
// interrupts delivered through UIO.
package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyrange/zgpio/internal/regmap"
)

// DefaultMemPath is the physical memory device.
const DefaultMemPath = "/dev/mem"

var errForeignWindow = errors.New("host: window was not mapped here")

// DevMem maps register windows from a memory device file.
type DevMem struct {
	path     string
	physical bool

	mu     sync.Mutex
	mapped map[*regmap.Mapping]struct{}
}

// NewDevMem maps windows at their physical address in path, normally
// /dev/mem.
func NewDevMem(path string) *DevMem {
	return &DevMem{path: path, physical: true, mapped: make(map[*regmap.Mapping]struct{})}
}

// NewUIOMap maps map0 of a UIO device. The window base is ignored because
// the kernel places map0 at offset zero of the device file.
func NewUIOMap(dev string) *DevMem {
	return &DevMem{path: dev, mapped: make(map[*regmap.Mapping]struct{})}
}

// Map maps size bytes of the window at base.
func (m *DevMem) Map(base, size uint64) (regmap.Window, error) {
	var offset uint64
	if m.physical {
		offset = base
	}
	mp, err := regmap.MapFile(m.path, offset, size)
	if err != nil {
		return nil, fmt.Errorf("host: map %#x: %w", base, err)
	}
	m.mu.Lock()
	m.mapped[mp] = struct{}{}
	m.mu.Unlock()
	return mp, nil
}

// Unmap releases a window returned by Map.
func (m *DevMem) Unmap(w regmap.Window) error {
	mp, ok := w.(*regmap.Mapping)
	if !ok {
		return errForeignWindow
	}
	m.mu.Lock()
	_, ok = m.mapped[mp]
	delete(m.mapped, mp)
	m.mu.Unlock()
	if !ok {
		return errForeignWindow
	}
	return mp.Unmap()
}
