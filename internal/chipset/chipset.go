package chipset

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnmapped is returned for bus accesses no device decodes.
var ErrUnmapped = errors.New("chipset: no device at address")

// Chipset routes bus accesses to the devices placed on it.
type Chipset struct {
	devices map[string]ChipsetDevice
	order   []string
	mmio    []mmioBinding // sorted by region start
}

// Reset resets every device in registration order and stops at the first
// failure.
func (c *Chipset) Reset() error {
	for _, name := range c.order {
		if err := c.devices[name].Reset(); err != nil {
			return fmt.Errorf("chipset: reset %q: %w", name, err)
		}
	}
	return nil
}

// Device returns the device registered under name.
func (c *Chipset) Device(name string) (ChipsetDevice, bool) {
	dev, ok := c.devices[name]
	return dev, ok
}

// HandleMMIO performs one bus access. The whole access must fall inside a
// single device region.
func (c *Chipset) HandleMMIO(addr uint64, data []byte, isWrite bool) error {
	b, ok := c.lookup(addr, uint64(len(data)))
	if !ok {
		return fmt.Errorf("%w: %#016x (%d bytes)", ErrUnmapped, addr, len(data))
	}
	if isWrite {
		return b.handler.WriteMMIO(addr, data)
	}
	return b.handler.ReadMMIO(addr, data)
}

func (c *Chipset) lookup(addr, n uint64) (mmioBinding, bool) {
	end := addr + n
	if end < addr {
		return mmioBinding{}, false
	}
	// First region starting after addr; the candidate is the one before it.
	i := sort.Search(len(c.mmio), func(i int) bool {
		return c.mmio[i].region.Address > addr
	})
	if i == 0 {
		return mmioBinding{}, false
	}
	b := c.mmio[i-1]
	if end > b.region.End() {
		return mmioBinding{}, false
	}
	return b, true
}
