package chipset

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrOverlap   = errors.New("chipset: overlapping MMIO region")
	ErrDuplicate = errors.New("chipset: device already registered")
)

type mmioBinding struct {
	region  Region
	device  string
	handler MmioHandler
}

// ChipsetBuilder collects devices for a Chipset. Registration order decides
// reset order.
type ChipsetBuilder struct {
	devices map[string]ChipsetDevice
	order   []string
	mmio    []mmioBinding
}

// NewBuilder returns an empty ChipsetBuilder.
func NewBuilder() *ChipsetBuilder {
	return &ChipsetBuilder{devices: make(map[string]ChipsetDevice)}
}

// RegisterDevice places dev on the bus under name. Either all of the
// device's regions are bound or none are.
func (b *ChipsetBuilder) RegisterDevice(name string, dev ChipsetDevice) error {
	switch {
	case name == "":
		return fmt.Errorf("chipset: empty device name")
	case dev == nil:
		return fmt.Errorf("chipset: device %q is nil", name)
	}
	if _, ok := b.devices[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}

	var pending []mmioBinding
	if ic := dev.SupportsMmio(); ic != nil {
		if ic.Handler == nil {
			return fmt.Errorf("chipset: device %q has MMIO regions but no handler", name)
		}
		for _, r := range ic.Regions {
			nb := mmioBinding{region: r, device: name, handler: ic.Handler}
			if err := checkRegion(r, b.mmio, pending); err != nil {
				return fmt.Errorf("chipset: device %q: %w", name, err)
			}
			pending = append(pending, nb)
		}
	}

	b.mmio = append(b.mmio, pending...)
	b.devices[name] = dev
	b.order = append(b.order, name)
	return nil
}

func checkRegion(r Region, sets ...[]mmioBinding) error {
	if r.Size == 0 {
		return fmt.Errorf("region at %#x has zero size", r.Address)
	}
	if r.End() < r.Address {
		return fmt.Errorf("region at %#x wraps the address space", r.Address)
	}
	for _, set := range sets {
		for _, other := range set {
			if r.Address < other.region.End() && other.region.Address < r.End() {
				return fmt.Errorf("%w: [%#x, %#x) and %q [%#x, %#x)", ErrOverlap,
					r.Address, r.End(), other.device, other.region.Address, other.region.End())
			}
		}
	}
	return nil
}

// Build returns a Chipset holding a snapshot of the registered devices.
func (b *ChipsetBuilder) Build() (*Chipset, error) {
	if len(b.devices) == 0 {
		return nil, fmt.Errorf("chipset: no devices registered")
	}

	cs := &Chipset{
		devices: make(map[string]ChipsetDevice, len(b.devices)),
		order:   append([]string(nil), b.order...),
		mmio:    append([]mmioBinding(nil), b.mmio...),
	}
	for name, dev := range b.devices {
		cs.devices[name] = dev
	}
	sort.Slice(cs.mmio, func(i, j int) bool {
		return cs.mmio[i].region.Address < cs.mmio[j].region.Address
	})
	return cs, nil
}
