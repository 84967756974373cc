package chipset

// Region is a range of bus addresses served by a device.
type Region struct {
	Address uint64
	Size    uint64
}

// End returns the first address after the region.
func (r Region) End() uint64 {
	return r.Address + r.Size
}

// MmioHandler handles reads and writes to memory-mapped regions.
type MmioHandler interface {
	ReadMMIO(addr uint64, data []byte) error
	WriteMMIO(addr uint64, data []byte) error
}

// MmioIntercept describes the MMIO regions a device serves and the handler for them.
type MmioIntercept struct {
	Regions []Region
	Handler MmioHandler
}

// LineInterrupt models an interrupt line driven by a device.
type LineInterrupt interface {
	SetLevel(high bool)
	PulseInterrupt()
}

// LineInterruptDetached returns a line that is not wired to anything.
func LineInterruptDetached() LineInterrupt {
	return lineInterruptFunc(nil)
}

// LineInterruptFromFunc drives a line through fn. A pulse is reported as a
// rising level followed by a falling one.
func LineInterruptFromFunc(fn func(high bool)) LineInterrupt {
	return lineInterruptFunc(fn)
}

type lineInterruptFunc func(bool)

func (f lineInterruptFunc) SetLevel(high bool) {
	if f == nil {
		return
	}
	f(high)
}

func (f lineInterruptFunc) PulseInterrupt() {
	f.SetLevel(true)
	f.SetLevel(false)
}

// ChipsetDevice is the interface emulated devices implement to be placed on
// the bus.
type ChipsetDevice interface {
	Reset() error
	SupportsMmio() *MmioIntercept
}
