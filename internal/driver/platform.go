package driver

import (
	"errors"
	"fmt"

	"github.com/tinyrange/zgpio/internal/chipset"
	"github.com/tinyrange/zgpio/internal/fdt"
	"github.com/tinyrange/zgpio/internal/regmap"
	"github.com/tinyrange/zgpio/internal/session"
)

// Compatible lists the hardware description strings the driver binds to.
var Compatible = []string{
	"xlnx,axi-gpio-1.01.b",
	"xlnx,xps-gpio-1.00.a",
}

// ErrNoMemResource is returned when a hardware description has no register window.
var ErrNoMemResource = errors.New("zgpio: invalid address")

// Resources describes one peripheral instance as found by enumeration.
type Resources struct {
	Name   string
	Base   uint64
	Size   uint64
	IRQ    uint32
	HasIRQ bool
}

// ResourcesFromNode extracts the register window and interrupt from a
// hardware description node.
func ResourcesFromNode(n fdt.Node) (Resources, error) {
	base, size, ok := n.Reg()
	if !ok {
		return Resources{}, fmt.Errorf("%w: node %q has no reg", ErrNoMemResource, n.Name)
	}
	res := Resources{
		Name: DriverName,
		Base: base,
		Size: size,
	}
	res.IRQ, res.HasIRQ = n.Interrupt()
	return res, nil
}

// RegionClaimer grants exclusive ownership of an I/O memory range.
type RegionClaimer interface {
	Claim(name string, base, size uint64) error
	Release(base, size uint64) bool
}

// Mapper makes a claimed range addressable.
type Mapper interface {
	Map(base, size uint64) (regmap.Window, error)
	Unmap(w regmap.Window) error
}

// IRQBinder attaches an interrupt handler to a hardware line. The handler
// runs on the interrupt path and must not block.
type IRQBinder interface {
	Bind(irq uint32, name string, handler chipset.IRQHandler) error
	Unbind(irq uint32)
}

// ChannelAllocator publishes a session as a numbered control channel.
type ChannelAllocator interface {
	Allocate(name string, s *session.Session) (int, error)
	Release(minor int) error
}

// Platform bundles the collaborators the driver acquires resources from.
type Platform struct {
	Regions  RegionClaimer
	Mapper   Mapper
	IRQs     IRQBinder
	Channels ChannelAllocator
}
