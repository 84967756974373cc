// Package sim assembles an emulated board carrying an AXI GPIO core so the
// driver can be attached without hardware.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyrange/zgpio/internal/chipset"
	"github.com/tinyrange/zgpio/internal/devices/axigpio"
	"github.com/tinyrange/zgpio/internal/driver"
	"github.com/tinyrange/zgpio/internal/fdt"
	"github.com/tinyrange/zgpio/internal/iomem"
	"github.com/tinyrange/zgpio/internal/regmap"
)

// DefaultIRQ is the interrupt line the emulated core is wired to.
const DefaultIRQ = 29

const gpioDevice = "axi-gpio"

var errForeignWindow = errors.New("sim: window was not mapped by this board")

// Board is an emulated system bus with one AXI GPIO core.
type Board struct {
	regions *iomem.Regions
	lines   *chipset.LineSet
	chipset *chipset.Chipset
	gpio    *axigpio.Device
	irq     uint32

	mu     sync.Mutex
	mapped map[*regmap.Bus]struct{}
}

// NewBoard returns a board with the GPIO core at its default address.
func NewBoard() (*Board, error) {
	return NewBoardAt(axigpio.DefaultBase, DefaultIRQ)
}

// NewBoardAt returns a board with the GPIO core at base raising irq.
func NewBoardAt(base uint64, irq uint32) (*Board, error) {
	lines := chipset.NewLineSet()
	dev := axigpio.New(base, lines.AllocateLine(irq))

	builder := chipset.NewBuilder()
	if err := builder.RegisterDevice(gpioDevice, dev); err != nil {
		return nil, fmt.Errorf("sim: register gpio: %w", err)
	}
	cs, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("sim: build chipset: %w", err)
	}

	return &Board{
		regions: iomem.NewRegions(),
		lines:   lines,
		chipset: cs,
		gpio:    dev,
		irq:     irq,
		mapped:  make(map[*regmap.Bus]struct{}),
	}, nil
}

// GPIO returns the emulated core, for driving input pins.
func (b *Board) GPIO() *axigpio.Device {
	return b.gpio
}

// Lines returns the board's interrupt lines.
func (b *Board) Lines() *chipset.LineSet {
	return b.lines
}

// Regions returns the board's I/O memory claims.
func (b *Board) Regions() *iomem.Regions {
	return b.regions
}

// IRQ returns the line the GPIO core is wired to.
func (b *Board) IRQ() uint32 {
	return b.irq
}

// Reset returns every device on the board to its power-on state.
func (b *Board) Reset() error {
	return b.chipset.Reset()
}

// Map returns a window over [base, base+size) on the board bus. Both ends of
// the range must decode to a device.
func (b *Board) Map(base, size uint64) (regmap.Window, error) {
	if size < 4 {
		return nil, fmt.Errorf("sim: window of %d bytes is too small", size)
	}
	var word [4]byte
	for _, addr := range []uint64{base, base + size - 4} {
		if err := b.chipset.HandleMMIO(addr, word[:], false); err != nil {
			return nil, fmt.Errorf("sim: map %#x+%#x: %w", base, size, err)
		}
	}

	w := regmap.NewBus(b.chipset, base, size)
	b.mu.Lock()
	b.mapped[w] = struct{}{}
	b.mu.Unlock()
	return w, nil
}

// Unmap releases a window returned by Map.
func (b *Board) Unmap(w regmap.Window) error {
	bus, ok := w.(*regmap.Bus)
	if !ok {
		return errForeignWindow
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mapped[bus]; !ok {
		return errForeignWindow
	}
	delete(b.mapped, bus)
	return nil
}

// Mapped returns the number of windows currently mapped.
func (b *Board) Mapped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mapped)
}

// Describe returns the hardware description of the board.
func (b *Board) Describe() fdt.Node {
	return fdt.Node{
		Name: "/",
		Children: []fdt.Node{{
			Name: "amba",
			Children: []fdt.Node{{
				Name: fmt.Sprintf("gpio@%x", b.gpio.Base()),
				Properties: map[string]fdt.Property{
					"compatible": {Strings: append([]string(nil), driver.Compatible...)},
					"reg":        {U64: []uint64{b.gpio.Base(), b.gpio.Size()}},
					"interrupts": {U32: []uint32{0, b.irq, 4}},
				},
			}},
		}},
	}
}

// Platform returns driver collaborators backed by the board, publishing
// sessions through channels.
func (b *Board) Platform(channels driver.ChannelAllocator) driver.Platform {
	return driver.Platform{
		Regions:  b.regions,
		Mapper:   b,
		IRQs:     b.lines,
		Channels: channels,
	}
}

var _ driver.Mapper = (*Board)(nil)
