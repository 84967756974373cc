package gpiod

import (
	"errors"

	"github.com/tinyrange/zgpio/internal/chipset"
	"github.com/tinyrange/zgpio/internal/driver"
	"github.com/tinyrange/zgpio/internal/ipc"
)

var errNoIRQSource = errors.New("gpiod: no interrupt source configured, pass -uio")

// noIRQ refuses every bind. It is used on hardware when no UIO device was
// given.
type noIRQ struct{}

func (noIRQ) Bind(irq uint32, name string, handler chipset.IRQHandler) error {
	return errNoIRQSource
}

func (noIRQ) Unbind(irq uint32) {}

var (
	_ driver.IRQBinder        = noIRQ{}
	_ driver.ChannelAllocator = (*ipc.Registry)(nil)
)
