//go:build linux

package gpiod

import (
	"github.com/tinyrange/zgpio/internal/driver"
	"github.com/tinyrange/zgpio/internal/host"
	"github.com/tinyrange/zgpio/internal/iomem"
	"github.com/tinyrange/zgpio/internal/ipc"
)

func hostPlatform(opts Options, regions *iomem.Regions, registry *ipc.Registry) (driver.Platform, error) {
	p := driver.Platform{
		Regions:  regions,
		Mapper:   host.NewDevMem(opts.MemPath),
		IRQs:     noIRQ{},
		Channels: registry,
	}
	if opts.UIOPath != "" {
		p.Mapper = host.NewUIOMap(opts.UIOPath)
		p.IRQs = host.NewUIO(opts.UIOPath)
	}
	return p, nil
}
