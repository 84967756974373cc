//go:build !linux

package gpiod

import (
	"fmt"
	"runtime"

	"github.com/tinyrange/zgpio/internal/driver"
	"github.com/tinyrange/zgpio/internal/iomem"
	"github.com/tinyrange/zgpio/internal/ipc"
)

func hostPlatform(opts Options, regions *iomem.Regions, registry *ipc.Registry) (driver.Platform, error) {
	return driver.Platform{}, fmt.Errorf("gpiod: hardware access is not supported on %s, use -sim", runtime.GOOS)
}
