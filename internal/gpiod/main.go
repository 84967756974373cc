// Package gpiod runs the zgpio daemon: it attaches the driver to one GPIO
// peripheral and serves its control channel until told to stop.
package gpiod

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/zgpio/internal/driver"
	"github.com/tinyrange/zgpio/internal/fdt"
	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/iomem"
	"github.com/tinyrange/zgpio/internal/ipc"
	"github.com/tinyrange/zgpio/internal/sim"
)

// Options configures a daemon run.
type Options struct {
	// ConfigPath is a YAML register layout. Empty means the default layout.
	ConfigPath string
	// BoardPath is a YAML hardware description. Required unless Sim is set.
	BoardPath string
	// SocketDir receives the control channel sockets.
	SocketDir string
	// Sim attaches to an emulated board instead of hardware.
	Sim bool
	// MemPath is the physical memory device.
	MemPath string
	// UIOPath is a UIO device used for the register window and interrupt.
	UIOPath string

	// Ready, if set, is called with the control channel socket path once
	// the driver is attached.
	Ready func(socketPath string)
}

var errNoDevice = errors.New("gpiod: no compatible device in board description")

// Main runs the zgpiod process.
func Main() {
	var opts Options
	flag.StringVar(&opts.ConfigPath, "config", "", "YAML register layout (default: AXI GPIO layout)")
	flag.StringVar(&opts.BoardPath, "board", "", "YAML hardware description")
	flag.StringVar(&opts.SocketDir, "socket-dir", ipc.DefaultSocketDir(), "directory for control channel sockets")
	flag.BoolVar(&opts.Sim, "sim", false, "attach to an emulated board")
	flag.StringVar(&opts.MemPath, "mem", "/dev/mem", "physical memory device")
	flag.StringVar(&opts.UIOPath, "uio", "", "UIO device for registers and interrupt (e.g. /dev/uio0)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "zgpiod: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signalNotify(sigCh)
	go func() {
		sig := <-sigCh
		slog.Info("zgpiod: shutting down", "signal", sig)
		cancel()
	}()

	if err := Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "zgpiod: %v\n", err)
		os.Exit(1)
	}
}

// Run attaches the driver, serves until ctx is done and detaches again.
func Run(ctx context.Context, opts Options) error {
	cfg := gpio.DefaultConfig()
	if opts.ConfigPath != "" {
		var err error
		cfg, err = gpio.LoadConfig(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("gpiod: load config: %w", err)
		}
	}

	registry := ipc.NewRegistry(opts.SocketDir)
	defer registry.Close()

	var (
		platform driver.Platform
		root     fdt.Node
	)
	if opts.Sim {
		board, err := sim.NewBoard()
		if err != nil {
			return err
		}
		platform = board.Platform(registry)
		root = board.Describe()
		slog.Info("zgpiod: using emulated board", "base", fmt.Sprintf("%#x", board.GPIO().Base()), "irq", board.IRQ())
	} else {
		if opts.BoardPath == "" {
			return fmt.Errorf("gpiod: -board is required without -sim")
		}
		var err error
		root, err = fdt.LoadBoard(opts.BoardPath)
		if err != nil {
			return fmt.Errorf("gpiod: load board: %w", err)
		}
	}

	node, ok := root.FindCompatible(driver.Compatible...)
	if !ok {
		return errNoDevice
	}
	if !opts.Sim {
		var err error
		platform, err = hostPlatform(opts, iomem.NewRegions(), registry)
		if err != nil {
			return err
		}
	}
	res, err := driver.ResourcesFromNode(node)
	if err != nil {
		return err
	}

	d := driver.New(cfg, platform)
	if err := d.Attach(res); err != nil {
		return err
	}
	defer func() {
		if err := d.Detach(); err != nil {
			slog.Warn("zgpiod: detach incomplete", "err", err)
		}
	}()

	if ch := d.Channel(); ch >= 0 {
		path := registry.Path(ch)
		slog.Info("zgpiod: control channel ready", "node", node.Name, "socket", path)
		if opts.Ready != nil {
			opts.Ready(path)
		}
	} else {
		slog.Warn("zgpiod: running without control channel", "node", node.Name)
	}

	<-ctx.Done()
	return nil
}
