// Package driver attaches the GPIO peripheral: it acquires the register
// window and interrupt line, publishes a control session, and tears it all
// down again in reverse order.
package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/regmap"
	"github.com/tinyrange/zgpio/internal/session"
)

// DriverName is the name resources are claimed under.
const DriverName = "zgpio"

var (
	ErrAlreadyAttached = errors.New("zgpio: already attached")
	ErrNotAttached     = errors.New("zgpio: not attached")
	ErrMap             = errors.New("zgpio: could not map register window")
	ErrChannel         = errors.New("zgpio: could not allocate control channel")
)

// State is the attach progress of a Driver.
type State int

const (
	Unattached State = iota
	WindowClaimed
	ControllerReady
	InterruptBound
	SessionAllocated
	Detaching
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case WindowClaimed:
		return "window-claimed"
	case ControllerReady:
		return "controller-ready"
	case InterruptBound:
		return "interrupt-bound"
	case SessionAllocated:
		return "attached"
	case Detaching:
		return "detaching"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type undoStep struct {
	name string
	fn   func() error
}

// cleanupStack records release steps for acquired resources.
type cleanupStack []undoStep

func (c *cleanupStack) push(name string, fn func() error) {
	*c = append(*c, undoStep{name: name, fn: fn})
}

// unwind runs every step newest first. Failures are logged and do not stop
// the remaining steps; the first one is returned.
func (c *cleanupStack) unwind(device string) error {
	var first error
	steps := *c
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i].fn(); err != nil {
			slog.Warn("zgpio: teardown step failed", "device", device, "step", steps[i].name, "err", err)
			if first == nil {
				first = fmt.Errorf("%s: %w", steps[i].name, err)
			}
		}
	}
	*c = nil
	return first
}

// Driver manages the single attached peripheral instance.
type Driver struct {
	cfg      gpio.Config
	platform Platform

	mu       sync.Mutex
	state    State
	res      Resources
	window   regmap.Window
	ctrl     *gpio.Controller
	sess     *session.Session
	bridge   *Bridge
	minor    int
	teardown cleanupStack
}

// New returns an unattached Driver using cfg as the register layout.
func New(cfg gpio.Config, platform Platform) *Driver {
	return &Driver{cfg: cfg, platform: platform, minor: -1}
}

// Attach acquires res and brings the peripheral up. On failure every
// resource acquired so far is released in reverse order.
//
// When res has no interrupt the window stays claimed and mapped but no
// control session is created, and Attach reports success.
func (d *Driver) Attach(res Resources) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != Unattached {
		return ErrAlreadyAttached
	}
	if err := d.cfg.Validate(res.Size); err != nil {
		return err
	}

	var undo cleanupStack
	defer func() {
		if err != nil {
			undo.unwind(res.Name)
			d.reset()
		}
	}()

	p := d.platform

	if err := p.Regions.Claim(res.Name, res.Base, res.Size); err != nil {
		slog.Error("zgpio: couldn't lock memory region", "base", fmt.Sprintf("%#x", res.Base), "err", err)
		return fmt.Errorf("zgpio: claim region: %w", err)
	}
	undo.push("release region", func() error {
		if !p.Regions.Release(res.Base, res.Size) {
			return fmt.Errorf("region at %#x was not claimed", res.Base)
		}
		return nil
	})
	d.state = WindowClaimed

	window, err := p.Mapper.Map(res.Base, res.Size)
	if err != nil {
		slog.Error("zgpio: could not map iomem", "base", fmt.Sprintf("%#x", res.Base), "err", err)
		return fmt.Errorf("%w: %w", ErrMap, err)
	}
	undo.push("unmap window", func() error {
		return p.Mapper.Unmap(window)
	})

	if !res.HasIRQ {
		slog.Warn("zgpio: no IRQ found, control channel not created", "base", fmt.Sprintf("%#x", res.Base))
		d.res = res
		d.window = window
		d.teardown = undo
		return nil
	}

	ctrl := gpio.NewController(window, d.cfg)
	sess := session.New(ctrl)
	bridge := NewBridge(ctrl, sess)
	d.state = ControllerReady

	if err := p.IRQs.Bind(res.IRQ, res.Name, bridge.HandleInterrupt); err != nil {
		slog.Error("zgpio: could not allocate interrupt", "irq", res.IRQ, "err", err)
		return fmt.Errorf("zgpio: bind irq %d: %w", res.IRQ, err)
	}
	undo.push("unbind interrupt", func() error {
		p.IRQs.Unbind(res.IRQ)
		return nil
	})
	d.state = InterruptBound

	minor, err := p.Channels.Allocate(res.Name, sess)
	if err != nil {
		slog.Error("zgpio: can't allocate control channel", "err", err)
		return fmt.Errorf("%w: %w", ErrChannel, err)
	}
	undo.push("release channel", func() error {
		return p.Channels.Release(minor)
	})
	d.state = SessionAllocated

	ctrl.ApplyStartup()

	slog.Info("zgpio: attached",
		"base", fmt.Sprintf("%#x", res.Base),
		"size", fmt.Sprintf("%#x", res.Size),
		"irq", res.IRQ,
		"channel", minor)

	d.res = res
	d.window = window
	d.ctrl = ctrl
	d.sess = sess
	d.bridge = bridge
	d.minor = minor
	d.teardown = undo
	return nil
}

// Detach releases every resource in reverse acquisition order. All steps
// run even if some fail; the first failure is returned for reporting.
func (d *Driver) Detach() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == Unattached {
		return ErrNotAttached
	}
	d.state = Detaching

	err := d.teardown.unwind(d.res.Name)
	slog.Info("zgpio: detached", "base", fmt.Sprintf("%#x", d.res.Base))
	d.reset()
	return err
}

func (d *Driver) reset() {
	d.state = Unattached
	d.res = Resources{}
	d.window = nil
	d.ctrl = nil
	d.sess = nil
	d.bridge = nil
	d.minor = -1
	d.teardown = nil
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Session returns the control session, or nil when none exists.
func (d *Driver) Session() *session.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess
}

// Bridge returns the interrupt bridge, or nil when no interrupt is bound.
func (d *Driver) Bridge() *Bridge {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bridge
}

// Channel returns the allocated control channel number, or -1.
func (d *Driver) Channel() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minor
}

// Window returns the mapped register window, or nil when unattached.
func (d *Driver) Window() regmap.Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}
