package chipset

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrLineBusy is returned when binding a handler to a line that already has one.
var ErrLineBusy = errors.New("chipset: interrupt line already bound")

// StormLimit is the number of back-to-back handler invocations on a line
// that stays asserted before the line is masked.
const StormLimit = 64

// IRQHandler services an interrupt. It reports whether the interrupt was
// raised by its device.
type IRQHandler func() bool

// LineSet manages level-triggered interrupt lines and the handlers bound to
// them. A handler runs whenever its line is asserted, and is re-entered for
// as long as the line stays asserted after it returns.
type LineSet struct {
	mu    sync.Mutex
	lines map[uint32]*lineState
}

type lineState struct {
	level       bool
	name        string
	handler     IRQHandler
	dispatching bool
	masked      bool
	unhandled   uint64
}

// NewLineSet returns an empty LineSet.
func NewLineSet() *LineSet {
	return &LineSet{
		lines: make(map[uint32]*lineState),
	}
}

func (l *LineSet) stateLocked(irq uint32) *lineState {
	state := l.lines[irq]
	if state == nil {
		state = &lineState{}
		l.lines[irq] = state
	}
	return state
}

// AllocateLine returns a LineInterrupt handle for the given IRQ line.
func (l *LineSet) AllocateLine(irq uint32) LineInterrupt {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stateLocked(irq)
	return &lineHandle{owner: l, irq: irq}
}

// Bind attaches handler to irq. If the line is already asserted the handler
// runs before Bind returns.
func (l *LineSet) Bind(irq uint32, name string, handler IRQHandler) error {
	if handler == nil {
		return fmt.Errorf("chipset: nil handler for line %d", irq)
	}

	l.mu.Lock()
	state := l.stateLocked(irq)
	if state.handler != nil {
		owner := state.name
		l.mu.Unlock()
		return fmt.Errorf("%w: line %d owned by %q", ErrLineBusy, irq, owner)
	}
	state.name = name
	state.handler = handler
	state.masked = false
	pending := state.level
	l.mu.Unlock()

	if pending {
		l.dispatch(irq)
	}
	return nil
}

// Unbind detaches the handler from irq. Unbinding a free line does nothing.
func (l *LineSet) Unbind(irq uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.lines[irq]; ok {
		state.handler = nil
		state.name = ""
		state.masked = false
	}
}

// Bound reports whether a handler is attached to irq.
func (l *LineSet) Bound(irq uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.lines[irq]
	return ok && state.handler != nil
}

// Level reports the current level of irq.
func (l *LineSet) Level(irq uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.lines[irq]
	return ok && state.level
}

// Masked reports whether irq was masked after an interrupt storm.
func (l *LineSet) Masked(irq uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.lines[irq]
	return ok && state.masked
}

type lineHandle struct {
	owner *LineSet
	irq   uint32
}

func (h *lineHandle) SetLevel(high bool) {
	h.owner.setLevel(h.irq, high)
}

func (h *lineHandle) PulseInterrupt() {
	h.owner.setLevel(h.irq, true)
	h.owner.setLevel(h.irq, false)
}

func (l *LineSet) setLevel(irq uint32, high bool) {
	l.mu.Lock()
	state := l.stateLocked(irq)
	raised := high && !state.level
	state.level = high
	l.mu.Unlock()

	if raised {
		l.dispatch(irq)
	}
}

// dispatch runs the bound handler until the line drops. Only one dispatch
// per line runs at a time; level changes made by the handler itself are
// picked up by the loop.
func (l *LineSet) dispatch(irq uint32) {
	l.mu.Lock()
	state := l.stateLocked(irq)
	if state.handler == nil || state.masked || state.dispatching {
		l.mu.Unlock()
		return
	}
	state.dispatching = true
	handler := state.handler

	for n := 0; ; n++ {
		if n == StormLimit {
			state.masked = true
			slog.Warn("chipset: interrupt storm, masking line", "irq", irq, "owner", state.name)
			break
		}
		l.mu.Unlock()
		handled := handler()
		l.mu.Lock()
		if !handled {
			state.unhandled++
		}
		if !state.level || state.handler == nil {
			break
		}
	}

	state.dispatching = false
	l.mu.Unlock()
}
