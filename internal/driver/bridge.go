package driver

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/session"
)

// Bridge forwards peripheral interrupts to the session subscriber.
//
// HandleInterrupt runs on the interrupt path. It never takes the session
// lock, so its status acknowledge can interleave with a command in
// progress; status-register accesses are not serialized against data
// register accesses.
type Bridge struct {
	ctrl *gpio.Controller
	sess *session.Session

	interrupts atomic.Uint64
	notified   atomic.Uint64
	spurious   atomic.Uint64
}

// BridgeStats is a snapshot of interrupt counters.
type BridgeStats struct {
	Interrupts uint64
	Notified   uint64
	Spurious   uint64
}

// NewBridge returns a Bridge for ctrl notifying the subscriber of sess.
func NewBridge(ctrl *gpio.Controller, sess *session.Session) *Bridge {
	return &Bridge{ctrl: ctrl, sess: sess}
}

// HandleInterrupt acknowledges the peripheral and then notifies the
// subscriber once. The status is cleared before notifying because the line
// is level triggered. The interrupt is always reported handled; a zero
// status is only counted as spurious.
func (b *Bridge) HandleInterrupt() bool {
	st := b.ctrl.AcknowledgeInterrupts()
	b.interrupts.Add(1)

	if st == 0 {
		b.spurious.Add(1)
		slog.Debug("zgpio: interrupt with empty status")
	} else {
		slog.Debug("zgpio: interrupt", "status", fmt.Sprintf("%#x", st), "banks", b.ctrl.PendingBanks(st))
	}

	if sub := b.sess.Subscriber(); sub != nil {
		sub.NotifyInputReady()
		b.notified.Add(1)
	}
	return true
}

// Stats returns the interrupt counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		Interrupts: b.interrupts.Load(),
		Notified:   b.notified.Load(),
		Spurious:   b.spurious.Load(),
	}
}
