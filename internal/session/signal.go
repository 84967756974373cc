//go:build unix

package session

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// SignalSubscriber notifies a process by sending it SIGIO.
type SignalSubscriber struct {
	PID int
}

// NotifyInputReady implements Subscriber.
func (s SignalSubscriber) NotifyInputReady() {
	if err := unix.Kill(s.PID, unix.SIGIO); err != nil {
		slog.Warn("zgpio: signal subscriber", "pid", s.PID, "err", err)
	}
}

var _ Subscriber = SignalSubscriber{}
