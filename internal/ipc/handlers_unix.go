//go:build unix

package ipc

import (
	"fmt"
	"log/slog"

	"github.com/tinyrange/zgpio/internal/session"
)

func (s *Server) registerPlatformHandlers() {
	s.mux.Handle(MsgSubscribeSignal, s.handleSubscribeSignal)
}

func (s *Server) handleSubscribeSignal(c *Conn, _ uint16, dec *Decoder) ([]byte, error) {
	if dec.Remaining() != 4 {
		return nil, &IPCError{
			Code:    ErrCodeFault,
			Message: fmt.Sprintf("expected 4 byte pid, got %d", dec.Remaining()),
			Op:      "SubscribeSignal",
		}
	}
	pid, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	if pid == 0 {
		return nil, &IPCError{Code: ErrCodeInvalidArgument, Message: "pid must be non-zero", Op: "SubscribeSignal"}
	}

	if err := c.handle.Subscribe(session.SignalSubscriber{PID: int(pid)}); err != nil {
		return nil, err
	}
	slog.Info("ipc: signal subscriber registered", "conn", c.id, "pid", pid)
	return NewResponseBuilder().Success().Build(), nil
}
