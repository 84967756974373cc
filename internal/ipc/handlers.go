package ipc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/zgpio/internal/session"
)

func (s *Server) registerHandlers() {
	s.mux.HandlePrefix(uint8(msgCommandPrefix>>8), s.handleCommand)
	s.mux.Handle(MsgSubscribe, s.handleSubscribe)
	s.mux.Handle(MsgUnsubscribe, s.handleUnsubscribe)
	s.mux.Handle(MsgStats, s.handleStats)
	s.registerPlatformHandlers()
}

func (s *Server) handleCommand(c *Conn, msgType uint16, dec *Decoder) ([]byte, error) {
	op, _ := OpcodeForMsg(msgType)
	cmd := session.Command{Op: op}

	if op.Direction() == session.DirWrite {
		if dec.Remaining() != 4 {
			return nil, &IPCError{
				Code:    ErrCodeFault,
				Message: fmt.Sprintf("expected 4 byte argument, got %d", dec.Remaining()),
				Op:      op.String(),
			}
		}
		v, err := dec.Uint32()
		if err != nil {
			return nil, err
		}
		cmd.Value = v
	}

	v, err := c.handle.Execute(c.ctx, cmd)
	if err != nil {
		slog.Debug("ipc: command failed", "conn", c.id, "cmd", cmd, "err", err)
		return nil, err
	}

	resp := NewResponseBuilder().Success()
	if op.Direction() == session.DirRead {
		resp.Uint32(v)
	}
	return resp.Build(), nil
}

func (s *Server) handleSubscribe(c *Conn, _ uint16, _ *Decoder) ([]byte, error) {
	if err := c.handle.Subscribe(c); err != nil {
		return nil, err
	}
	slog.Info("ipc: subscriber registered", "conn", c.id)
	return NewResponseBuilder().Success().Build(), nil
}

func (s *Server) handleUnsubscribe(c *Conn, _ uint16, _ *Decoder) ([]byte, error) {
	c.handle.Unsubscribe()
	return NewResponseBuilder().Success().Build(), nil
}

func (s *Server) handleStats(c *Conn, _ uint16, _ *Decoder) ([]byte, error) {
	st := s.sess.Stats()
	return NewResponseBuilder().Success().Stats(Stats{
		Executed:   st.Executed,
		Rejected:   st.Rejected,
		Subscribed: st.Subscribed,
	}).Build(), nil
}

// errorToIPC converts a Go error to an IPC error.
func errorToIPC(err error) *IPCError {
	var ipcErr *IPCError
	if errors.As(err, &ipcErr) {
		return ipcErr
	}

	switch {
	case errors.Is(err, session.ErrUnsupported):
		return &IPCError{Code: ErrCodeUnsupported, Message: err.Error()}
	case errors.Is(err, session.ErrRestart):
		return &IPCError{Code: ErrCodeRestart, Message: err.Error()}
	case errors.Is(err, session.ErrClosed):
		return &IPCError{Code: ErrCodeNotAttached, Message: err.Error()}
	default:
		return &IPCError{Code: ErrCodeUnknown, Message: err.Error()}
	}
}
