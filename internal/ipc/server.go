package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tinyrange/zgpio/internal/session"
)

// Server exposes one control session on a Unix socket. Every accepted
// connection gets its own session handle.
type Server struct {
	listener   net.Listener
	socketPath string
	sess       *session.Session
	mux        *Mux
	closed     atomic.Bool
	wg         sync.WaitGroup
	conns      map[*Conn]struct{}
	connsMu    sync.Mutex
}

// NewServer creates a server for sess listening on the given Unix socket path.
func NewServer(socketPath string, sess *session.Session) (*Server, error) {
	// Remove any stale socket file
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}

	s := NewServerWithListener(listener, sess)
	s.socketPath = socketPath
	return s, nil
}

// NewServerWithListener creates a server for sess on an existing listener.
func NewServerWithListener(l net.Listener, sess *session.Session) *Server {
	s := &Server{
		listener: l,
		sess:     sess,
		mux:      NewMux(),
		conns:    make(map[*Conn]struct{}),
	}
	s.registerHandlers()
	return s
}

// SocketPath returns the path to the Unix socket.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Serve accepts connections and handles requests.
// This blocks until Close is called.
func (s *Server) Serve() error {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		c := s.newConn(nc)

		s.connsMu.Lock()
		if s.closed.Load() {
			s.connsMu.Unlock()
			c.close()
			continue
		}
		s.conns[c] = struct{}{}
		// wg.Add must happen under connsMu, before Close can reach wg.Wait.
		s.wg.Add(2)
		s.connsMu.Unlock()

		go s.notifyLoop(c)
		go s.handleConn(c)
	}
}

// Conn is one client connection and its session handle.
type Conn struct {
	id     string
	nc     net.Conn
	handle *session.Handle

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	notify  chan struct{}
}

var _ session.Subscriber = (*Conn)(nil)

func (s *Server) newConn(nc net.Conn) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		id:     uuid.New().String(),
		nc:     nc,
		handle: s.sess.Open(),
		ctx:    ctx,
		cancel: cancel,
		notify: make(chan struct{}, 1),
	}
}

// ID returns the connection identifier used in logs.
func (c *Conn) ID() string {
	return c.id
}

// Handle returns the session handle owned by the connection.
func (c *Conn) Handle() *session.Handle {
	return c.handle
}

// NotifyInputReady queues an input-ready event. Events that arrive while
// one is already queued are merged into it.
func (c *Conn) NotifyInputReady() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Conn) writeFrame(msgType uint16, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.nc, msgType, payload)
}

func (c *Conn) close() {
	c.cancel()
	c.handle.Close()
	c.nc.Close()
}

func (s *Server) notifyLoop(c *Conn) {
	defer s.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.notify:
			if err := c.writeFrame(MsgInputReady, nil); err != nil {
				slog.Debug("ipc: input-ready write failed", "conn", c.id, "err", err)
				return
			}
		}
	}
}

func (s *Server) handleConn(c *Conn) {
	defer s.wg.Done()
	defer func() {
		c.close()
		s.connsMu.Lock()
		delete(s.conns, c)
		s.connsMu.Unlock()
		slog.Debug("ipc: connection closed", "conn", c.id)
	}()

	slog.Debug("ipc: connection opened", "conn", c.id, "handle", c.handle.ID())

	for {
		if s.closed.Load() {
			return
		}

		// Read request header
		header, err := ReadHeader(c.nc)
		if err != nil {
			if errors.Is(err, io.EOF) || s.closed.Load() {
				return
			}
			s.sendError(c, ErrCodeIO, fmt.Sprintf("read header: %v", err), "")
			return
		}

		if header.Length > MaxPayload {
			if _, err := io.CopyN(io.Discard, c.nc, int64(header.Length)); err != nil {
				return
			}
			s.sendError(c, ErrCodeInvalidArgument,
				fmt.Sprintf("payload of %d bytes exceeds limit", header.Length), "")
			continue
		}

		// Read request payload
		payload := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(c.nc, payload); err != nil {
				s.sendError(c, ErrCodeIO, fmt.Sprintf("read payload: %v", err), "")
				return
			}
		}

		resp, err := s.mux.serve(c, header.Type, payload)
		if err != nil {
			s.sendErrorFromGoError(c, err)
			continue
		}

		if err := c.writeFrame(MsgResponse, resp); err != nil {
			return
		}
	}
}

func (s *Server) sendError(c *Conn, code uint8, message, op string) {
	enc := NewEncoder()
	EncodeError(enc, code, message, op)
	c.writeFrame(MsgError, enc.Bytes())
}

func (s *Server) sendErrorFromGoError(c *Conn, err error) {
	ipcErr := errorToIPC(err)
	s.sendError(c, ipcErr.Code, ipcErr.Message, ipcErr.Op)
}

// Close shuts down the server. Connections are closed and any command
// still waiting for the session lock is abandoned.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Close listener first to stop accepting new connections
	if s.listener != nil {
		s.listener.Close()
	}

	// Close all active connections
	s.connsMu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.connsMu.Unlock()

	// Wait for handlers to finish
	s.wg.Wait()

	if s.socketPath != "" {
		os.Remove(s.socketPath)
	}

	return nil
}

// MuxHandler handles a specific message type.
type MuxHandler func(c *Conn, msgType uint16, dec *Decoder) ([]byte, error)

// Mux is a message type multiplexer for the server. Handlers registered
// for a prefix receive every message whose high byte matches and that has
// no exact handler.
type Mux struct {
	handlers map[uint16]MuxHandler
	prefixes map[uint8]MuxHandler
	mu       sync.RWMutex
}

// NewMux creates a new message multiplexer.
func NewMux() *Mux {
	return &Mux{
		handlers: make(map[uint16]MuxHandler),
		prefixes: make(map[uint8]MuxHandler),
	}
}

// Handle registers a handler for a message type.
func (m *Mux) Handle(msgType uint16, handler MuxHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[msgType] = handler
}

// HandlePrefix registers a handler for every message type with high byte hi.
func (m *Mux) HandlePrefix(hi uint8, handler MuxHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixes[hi] = handler
}

func (m *Mux) serve(c *Conn, msgType uint16, payload []byte) ([]byte, error) {
	m.mu.RLock()
	handler, ok := m.handlers[msgType]
	if !ok {
		handler, ok = m.prefixes[uint8(msgType>>8)]
	}
	m.mu.RUnlock()

	if !ok {
		return nil, &IPCError{
			Code:    ErrCodeInvalidArgument,
			Message: fmt.Sprintf("unknown message type: 0x%04x", msgType),
		}
	}

	return handler(c, msgType, NewDecoder(payload))
}

// ResponseBuilder helps build response payloads.
type ResponseBuilder struct {
	enc *Encoder
}

// NewResponseBuilder creates a new response builder.
func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{enc: NewEncoder()}
}

// Success marks the response as successful (error code 0).
func (r *ResponseBuilder) Success() *ResponseBuilder {
	r.enc.Uint8(ErrCodeOK)
	return r
}

// Uint32 appends a uint32.
func (r *ResponseBuilder) Uint32(v uint32) *ResponseBuilder {
	r.enc.Uint32(v)
	return r
}

// Stats appends session statistics.
func (r *ResponseBuilder) Stats(st Stats) *ResponseBuilder {
	EncodeStats(r.enc, st)
	return r
}

// Build returns the encoded response bytes.
func (r *ResponseBuilder) Build() []byte {
	return r.enc.Bytes()
}
