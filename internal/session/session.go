// Package session serializes control commands against one GPIO peripheral
// and holds its notification subscriber.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinyrange/zgpio/internal/gpio"
)

var (
	// ErrUnsupported is returned for opcodes the peripheral does not know.
	ErrUnsupported = errors.New("session: unsupported operation")
	// ErrRestart is returned when a caller gave up waiting for the session
	// lock. The command was not executed and may be retried.
	ErrRestart = errors.New("session: interrupted while waiting, restart")
	// ErrClosed is returned by operations on a closed Handle.
	ErrClosed = errors.New("session: handle closed")
)

// Subscriber receives input-ready notifications. NotifyInputReady is called
// from the interrupt path and must not block. Implementations must be
// comparable so that a subscriber can be removed by identity.
type Subscriber interface {
	NotifyInputReady()
}

type slot struct {
	sub Subscriber
}

// Stats is a snapshot of session counters.
type Stats struct {
	Executed   uint64
	Rejected   uint64
	Subscribed bool
}

// Session owns command execution for one peripheral instance. Only one
// command runs at a time; waiting callers can be cancelled via their
// context.
type Session struct {
	ctrl *gpio.Controller

	// sem is a one-token semaphore so lock waits can observe ctx.
	sem chan struct{}

	// subscriber is read lock-free from the interrupt path.
	subscriber atomic.Pointer[slot]

	executed atomic.Uint64
	rejected atomic.Uint64
	nextID   atomic.Uint64
}

// New returns a Session issuing commands to ctrl.
func New(ctrl *gpio.Controller) *Session {
	return &Session{
		ctrl: ctrl,
		sem:  make(chan struct{}, 1),
	}
}

// Controller returns the peripheral controller driven by the session.
func (s *Session) Controller() *gpio.Controller {
	return s.ctrl
}

func (s *Session) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrRestart, ctx.Err())
	}
}

func (s *Session) unlock() {
	<-s.sem
}

// Execute runs cmd under the session lock and returns the value read by
// read commands. Unknown opcodes fail with ErrUnsupported without taking the
// lock.
func (s *Session) Execute(ctx context.Context, cmd Command) (uint32, error) {
	if !cmd.Op.Valid() {
		s.rejected.Add(1)
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, cmd.Op)
	}

	if err := s.lock(ctx); err != nil {
		s.rejected.Add(1)
		return 0, err
	}
	defer s.unlock()

	v := s.dispatch(cmd)
	s.executed.Add(1)
	return v, nil
}

func (s *Session) dispatch(cmd Command) uint32 {
	switch cmd.Op {
	case OpReset:
		s.ctrl.Reset()
	case OpSetBankA:
		s.ctrl.SetBank(gpio.BankA, cmd.Value)
	case OpGetBankA:
		return s.ctrl.GetBank(gpio.BankA)
	case OpSetBankB:
		s.ctrl.SetBank(gpio.BankB, cmd.Value)
	case OpGetBankB:
		return s.ctrl.GetBank(gpio.BankB)
	case OpSetGlobalInterrupt:
		s.ctrl.SetGlobalInterrupt(cmd.Value != 0)
		slog.Info("zgpio: global interrupt", "enabled", cmd.Value != 0)
	case OpSetBankAInterruptEnable:
		s.ctrl.SetBankInterruptEnable(gpio.BankA, cmd.Value != 0)
		slog.Info("zgpio: bank interrupt", "bank", gpio.BankA, "enable", fmt.Sprintf("%#x", s.ctrl.InterruptEnable()))
	case OpSetBankBInterruptEnable:
		s.ctrl.SetBankInterruptEnable(gpio.BankB, cmd.Value != 0)
		slog.Info("zgpio: bank interrupt", "bank", gpio.BankB, "enable", fmt.Sprintf("%#x", s.ctrl.InterruptEnable()))
	}
	return 0
}

// Subscribe places sub in the notification slot, replacing any previous
// subscriber.
func (s *Session) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	s.subscriber.Store(&slot{sub: sub})
}

// Unsubscribe clears the notification slot if it currently holds sub. It is
// a no-op otherwise.
func (s *Session) Unsubscribe(sub Subscriber) {
	cur := s.subscriber.Load()
	if cur == nil || cur.sub != sub {
		return
	}
	s.subscriber.CompareAndSwap(cur, nil)
}

// Subscriber returns the current subscriber, or nil. It never blocks.
func (s *Session) Subscriber() Subscriber {
	if cur := s.subscriber.Load(); cur != nil {
		return cur.sub
	}
	return nil
}

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Executed:   s.executed.Load(),
		Rejected:   s.rejected.Load(),
		Subscribed: s.subscriber.Load() != nil,
	}
}

// Open returns a new Handle on the session, one per control-channel client.
func (s *Session) Open() *Handle {
	return &Handle{session: s, id: s.nextID.Add(1)}
}

// Handle is one client's view of a Session. Closing a Handle removes the
// subscriber it registered, if it still holds the slot.
type Handle struct {
	session *Session
	id      uint64

	mu     sync.Mutex
	sub    Subscriber
	closed bool
}

// ID returns the handle number, unique within its session.
func (h *Handle) ID() uint64 {
	return h.id
}

// Execute runs cmd on the underlying session.
func (h *Handle) Execute(ctx context.Context, cmd Command) (uint32, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return h.session.Execute(ctx, cmd)
}

// Subscribe registers sub as the session subscriber on behalf of this
// handle.
func (h *Handle) Subscribe(sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.sub != nil && h.sub != sub {
		h.session.Unsubscribe(h.sub)
	}
	h.sub = sub
	h.session.Subscribe(sub)
	return nil
}

// Unsubscribe removes this handle's subscriber. Calling it with nothing
// registered does nothing.
func (h *Handle) Unsubscribe() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked()
}

func (h *Handle) unsubscribeLocked() {
	if h.sub == nil {
		return
	}
	h.session.Unsubscribe(h.sub)
	h.sub = nil
}

// Close releases the handle, unsubscribing if needed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.unsubscribeLocked()
	h.closed = true
	return nil
}
