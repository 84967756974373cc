package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/session"
)

// ErrClientClosed is returned by calls on a closed or disconnected Client.
var ErrClientClosed = errors.New("ipc: client closed")

type frame struct {
	msgType uint16
	payload []byte
}

// Client is a connection to a control channel.
//
// Calls are synchronous and serialized. Input-ready events arrive on the
// Notifications channel independently of calls.
type Client struct {
	conn   net.Conn
	mu     sync.Mutex
	closed atomic.Bool

	responses chan frame
	notify    chan struct{}
	done      chan struct{}
	quit      chan struct{}
	readErr   error
}

// Dial connects to the control channel at socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:      conn,
		responses: make(chan frame, 1),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		quit:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.notify)
	defer close(c.done)

	for {
		h, err := ReadHeader(c.conn)
		if err != nil {
			c.readErr = err
			return
		}
		payload := make([]byte, h.Length)
		if h.Length > 0 {
			if _, err := io.ReadFull(c.conn, payload); err != nil {
				c.readErr = err
				return
			}
		}

		if h.Type == MsgInputReady {
			select {
			case c.notify <- struct{}{}:
			default:
			}
			continue
		}

		select {
		case c.responses <- frame{msgType: h.Type, payload: payload}:
		case <-c.quit:
			return
		}
	}
}

// Notifications returns a channel that receives a value for every
// input-ready event. Events that arrive before the previous one was
// received are merged. The channel is closed when the connection ends.
func (c *Client) Notifications() <-chan struct{} {
	return c.notify
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts down the client connection.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.quit)
	return c.conn.Close()
}

// Call sends a request and waits for a response.
// This is a synchronous RPC call.
func (c *Client) Call(msgType uint16, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	select {
	case <-c.done:
		return nil, fmt.Errorf("%w: %w", ErrClientClosed, c.readErr)
	default:
	}

	if err := WriteFrame(c.conn, msgType, payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	var resp frame
	select {
	case resp = <-c.responses:
	case <-c.done:
		select {
		case resp = <-c.responses:
		default:
			return nil, fmt.Errorf("%w: %w", ErrClientClosed, c.readErr)
		}
	}

	dec := NewDecoder(resp.payload)
	switch resp.msgType {
	case MsgError:
		ipcErr, err := DecodeError(dec)
		if err != nil {
			return nil, fmt.Errorf("decode error response: %w", err)
		}
		if ipcErr != nil {
			return nil, ipcErr
		}
		return nil, fmt.Errorf("error response without error code")
	case MsgResponse:
	default:
		return nil, fmt.Errorf("unexpected response type 0x%04x", resp.msgType)
	}

	code, err := dec.Uint8()
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if code != ErrCodeOK {
		return nil, fmt.Errorf("response status %d", code)
	}
	return resp.payload[1:], nil
}

// CallWithEncoder is a convenience method that uses an encoder for the request.
func (c *Client) CallWithEncoder(msgType uint16, encode func(*Encoder)) ([]byte, error) {
	enc := NewEncoder()
	encode(enc)
	return c.Call(msgType, enc.Bytes())
}

// Execute runs a single command. Write commands send value; read commands
// return the value read.
func (c *Client) Execute(op session.Opcode, value uint32) (uint32, error) {
	var payload []byte
	if op.Direction() == session.DirWrite {
		enc := NewEncoder()
		enc.Uint32(value)
		payload = enc.Bytes()
	}

	resp, err := c.Call(MsgForOpcode(op), payload)
	if err != nil {
		return 0, err
	}
	if op.Direction() != session.DirRead {
		return 0, nil
	}
	v, err := NewDecoder(resp).Uint32()
	if err != nil {
		return 0, fmt.Errorf("decode %s response: %w", op, err)
	}
	return v, nil
}

// Reset drives bank A back to its direction value.
func (c *Client) Reset() error {
	_, err := c.Execute(session.OpReset, 0)
	return err
}

// SetBank writes v to a bank's data register.
func (c *Client) SetBank(bank gpio.Bank, v uint32) error {
	op, err := bankOp(bank, session.OpSetBankA, session.OpSetBankB)
	if err != nil {
		return err
	}
	_, err = c.Execute(op, v)
	return err
}

// GetBank reads a bank's data register.
func (c *Client) GetBank(bank gpio.Bank) (uint32, error) {
	op, err := bankOp(bank, session.OpGetBankA, session.OpGetBankB)
	if err != nil {
		return 0, err
	}
	return c.Execute(op, 0)
}

// SetGlobalInterrupt turns the peripheral interrupt output on or off.
func (c *Client) SetGlobalInterrupt(on bool) error {
	_, err := c.Execute(session.OpSetGlobalInterrupt, boolValue(on))
	return err
}

// SetBankInterruptEnable turns one bank's interrupt on or off.
func (c *Client) SetBankInterruptEnable(bank gpio.Bank, on bool) error {
	op, err := bankOp(bank, session.OpSetBankAInterruptEnable, session.OpSetBankBInterruptEnable)
	if err != nil {
		return err
	}
	_, err = c.Execute(op, boolValue(on))
	return err
}

// Subscribe makes this connection the receiver of input-ready events,
// replacing any previous subscriber on the channel.
func (c *Client) Subscribe() error {
	_, err := c.Call(MsgSubscribe, nil)
	return err
}

// SubscribeSignal asks for SIGIO to be sent to pid on every input-ready
// event while this connection stays open.
func (c *Client) SubscribeSignal(pid int) error {
	_, err := c.CallWithEncoder(MsgSubscribeSignal, func(enc *Encoder) {
		enc.Uint32(uint32(pid))
	})
	return err
}

// Unsubscribe stops input-ready events for this connection.
func (c *Client) Unsubscribe() error {
	_, err := c.Call(MsgUnsubscribe, nil)
	return err
}

// Stats returns the channel's session counters.
func (c *Client) Stats() (Stats, error) {
	resp, err := c.Call(MsgStats, nil)
	if err != nil {
		return Stats{}, err
	}
	return DecodeStats(NewDecoder(resp))
}

func bankOp(bank gpio.Bank, a, b session.Opcode) (session.Opcode, error) {
	switch bank {
	case gpio.BankA:
		return a, nil
	case gpio.BankB:
		return b, nil
	default:
		return 0, fmt.Errorf("ipc: invalid bank %v", bank)
	}
}

func boolValue(on bool) uint32 {
	if on {
		return 1
	}
	return 0
}
