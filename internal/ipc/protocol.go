// Package ipc provides the control channel protocol used by user-level
// tools to drive the GPIO peripheral and to receive its input-ready
// notifications.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tinyrange/zgpio/internal/session"
)

// Message types for the IPC protocol.
// Organized by category with a prefix byte.
const (
	// Peripheral commands (0x01xx), low byte is the session opcode.
	MsgReset                   uint16 = 0x0100
	MsgSetBankA                uint16 = 0x0101
	MsgGetBankA                uint16 = 0x0102
	MsgSetBankB                uint16 = 0x0103
	MsgGetBankB                uint16 = 0x0104
	MsgSetGlobalInterrupt      uint16 = 0x0105
	MsgSetBankAInterruptEnable uint16 = 0x0106
	MsgSetBankBInterruptEnable uint16 = 0x0107

	// Notification control (0x02xx)
	MsgSubscribe   uint16 = 0x0200
	MsgUnsubscribe uint16 = 0x0201
	MsgStats       uint16 = 0x0202
	// MsgSubscribeSignal carries a uint32 pid that receives SIGIO.
	MsgSubscribeSignal uint16 = 0x0203

	// Asynchronous events pushed by the server (0xFExx)
	MsgInputReady uint16 = 0xFE00

	// Response types (0xFFxx)
	MsgResponse uint16 = 0xFF00
	MsgError    uint16 = 0xFF01
)

const msgCommandPrefix uint16 = 0x0100

// MsgForOpcode returns the message type that carries op.
func MsgForOpcode(op session.Opcode) uint16 {
	return msgCommandPrefix | uint16(op)
}

// OpcodeForMsg returns the session opcode carried by a command message.
// The opcode is not checked for validity.
func OpcodeForMsg(msgType uint16) (session.Opcode, bool) {
	if msgType&0xFF00 != msgCommandPrefix {
		return 0, false
	}
	return session.Opcode(msgType & 0xFF), true
}

// MaxPayload is the largest request payload the server accepts.
const MaxPayload = 4096

// Wire format:
// [2 bytes: msg_type (big endian)]
// [4 bytes: payload_len (big endian)]
// [payload_len bytes: payload]

// Header represents a message header.
type Header struct {
	Type   uint16
	Length uint32
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 6

// ReadHeader reads a message header from the reader.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return Header{
		Type:   binary.BigEndian.Uint16(buf[0:2]),
		Length: binary.BigEndian.Uint32(buf[2:6]),
	}, nil
}

// WriteHeader writes a message header to the writer.
func WriteHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint16(buf[0:2], h.Type)
	binary.BigEndian.PutUint32(buf[2:6], h.Length)
	_, err := w.Write(buf[:])
	return err
}

// WriteFrame writes a header and payload as a single write.
func WriteFrame(w io.Writer, msgType uint16, payload []byte) error {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], msgType)
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// Encoder writes IPC messages.
type Encoder struct {
	buf []byte
}

// NewEncoder creates a new encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 64)}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Uint8 appends a uint8.
func (e *Encoder) Uint8(v uint8) {
	e.buf = append(e.buf, v)
}

// Uint32 appends a uint32 (big endian).
func (e *Encoder) Uint32(v uint32) {
	e.buf = append(e.buf,
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Uint64 appends a uint64 (big endian).
func (e *Encoder) Uint64(v uint64) {
	e.buf = append(e.buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Bool appends a bool (1 byte).
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// String appends a length-prefixed string (4 bytes length + data).
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// Decoder reads IPC messages.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a new decoder for the given bytes.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

// Uint32 reads a uint32 (big endian).
func (d *Decoder) Uint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

// Uint64 reads a uint64 (big endian).
func (d *Decoder) Uint64() (uint64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

// Bool reads a bool (1 byte).
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	return v != 0, err
}

// String reads a length-prefixed string.
func (d *Decoder) String() (string, error) {
	length, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if d.pos+int(length) > len(d.buf) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(d.buf[d.pos : d.pos+int(length)])
	d.pos += int(length)
	return s, nil
}

// Error codes for IPC errors.
const (
	ErrCodeOK              = 0
	ErrCodeUnsupported     = 1
	ErrCodeInvalidArgument = 2
	ErrCodeFault           = 3
	ErrCodeRestart         = 4
	ErrCodeIO              = 5
	ErrCodeNotAttached     = 6 // session handle already closed
	ErrCodeUnknown         = 99
)

// IPCError represents an error in the IPC protocol.
type IPCError struct {
	Code    uint8
	Message string
	Op      string
}

func (e *IPCError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Is lets errors.Is match an IPCError against the session sentinels it
// was produced from.
func (e *IPCError) Is(target error) bool {
	switch target {
	case session.ErrUnsupported:
		return e.Code == ErrCodeUnsupported
	case session.ErrRestart:
		return e.Code == ErrCodeRestart
	case session.ErrClosed:
		return e.Code == ErrCodeNotAttached
	}
	return false
}

// EncodeError encodes an error response.
func EncodeError(enc *Encoder, code uint8, message, op string) {
	enc.Uint8(code)
	enc.String(message)
	enc.String(op)
}

// DecodeError decodes an error response. It returns nil for ErrCodeOK.
func DecodeError(dec *Decoder) (*IPCError, error) {
	code, err := dec.Uint8()
	if err != nil {
		return nil, err
	}
	if code == ErrCodeOK {
		return nil, nil
	}
	message, err := dec.String()
	if err != nil {
		return nil, err
	}
	op, err := dec.String()
	if err != nil {
		return nil, err
	}
	return &IPCError{Code: code, Message: message, Op: op}, nil
}

// Stats is the payload of a MsgStats response.
type Stats struct {
	Executed   uint64
	Rejected   uint64
	Subscribed bool
}

// EncodeStats encodes session statistics.
func EncodeStats(enc *Encoder, s Stats) {
	enc.Uint64(s.Executed)
	enc.Uint64(s.Rejected)
	enc.Bool(s.Subscribed)
}

// DecodeStats decodes session statistics.
func DecodeStats(dec *Decoder) (Stats, error) {
	var s Stats
	var err error
	s.Executed, err = dec.Uint64()
	if err != nil {
		return s, err
	}
	s.Rejected, err = dec.Uint64()
	if err != nil {
		return s, err
	}
	s.Subscribed, err = dec.Bool()
	if err != nil {
		return s, err
	}
	return s, nil
}
