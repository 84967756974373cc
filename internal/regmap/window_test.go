package regmap

import (
	"encoding/binary"
	"fmt"
	"testing"
)

func TestMemoryReadWrite(t *testing.T) {
	m := NewMemory(0x130)
	if got, want := m.Size(), uint64(0x130); got != want {
		t.Fatalf("size: got %#x, want %#x", got, want)
	}

	m.Write32(0x00, 0xdeadbeef)
	m.Write32(0x12c, 0x00000003)

	if got := m.Read32(0x00); got != 0xdeadbeef {
		t.Fatalf("read 0x00: got %#x, want 0xdeadbeef", got)
	}
	if got := m.Read32(0x12c); got != 3 {
		t.Fatalf("read 0x12c: got %#x, want 0x3", got)
	}
	if got := m.Read32(0x04); got != 0 {
		t.Fatalf("untouched register: got %#x, want 0", got)
	}
}

func TestMemoryRoundsUpSize(t *testing.T) {
	m := NewMemory(6)
	if got, want := m.Size(), uint64(8); got != want {
		t.Fatalf("size: got %d, want %d", got, want)
	}
}

func TestOutOfRangeAccessPanics(t *testing.T) {
	m := NewMemory(0x10)

	tests := []struct {
		name string
		fn   func()
	}{
		{"read past end", func() { m.Read32(0x10) }},
		{"write past end", func() { m.Write32(0x100, 1) }},
		{"unaligned read", func() { m.Read32(0x2) }},
		{"unaligned write", func() { m.Write32(0x7, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			tt.fn()
		})
	}
}

// recordingBus captures accesses forwarded by a Bus window.
type recordingBus struct {
	regs map[uint64]uint32
	log  []string
}

func (b *recordingBus) HandleMMIO(addr uint64, data []byte, isWrite bool) error {
	if len(data) != 4 {
		return fmt.Errorf("unexpected access width %d", len(data))
	}
	if isWrite {
		b.regs[addr] = binary.LittleEndian.Uint32(data)
		b.log = append(b.log, fmt.Sprintf("w %#x", addr))
		return nil
	}
	binary.LittleEndian.PutUint32(data, b.regs[addr])
	b.log = append(b.log, fmt.Sprintf("r %#x", addr))
	return nil
}

func TestBusForwardsInOrder(t *testing.T) {
	rb := &recordingBus{regs: make(map[uint64]uint32)}
	w := NewBus(rb, 0x41200000, 0x1000)

	w.Write32(0x4, 0xffffffff)
	w.Write32(0x0, 0x1234)
	if got := w.Read32(0x0); got != 0x1234 {
		t.Fatalf("read back: got %#x, want 0x1234", got)
	}

	want := []string{"w 0x41200004", "w 0x41200000", "r 0x41200000"}
	if len(rb.log) != len(want) {
		t.Fatalf("access log: got %v, want %v", rb.log, want)
	}
	for i := range want {
		if rb.log[i] != want[i] {
			t.Fatalf("access %d: got %s, want %s", i, rb.log[i], want[i])
		}
	}
}

func TestBusErrorPanics(t *testing.T) {
	w := NewBus(failingBus{}, 0, 0x10)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on bus error")
		}
	}()
	w.Read32(0)
}

type failingBus struct{}

func (failingBus) HandleMMIO(uint64, []byte, bool) error {
	return fmt.Errorf("no device")
}
