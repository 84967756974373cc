package driver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/regmap"
	"github.com/tinyrange/zgpio/internal/session"
)

// eventWindow logs register writes into a shared event list.
type eventWindow struct {
	*regmap.Memory
	events *[]string
}

func (w eventWindow) Write32(off uint64, v uint32) {
	*w.events = append(*w.events, fmt.Sprintf("write %#x=%#x", off, v))
	w.Memory.Write32(off, v)
}

type eventSubscriber struct {
	events *[]string
}

func (s *eventSubscriber) NotifyInputReady() {
	*s.events = append(*s.events, "notify")
}

func newTestBridge(t *testing.T) (*Bridge, *session.Session, *regmap.Memory, *[]string) {
	t.Helper()
	events := new([]string)
	mem := regmap.NewMemory(0x1000)
	ctrl := gpio.NewController(eventWindow{Memory: mem, events: events}, gpio.DefaultConfig())
	sess := session.New(ctrl)
	return NewBridge(ctrl, sess), sess, mem, events
}

func TestBridgeAcknowledgesBeforeNotify(t *testing.T) {
	b, sess, mem, events := newTestBridge(t)
	sess.Subscribe(&eventSubscriber{events: events})

	mem.Write32(0x120, 0x3)
	require.True(t, b.HandleInterrupt())

	assert.Equal(t, []string{"write 0x120=0x3", "notify"}, *events)
	assert.Equal(t, BridgeStats{Interrupts: 1, Notified: 1}, b.Stats())
}

func TestBridgeEmptyStatusStillNotifies(t *testing.T) {
	b, sess, _, events := newTestBridge(t)
	sess.Subscribe(&eventSubscriber{events: events})

	assert.True(t, b.HandleInterrupt())
	assert.Equal(t, []string{"write 0x120=0x0", "notify"}, *events)
	assert.Equal(t, BridgeStats{Interrupts: 1, Notified: 1, Spurious: 1}, b.Stats())
}

func TestBridgeWithoutSubscriber(t *testing.T) {
	b, _, mem, events := newTestBridge(t)

	mem.Write32(0x120, 0x1)
	assert.True(t, b.HandleInterrupt())
	assert.Equal(t, []string{"write 0x120=0x1"}, *events)
	assert.Equal(t, uint64(0), b.Stats().Notified)
}
