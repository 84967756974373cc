package sim_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/zgpio/internal/devices/axigpio"
	"github.com/tinyrange/zgpio/internal/driver"
	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/ipc"
	"github.com/tinyrange/zgpio/internal/sim"
)

type harness struct {
	board    *sim.Board
	registry *ipc.Registry
	driver   *driver.Driver
	res      driver.Resources
}

func newHarness(t *testing.T, cfg gpio.Config) *harness {
	t.Helper()
	board, err := sim.NewBoard()
	require.NoError(t, err)

	registry := ipc.NewRegistry(filepath.Join(t.TempDir(), "run"))
	t.Cleanup(func() { registry.Close() })

	node, ok := board.Describe().FindCompatible(driver.Compatible...)
	require.True(t, ok)
	res, err := driver.ResourcesFromNode(node)
	require.NoError(t, err)

	return &harness{
		board:    board,
		registry: registry,
		driver:   driver.New(cfg, board.Platform(registry)),
		res:      res,
	}
}

func (h *harness) dial(t *testing.T) *ipc.Client {
	t.Helper()
	c, err := ipc.Dial(h.registry.Path(h.driver.Channel()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func (h *harness) assertReleased(t *testing.T) {
	t.Helper()
	assert.Empty(t, h.board.Regions().Claimed())
	assert.False(t, h.board.Lines().Bound(h.board.IRQ()))
	assert.Equal(t, 0, h.board.Mapped())
	assert.Empty(t, h.registry.Channels())
}

func TestAttachResetSetGetDetach(t *testing.T) {
	cfg := gpio.DefaultConfig()
	cfg.DirMaskA = 0 // bank A drives its pins
	h := newHarness(t, cfg)

	require.NoError(t, h.driver.Attach(h.res))
	assert.Equal(t, driver.SessionAllocated, h.driver.State())
	assert.Len(t, h.board.Regions().Claimed(), 1)
	assert.True(t, h.board.Lines().Bound(h.board.IRQ()))

	c := h.dial(t)
	require.NoError(t, c.Reset())
	require.NoError(t, c.SetBank(gpio.BankA, 0x0000ffff))
	v, err := c.GetBank(gpio.BankA)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0000ffff), v)

	require.NoError(t, c.SetBank(gpio.BankB, 0xc0ffee00))
	out, err := h.board.GPIO().Outputs(axigpio.Channel2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xc0ffee00), out)

	require.NoError(t, h.driver.Detach())
	h.assertReleased(t)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("client still connected after detach")
	}

	require.NoError(t, h.driver.Attach(h.res))
	assert.Equal(t, 0, h.driver.Channel())
	require.NoError(t, h.driver.Detach())
	h.assertReleased(t)
}

func TestStartupProgramsCore(t *testing.T) {
	h := newHarness(t, gpio.DefaultConfig())
	require.NoError(t, h.driver.Attach(h.res))
	t.Cleanup(func() { h.driver.Detach() })

	w := h.driver.Window()
	require.NotNil(t, w)
	assert.Equal(t, uint32(0xffffffff), w.Read32(axigpio.GPIO_TRI))
	assert.Equal(t, uint32(0), w.Read32(axigpio.GPIO2_TRI))
	assert.Equal(t, uint32(axigpio.GIER_ENABLE), w.Read32(axigpio.GIER))
	assert.Equal(t, uint32(axigpio.IP_CH1), w.Read32(axigpio.IP_IER))
}

func TestInputChangeNotifiesSubscriber(t *testing.T) {
	h := newHarness(t, gpio.DefaultConfig())
	require.NoError(t, h.driver.Attach(h.res))
	t.Cleanup(func() { h.driver.Detach() })

	c := h.dial(t)
	require.NoError(t, c.Subscribe())

	require.NoError(t, h.board.GPIO().DriveInputs(axigpio.Channel1, 0x5))

	select {
	case <-c.Notifications():
	case <-time.After(5 * time.Second):
		t.Fatalf("no input-ready notification")
	}

	assert.Equal(t, uint32(0), h.board.GPIO().InterruptStatus())
	assert.False(t, h.board.Lines().Level(h.board.IRQ()))
	assert.False(t, h.board.Lines().Masked(h.board.IRQ()))

	st := h.driver.Bridge().Stats()
	assert.Equal(t, uint64(1), st.Interrupts)
	assert.Equal(t, uint64(1), st.Notified)

	v, err := c.GetBank(gpio.BankA)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x5), v)
}

func TestDisabledBankDoesNotInterrupt(t *testing.T) {
	h := newHarness(t, gpio.DefaultConfig())
	require.NoError(t, h.driver.Attach(h.res))
	t.Cleanup(func() { h.driver.Detach() })

	c := h.dial(t)
	require.NoError(t, c.Subscribe())
	require.NoError(t, c.SetBankInterruptEnable(gpio.BankA, false))

	require.NoError(t, h.board.GPIO().DriveInputs(axigpio.Channel1, 0x1))
	select {
	case <-c.Notifications():
		t.Fatalf("notified with bank interrupt disabled")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, uint64(0), h.driver.Bridge().Stats().Interrupts)
}

func TestAttachFailureReleasesBoard(t *testing.T) {
	h := newHarness(t, gpio.DefaultConfig())

	// Another owner holds the line, so binding fails after the window
	// was claimed and mapped.
	require.NoError(t, h.board.Lines().Bind(h.board.IRQ(), "other", func() bool { return false }))

	require.Error(t, h.driver.Attach(h.res))
	assert.Empty(t, h.board.Regions().Claimed())
	assert.Equal(t, 0, h.board.Mapped())
	assert.Empty(t, h.registry.Channels())

	h.board.Lines().Unbind(h.board.IRQ())
	require.NoError(t, h.driver.Attach(h.res))
	require.NoError(t, h.driver.Detach())
	h.assertReleased(t)
}

func TestMapRejectsUndecodedRange(t *testing.T) {
	board, err := sim.NewBoard()
	require.NoError(t, err)

	_, err = board.Map(0x1000, 0x100)
	assert.Error(t, err)
	_, err = board.Map(axigpio.DefaultBase, axigpio.DefaultSize*2)
	assert.Error(t, err)

	w, err := board.Map(axigpio.DefaultBase, axigpio.DefaultSize)
	require.NoError(t, err)
	require.NoError(t, board.Unmap(w))
	assert.Error(t, board.Unmap(w))
}
