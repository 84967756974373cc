package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyrange/zgpio/internal/chipset"
	"github.com/tinyrange/zgpio/internal/fdt"
	"github.com/tinyrange/zgpio/internal/gpio"
	"github.com/tinyrange/zgpio/internal/regmap"
	"github.com/tinyrange/zgpio/internal/session"
)

var errInjected = errors.New("injected failure")

// fakePlatform records every acquire and release in order and can fail a
// chosen acquire step.
type fakePlatform struct {
	calls  []string
	failAt string

	mem       *regmap.Memory
	unmapErr  error
	handler   chipset.IRQHandler
	session   *session.Session
	nextMinor int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{mem: regmap.NewMemory(0x1000), nextMinor: 3}
}

func (f *fakePlatform) record(call string) error {
	f.calls = append(f.calls, call)
	if call == f.failAt {
		return errInjected
	}
	return nil
}

func (f *fakePlatform) platform() Platform {
	return Platform{
		Regions:  fakeRegions{f},
		Mapper:   fakeMapper{f},
		IRQs:     fakeIRQs{f},
		Channels: fakeChannels{f},
	}
}

type fakeRegions struct{ f *fakePlatform }

func (r fakeRegions) Claim(name string, base, size uint64) error {
	return r.f.record("claim")
}

func (r fakeRegions) Release(base, size uint64) bool {
	r.f.record("release-region")
	return true
}

type fakeMapper struct{ f *fakePlatform }

func (m fakeMapper) Map(base, size uint64) (regmap.Window, error) {
	if err := m.f.record("map"); err != nil {
		return nil, err
	}
	return m.f.mem, nil
}

func (m fakeMapper) Unmap(w regmap.Window) error {
	m.f.record("unmap")
	return m.f.unmapErr
}

type fakeIRQs struct{ f *fakePlatform }

func (b fakeIRQs) Bind(irq uint32, name string, handler chipset.IRQHandler) error {
	if err := b.f.record("bind"); err != nil {
		return err
	}
	b.f.handler = handler
	return nil
}

func (b fakeIRQs) Unbind(irq uint32) {
	b.f.record("unbind")
	b.f.handler = nil
}

type fakeChannels struct{ f *fakePlatform }

func (c fakeChannels) Allocate(name string, s *session.Session) (int, error) {
	if err := c.f.record("allocate"); err != nil {
		return -1, err
	}
	c.f.session = s
	return c.f.nextMinor, nil
}

func (c fakeChannels) Release(minor int) error {
	c.f.record("release-channel")
	c.f.session = nil
	return nil
}

func testResources() Resources {
	return Resources{Name: DriverName, Base: 0x41200000, Size: 0x1000, IRQ: 29, HasIRQ: true}
}

func TestAttachDetach(t *testing.T) {
	fp := newFakePlatform()
	cfg := gpio.DefaultConfig()
	d := New(cfg, fp.platform())

	require.NoError(t, d.Attach(testResources()))
	assert.Equal(t, []string{"claim", "map", "bind", "allocate"}, fp.calls)
	assert.Equal(t, SessionAllocated, d.State())
	assert.Equal(t, 3, d.Channel())
	require.NotNil(t, d.Session())
	assert.Same(t, d.Session(), fp.session)
	require.NotNil(t, fp.handler)

	// Startup configuration.
	assert.Equal(t, cfg.DirMaskA, fp.mem.Read32(cfg.DirOffsetA))
	assert.Equal(t, cfg.DirMaskB, fp.mem.Read32(cfg.DirOffsetB))
	assert.Equal(t, cfg.GlobalIRQMask, fp.mem.Read32(cfg.GlobalIRQOffset))
	assert.Equal(t, cfg.IRQEnableMaskA, fp.mem.Read32(cfg.IRQEnableOffset))

	fp.calls = nil
	require.NoError(t, d.Detach())
	assert.Equal(t, []string{"release-channel", "unbind", "unmap", "release-region"}, fp.calls)
	assert.Equal(t, Unattached, d.State())
	assert.Equal(t, -1, d.Channel())
	assert.Nil(t, d.Session())
	assert.Nil(t, d.Window())
}

func TestAttachRollback(t *testing.T) {
	tests := []struct {
		failAt string
		calls  []string
		target error
	}{
		{"claim", []string{"claim"}, errInjected},
		{"map", []string{"claim", "map", "release-region"}, ErrMap},
		{"bind", []string{"claim", "map", "bind", "unmap", "release-region"}, errInjected},
		{"allocate", []string{"claim", "map", "bind", "allocate", "unbind", "unmap", "release-region"}, ErrChannel},
	}
	for _, tt := range tests {
		t.Run(tt.failAt, func(t *testing.T) {
			fp := newFakePlatform()
			fp.failAt = tt.failAt
			cfg := gpio.DefaultConfig()
			d := New(cfg, fp.platform())

			err := d.Attach(testResources())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.calls, fp.calls)
			assert.Equal(t, Unattached, d.State())
			assert.Nil(t, d.Session())

			// Startup writes happen only on full success.
			assert.Equal(t, uint32(0), fp.mem.Read32(cfg.GlobalIRQOffset))
			assert.Equal(t, uint32(0), fp.mem.Read32(cfg.IRQEnableOffset))

			// The same resources attach cleanly once the fault is gone.
			fp.failAt = ""
			fp.calls = nil
			require.NoError(t, d.Attach(testResources()))
			assert.Equal(t, []string{"claim", "map", "bind", "allocate"}, fp.calls)
			require.NoError(t, d.Detach())
		})
	}
}

func TestAttachWithoutInterrupt(t *testing.T) {
	fp := newFakePlatform()
	cfg := gpio.DefaultConfig()
	d := New(cfg, fp.platform())

	res := testResources()
	res.HasIRQ = false
	require.NoError(t, d.Attach(res))

	assert.Equal(t, []string{"claim", "map"}, fp.calls)
	assert.Equal(t, WindowClaimed, d.State())
	assert.Nil(t, d.Session())
	assert.Nil(t, d.Bridge())
	assert.Equal(t, -1, d.Channel())
	assert.NotNil(t, d.Window())
	assert.Equal(t, uint32(0), fp.mem.Read32(cfg.GlobalIRQOffset))

	fp.calls = nil
	require.NoError(t, d.Detach())
	assert.Equal(t, []string{"unmap", "release-region"}, fp.calls)
}

func TestAttachStateErrors(t *testing.T) {
	fp := newFakePlatform()
	d := New(gpio.DefaultConfig(), fp.platform())

	assert.ErrorIs(t, d.Detach(), ErrNotAttached)

	require.NoError(t, d.Attach(testResources()))
	fp.calls = nil
	assert.ErrorIs(t, d.Attach(testResources()), ErrAlreadyAttached)
	assert.Empty(t, fp.calls)
	assert.Equal(t, SessionAllocated, d.State())

	require.NoError(t, d.Detach())
	assert.ErrorIs(t, d.Detach(), ErrNotAttached)
}

func TestAttachRejectsLayoutOutsideWindow(t *testing.T) {
	fp := newFakePlatform()
	cfg := gpio.DefaultConfig()
	cfg.IRQStatusOffset = 0x2000
	d := New(cfg, fp.platform())

	require.Error(t, d.Attach(testResources()))
	assert.Empty(t, fp.calls)
	assert.Equal(t, Unattached, d.State())
}

func TestDetachIsBestEffort(t *testing.T) {
	fp := newFakePlatform()
	d := New(gpio.DefaultConfig(), fp.platform())
	require.NoError(t, d.Attach(testResources()))

	fp.unmapErr = errors.New("unmap failed")
	fp.calls = nil
	err := d.Detach()
	require.Error(t, err)
	assert.ErrorIs(t, err, fp.unmapErr)
	assert.Equal(t, []string{"release-channel", "unbind", "unmap", "release-region"}, fp.calls)
	assert.Equal(t, Unattached, d.State())
}

func TestResourcesFromNode(t *testing.T) {
	n := fdt.Node{
		Name: "gpio@41200000",
		Properties: map[string]fdt.Property{
			"compatible": {Strings: Compatible},
			"reg":        {U32: []uint32{0x41200000, 0x10000}},
			"interrupts": {U32: []uint32{0, 29, 4}},
		},
	}
	res, err := ResourcesFromNode(n)
	require.NoError(t, err)
	assert.Equal(t, Resources{Name: DriverName, Base: 0x41200000, Size: 0x10000, IRQ: 29, HasIRQ: true}, res)

	_, err = ResourcesFromNode(fdt.Node{Name: "gpio"})
	assert.ErrorIs(t, err, ErrNoMemResource)
}
