package gpio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DataOffsetA is the fixed offset of bank A's data register.
const DataOffsetA = 0x00

// Config holds the register layout of the peripheral. It is fixed once the
// device is attached.
type Config struct {
	DirMaskA    uint32 `yaml:"dir_mask_a"`
	DirOffsetA  uint64 `yaml:"dir_offset_a"`
	DataOffsetB uint64 `yaml:"data_offset_b"`
	DirMaskB    uint32 `yaml:"dir_mask_b"`
	DirOffsetB  uint64 `yaml:"dir_offset_b"`

	GlobalIRQMask   uint32 `yaml:"global_irq_mask"`
	GlobalIRQOffset uint64 `yaml:"global_irq_offset"`

	IRQEnableMaskA  uint32 `yaml:"irq_enable_mask_a"`
	IRQEnableMaskB  uint32 `yaml:"irq_enable_mask_b"`
	IRQEnableOffset uint64 `yaml:"irq_enable_offset"`

	IRQStatusMaskA  uint32 `yaml:"irq_status_mask_a"`
	IRQStatusMaskB  uint32 `yaml:"irq_status_mask_b"`
	IRQStatusOffset uint64 `yaml:"irq_status_offset"`
}

// DefaultConfig returns the register layout of a Xilinx AXI GPIO core with
// bank A as inputs and bank B as outputs.
func DefaultConfig() Config {
	return Config{
		DirMaskA:    0xffffffff,
		DirOffsetA:  0x04,
		DataOffsetB: 0x08,
		DirMaskB:    0x00000000,
		DirOffsetB:  0x0c,

		GlobalIRQMask:   0x80000000,
		GlobalIRQOffset: 0x11c,

		IRQEnableMaskA:  0x00000001,
		IRQEnableMaskB:  0x00000002,
		IRQEnableOffset: 0x128,

		IRQStatusMaskA:  0x00000001,
		IRQStatusMaskB:  0x00000002,
		IRQStatusOffset: 0x120,
	}
}

// LoadConfig reads a YAML register layout. Keys missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every register offset is aligned and lies inside a
// window of windowSize bytes.
func (c Config) Validate(windowSize uint64) error {
	offsets := []struct {
		name string
		off  uint64
	}{
		{"data_offset_a", DataOffsetA},
		{"dir_offset_a", c.DirOffsetA},
		{"data_offset_b", c.DataOffsetB},
		{"dir_offset_b", c.DirOffsetB},
		{"global_irq_offset", c.GlobalIRQOffset},
		{"irq_enable_offset", c.IRQEnableOffset},
		{"irq_status_offset", c.IRQStatusOffset},
	}
	for _, o := range offsets {
		if o.off%4 != 0 {
			return fmt.Errorf("gpio: %s %#x is not 4-byte aligned", o.name, o.off)
		}
		if o.off >= windowSize || windowSize-o.off < 4 {
			return fmt.Errorf("gpio: %s %#x outside register window of size %#x", o.name, o.off, windowSize)
		}
	}
	return nil
}
