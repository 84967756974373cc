package fdt

import (
	"os"
	"path/filepath"
	"testing"
)

const testBoard = `
name: /
children:
  - name: amba
    children:
      - name: uart@e0001000
        properties:
          compatible: {strings: ["xlnx,xuartps"]}
          reg: {u32: [0xe0001000, 0x1000]}
      - name: gpio@41200000
        properties:
          compatible: {strings: ["xlnx,axi-gpio-1.01.b", "xlnx,xps-gpio-1.00.a"]}
          reg: {u32: [0x41200000, 0x10000]}
          interrupts: {u32: [0, 29, 4]}
      - name: gpio@41210000
        properties:
          compatible: {strings: ["xlnx,xps-gpio-1.00.a"]}
          reg: {u64: [0x41210000, 0x1000]}
`

func writeBoard(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write board: %v", err)
	}
	return path
}

func TestLoadBoardAndFind(t *testing.T) {
	root, err := LoadBoard(writeBoard(t, testBoard))
	if err != nil {
		t.Fatalf("LoadBoard: %v", err)
	}

	node, ok := root.FindCompatible("xlnx,axi-gpio-1.01.b")
	if !ok {
		t.Fatalf("gpio node not found")
	}
	if node.Name != "gpio@41200000" {
		t.Fatalf("found %q, want gpio@41200000", node.Name)
	}

	base, size, ok := node.Reg()
	if !ok || base != 0x41200000 || size != 0x10000 {
		t.Fatalf("reg: got %#x/%#x ok=%v", base, size, ok)
	}
	irq, ok := node.Interrupt()
	if !ok || irq != 29 {
		t.Fatalf("interrupt: got %d ok=%v, want 29", irq, ok)
	}

	second, ok := root.FindCompatible("xlnx,xps-gpio-1.00.a")
	if !ok || second.Name != "gpio@41200000" {
		t.Fatalf("depth-first match: got %q", second.Name)
	}
}

func TestNodeWithoutInterrupt(t *testing.T) {
	n := Node{
		Name: "gpio",
		Properties: map[string]Property{
			"reg": {U64: []uint64{0x1000, 0x100}},
		},
	}
	if _, ok := n.Interrupt(); ok {
		t.Fatalf("unexpected interrupt")
	}
	if base, size, ok := n.Reg(); !ok || base != 0x1000 || size != 0x100 {
		t.Fatalf("reg: got %#x/%#x ok=%v", base, size, ok)
	}
	if _, ok := n.FindCompatible("anything"); ok {
		t.Fatalf("matched node without compatible")
	}

	single := Node{Properties: map[string]Property{"interrupts": {U32: []uint32{61}}}}
	if irq, ok := single.Interrupt(); !ok || irq != 61 {
		t.Fatalf("single-cell interrupt: got %d ok=%v", irq, ok)
	}
}

func TestLoadBoardRejectsMixedProperty(t *testing.T) {
	body := `
name: /
properties:
  reg: {u32: [1, 2], u64: [1, 2]}
`
	if _, err := LoadBoard(writeBoard(t, body)); err == nil {
		t.Fatalf("expected error for mixed property kinds")
	}
}

func TestPropertyKind(t *testing.T) {
	tests := []struct {
		p    Property
		want string
	}{
		{Property{Strings: []string{"a"}}, "strings"},
		{Property{U32: []uint32{1}}, "u32"},
		{Property{U64: []uint64{1}}, "u64"},
		{Property{Bytes: []byte{1}}, "bytes"},
		{Property{Flag: true}, "flag"},
		{Property{}, ""},
	}
	for _, tt := range tests {
		if got := tt.p.Kind(); got != tt.want {
			t.Fatalf("Kind: got %q, want %q", got, tt.want)
		}
	}
}
