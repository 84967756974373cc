package fdt

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// LoadBoard reads a YAML hardware description rooted at a single node.
func LoadBoard(path string) (Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Node{}, fmt.Errorf("read %s: %w", path, err)
	}
	var root Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Node{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := root.validate(); err != nil {
		return Node{}, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

func (n Node) validate() error {
	for name, p := range n.Properties {
		if k := p.kinds(); len(k) > 1 {
			return fmt.Errorf("fdt: node %q property %q sets %d value kinds %v", n.Name, name, len(k), k)
		}
	}
	for _, child := range n.Children {
		if err := child.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Compatible returns the node's compatible strings.
func (n Node) Compatible() []string {
	return n.Properties["compatible"].Strings
}

// FindCompatible returns the first node, in depth-first order, whose
// compatible list contains any of compat.
func (n Node) FindCompatible(compat ...string) (Node, bool) {
	for _, c := range n.Compatible() {
		if slices.Contains(compat, c) {
			return n, true
		}
	}
	for _, child := range n.Children {
		if found, ok := child.FindCompatible(compat...); ok {
			return found, true
		}
	}
	return Node{}, false
}

// Reg returns the first (address, size) pair of the node's reg property.
// Both u64 pairs and u32 pairs are accepted.
func (n Node) Reg() (base, size uint64, ok bool) {
	p, exists := n.Properties["reg"]
	if !exists {
		return 0, 0, false
	}
	switch {
	case len(p.U64) >= 2:
		return p.U64[0], p.U64[1], true
	case len(p.U32) >= 2:
		return uint64(p.U32[0]), uint64(p.U32[1]), true
	default:
		return 0, 0, false
	}
}

// Interrupt returns the node's interrupt number. A single cell is used as
// is; with three cells (GIC style: type, number, flags) the number cell is
// returned.
func (n Node) Interrupt() (uint32, bool) {
	p, exists := n.Properties["interrupts"]
	if !exists {
		return 0, false
	}
	switch len(p.U32) {
	case 0:
		return 0, false
	case 3:
		return p.U32[1], true
	default:
		return p.U32[0], true
	}
}
