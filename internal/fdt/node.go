// Package fdt models a device-tree style hardware description used to find
// the GPIO peripheral and its resources.
package fdt

// Property is one value of a board description node. A well formed property
// sets exactly one of its fields.
type Property struct {
	Strings []string `yaml:"strings,omitempty"`
	U32     []uint32 `yaml:"u32,omitempty"`
	U64     []uint64 `yaml:"u64,omitempty"`
	Bytes   []byte   `yaml:"bytes,omitempty"`
	Flag    bool     `yaml:"flag,omitempty"`
}

// kinds lists the populated fields in declaration order.
func (p Property) kinds() []string {
	var k []string
	if len(p.Strings) > 0 {
		k = append(k, "strings")
	}
	if len(p.U32) > 0 {
		k = append(k, "u32")
	}
	if len(p.U64) > 0 {
		k = append(k, "u64")
	}
	if len(p.Bytes) > 0 {
		k = append(k, "bytes")
	}
	if p.Flag {
		k = append(k, "flag")
	}
	return k
}

// Kind names the populated field, or "" for an empty property.
func (p Property) Kind() string {
	if k := p.kinds(); len(k) > 0 {
		return k[0]
	}
	return ""
}

// Node is a named set of properties with child nodes.
type Node struct {
	Name       string              `yaml:"name"`
	Properties map[string]Property `yaml:"properties,omitempty"`
	Children   []Node              `yaml:"children,omitempty"`
}
