// Package iomem tracks exclusive claims on physical I/O memory ranges.
package iomem

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrRegionBusy is returned when a claim overlaps an existing one.
var ErrRegionBusy = errors.New("iomem: region busy")

// Claim is a named, claimed range [Base, Base+Size).
type Claim struct {
	Name string
	Base uint64
	Size uint64
}

// End returns the first address after the claim.
func (c Claim) End() uint64 {
	return c.Base + c.Size
}

// Regions is a registry of claimed I/O memory ranges.
type Regions struct {
	mu     sync.Mutex
	claims []Claim
}

// NewRegions returns an empty registry.
func NewRegions() *Regions {
	return &Regions{}
}

// Claim reserves [base, base+size) for name.
func (r *Regions) Claim(name string, base, size uint64) error {
	if size == 0 {
		return fmt.Errorf("iomem: cannot claim zero-size region for %s", name)
	}
	end := base + size
	if end < base {
		return fmt.Errorf("iomem: region %s at 0x%x overflows", name, base)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.claims {
		if base < c.End() && end > c.Base {
			return fmt.Errorf("%w: %s [0x%x-0x%x) overlaps %s [0x%x-0x%x)",
				ErrRegionBusy, name, base, end, c.Name, c.Base, c.End())
		}
	}

	r.claims = append(r.claims, Claim{Name: name, Base: base, Size: size})
	return nil
}

// Release drops the claim that exactly matches base and size. It reports
// whether a claim was removed.
func (r *Regions) Release(base, size uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.claims {
		if c.Base == base && c.Size == size {
			r.claims = append(r.claims[:i], r.claims[i+1:]...)
			return true
		}
	}
	return false
}

// Claimed returns a copy of all claims ordered by base address.
func (r *Regions) Claimed() []Claim {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Claim, len(r.claims))
	copy(result, r.claims)
	sort.Slice(result, func(i, j int) bool { return result[i].Base < result[j].Base })
	return result
}
