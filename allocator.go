package vkt

import (
	"fmt"
)

// Allocation is a suballocated region inside a larger DeviceMemory block.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// LinearAllocator hands out aligned suballocations from a fixed-size block.
// Allocations are kept sorted by offset so freed holes can be reused.
type LinearAllocator struct {
	Size   uint64
	Align  uint64
	allocs []*Allocation
}

func makeAlignUp(a uint64, align uint64) uint64 {
	m := a % align
	if m == 0 {
		return a
	}
	return (a - m) + align
}

func (p *LinearAllocator) align() uint64 {
	if p.Align == 0 {
		return 1
	}
	return p.Align
}

func (p *LinearAllocator) Free(fa *Allocation) {
	for i, a := range p.allocs {
		if a == fa {
			p.allocs = append(p.allocs[:i], p.allocs[i+1:]...)
			return
		}
	}
}

// Allocate returns a region of at least size bytes or nil when no hole fits.
func (p *LinearAllocator) Allocate(size uint64) *Allocation {
	align := p.align()

	if len(p.allocs) == 0 {
		if size > p.Size {
			return nil
		}
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}

	// Hole before the first allocation.
	if p.allocs[0].Offset >= size {
		na := &Allocation{Offset: 0, Size: size}
		p.allocs = append([]*Allocation{na}, p.allocs...)
		return na
	}

	// Holes between neighbouring allocations.
	for i := 0; i+1 < len(p.allocs); i++ {
		c := p.allocs[i]
		n := p.allocs[i+1]

		l := makeAlignUp(c.Offset+c.Size, align)
		if n.Offset >= l && n.Offset-l >= size {
			na := &Allocation{Offset: l, Size: size}
			p.allocs = append(p.allocs[:i+1], append([]*Allocation{na}, p.allocs[i+1:]...)...)
			return na
		}
	}

	// Tail space after the last allocation.
	last := p.allocs[len(p.allocs)-1]
	nl := makeAlignUp(last.Offset+last.Size, align)
	if nl <= p.Size && p.Size-nl >= size {
		na := &Allocation{Offset: nl, Size: size}
		p.allocs = append(p.allocs, na)
		return na
	}

	return nil
}

func (p *LinearAllocator) String() string {
	return fmt.Sprintf("%v", p.allocs)
}
