// Package shadow defines the validity-query contract that generated guards
// call, and an in-process reference memory used by the simulated driver and
// by tests.
package shadow

import (
	"math"
	"sync"

	"github.com/google/btree"
)

// Status is the answer to a validity query. The numeric values are what the
// device-side query function returns.
type Status uint8

const (
	Valid   Status = 0
	Invalid Status = 1
	Unknown Status = 2
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Querier answers whether [addr, addr+width) may be accessed.
type Querier interface {
	Query(addr, width uint64) Status
}

// Marker records allocation state for a range.
type Marker interface {
	Mark(addr, size uint64, valid bool)
}

type interval struct {
	start, end uint64
	valid      bool
}

func lessInterval(a, b interval) bool {
	return a.start < b.start
}

// Memory tracks non-overlapping address intervals, each valid or invalid.
// Addresses never marked are unknown. Memory is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[interval]
}

func NewMemory() *Memory {
	return &Memory{tree: btree.NewG(8, lessInterval)}
}

func rangeEnd(addr, size uint64) uint64 {
	if size > math.MaxUint64-addr {
		return math.MaxUint64
	}
	return addr + size
}

// overlapping returns the intervals intersecting [start, end) in address
// order. The caller holds the lock.
func (m *Memory) overlapping(start, end uint64) []interval {
	var out []interval
	m.tree.DescendLessOrEqual(interval{start: start}, func(iv interval) bool {
		if iv.start < start && iv.end > start {
			out = append(out, iv)
		}
		return false
	})
	m.tree.AscendGreaterOrEqual(interval{start: start}, func(iv interval) bool {
		if iv.start >= end {
			return false
		}
		out = append(out, iv)
		return true
	})
	return out
}

// Mark sets the state of [addr, addr+size), splitting any interval it
// partially covers.
func (m *Memory) Mark(addr, size uint64, valid bool) {
	if size == 0 {
		return
	}
	end := rangeEnd(addr, size)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, iv := range m.overlapping(addr, end) {
		m.tree.Delete(iv)
		if iv.start < addr {
			m.tree.ReplaceOrInsert(interval{start: iv.start, end: addr, valid: iv.valid})
		}
		if iv.end > end {
			m.tree.ReplaceOrInsert(interval{start: end, end: iv.end, valid: iv.valid})
		}
	}
	m.tree.ReplaceOrInsert(interval{start: addr, end: end, valid: valid})
}

// Query classifies an access. An access that touches nothing tracked is
// unknown; one that is fully inside valid intervals is valid; anything else,
// including an access running off the end of an allocation, is invalid.
func (m *Memory) Query(addr, width uint64) Status {
	if width == 0 {
		width = 1
	}
	end := rangeEnd(addr, width)

	m.mu.RLock()
	defer m.mu.RUnlock()
	overlaps := m.overlapping(addr, end)
	if len(overlaps) == 0 {
		return Unknown
	}
	var covered uint64
	for _, iv := range overlaps {
		if !iv.valid {
			return Invalid
		}
		covered += min(iv.end, end) - max(iv.start, addr)
	}
	if covered < end-addr {
		return Invalid
	}
	return Valid
}

// Reset forgets every interval.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Clear(false)
}

// Len returns the number of tracked intervals.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}
