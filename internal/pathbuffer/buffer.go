// Package pathbuffer holds solved paths in fixed-capacity storage.
//
// A path longer than the capacity keeps its first capacity positions
// (start side) and is flagged as truncated. Memory never grows past the
// capacity, whatever the true path length.
package pathbuffer

import "github.com/ChuLiYu/gridpath/pkg/types"

// DefaultCapacity is used when a caller passes a non-positive capacity.
const DefaultCapacity = 512

func normalize(capacity int) int {
	if capacity <= 0 {
		return DefaultCapacity
	}
	return capacity
}

// FromPositions copies at most capacity positions in order.
// truncated is true when positions did not fit.
func FromPositions(positions []types.Point, capacity int) (stored []types.Point, truncated bool) {
	capacity = normalize(capacity)
	n := len(positions)
	if n > capacity {
		n = capacity
	}
	stored = make([]types.Point, n)
	copy(stored, positions[:n])
	return stored, len(positions) > capacity
}

// Buffer is the streaming form of FromPositions.
type Buffer struct {
	capacity  int
	positions []types.Point
	seen      int
}

func New(capacity int) *Buffer {
	capacity = normalize(capacity)
	return &Buffer{capacity: capacity}
}

// Push appends p if there is room. It reports whether p was stored; the
// position is counted either way.
func (b *Buffer) Push(p types.Point) bool {
	b.seen++
	if len(b.positions) >= b.capacity {
		return false
	}
	b.positions = append(b.positions, p)
	return true
}

// Len is the number of stored positions.
func (b *Buffer) Len() int { return len(b.positions) }

// Seen is the number of positions pushed, stored or not.
func (b *Buffer) Seen() int { return b.seen }

func (b *Buffer) Truncated() bool { return b.seen > b.capacity }

// Positions returns a copy of the stored positions.
func (b *Buffer) Positions() []types.Point {
	out := make([]types.Point, len(b.positions))
	copy(out, b.positions)
	return out
}
