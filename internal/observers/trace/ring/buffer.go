// Package ring stores variable length trace records in a fixed capacity
// byte arena. When the arena is full the oldest records are evicted to
// make room; a record is never split across the end of the arena.
//
// A Buffer is not safe for concurrent use. All inserts and iteration must
// happen on the goroutine that owns it.
package ring

import (
	"errors"
	"fmt"

	"github.com/yairfalse/tapio-trace/internal/observers/trace/record"
)

// DefaultCapacity is the default arena size in bytes
const DefaultCapacity = 1024 * 1024

var (
	// ErrRecordTooLarge is returned by Insert for records that can never fit
	ErrRecordTooLarge = record.ErrRecordTooLarge

	// ErrMalformedRecord is returned by Insert when the encoded size disagrees with the data
	ErrMalformedRecord = errors.New("malformed record")

	// ErrNotAllocated is returned by Insert before Allocate has been called
	ErrNotAllocated = errors.New("ring buffer arena not allocated")

	// ErrDisposed is returned by operations on a released buffer
	ErrDisposed = errors.New("ring buffer disposed")

	// ErrInvalidCapacity is returned by New for capacities below one header
	ErrInvalidCapacity = errors.New("invalid ring buffer capacity")
)

// Cursor is a position in the arena returned by Traverse
type Cursor int

// BeforeFirst is the cursor positioned before the oldest record
const BeforeFirst Cursor = -1

// Buffer is a circular arena of records.
//
// When not empty, the records from head to tail (following the wrap)
// form the retained sequence, oldest at head. head >= tail means the
// sequence wraps; head == tail is an exactly full arena.
type Buffer struct {
	capacity int
	arena    []byte

	head   int
	tail   int
	newest int
	empty  bool

	records    int
	usedBytes  int
	generation uint64

	inserted uint64
	evicted  uint64

	disposed bool
}

// New creates a buffer of the given capacity. The arena is not allocated
// until Allocate is called.
func New(capacity int) (*Buffer, error) {
	if capacity < record.HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidCapacity, capacity, record.HeaderSize)
	}
	return &Buffer{
		capacity: capacity,
		empty:    true,
	}, nil
}

// Allocate creates the arena if it does not exist yet
func (b *Buffer) Allocate() error {
	if b.disposed {
		return ErrDisposed
	}
	if b.arena == nil {
		b.arena = make([]byte, b.capacity)
	}
	return nil
}

// Release drops the arena. The buffer cannot be used afterwards and any
// outstanding iterator fails on its next step.
func (b *Buffer) Release() {
	if b.disposed {
		return
	}
	b.arena = nil
	b.clear()
	b.disposed = true
	b.generation++
}

// Reset empties the buffer and keeps the arena
func (b *Buffer) Reset() {
	b.clear()
	b.generation++
}

func (b *Buffer) clear() {
	b.head = 0
	b.tail = 0
	b.newest = 0
	b.empty = true
	b.records = 0
	b.usedBytes = 0
}

// Insert copies rec into the arena, evicting the oldest records if needed.
// It returns the number of records evicted. A rejected record leaves the
// buffer and its generation untouched.
func (b *Buffer) Insert(rec []byte) (int, error) {
	if b.disposed {
		return 0, ErrDisposed
	}
	if b.arena == nil {
		return 0, ErrNotAllocated
	}

	n := len(rec)
	if n > b.capacity || n > record.MaxRecordSize {
		return 0, fmt.Errorf("%w: %d bytes, capacity %d", ErrRecordTooLarge, n, b.capacity)
	}
	if n < record.HeaderSize || record.SizeAt(rec, 0) != n {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedRecord, n)
	}

	evicted := 0
	pos := 0
	if !b.empty {
		wrap := b.tail+n > b.capacity
		if !wrap {
			pos = b.tail
		}

		for !b.empty && b.overlaps(pos, n, wrap) {
			b.evictHead()
			evicted++
		}

		if !b.empty && wrap && b.capacity-b.tail >= record.HeaderSize {
			record.WriteWrapMarker(b.arena, b.tail)
		}
	}
	if b.empty {
		pos = 0
		b.head = 0
		b.empty = false
	}

	copy(b.arena[pos:pos+n], rec)
	b.newest = pos
	b.tail = pos + n
	b.records++
	b.usedBytes += n
	b.inserted++
	b.evicted += uint64(evicted)
	b.generation++

	return evicted, nil
}

// overlaps reports whether the record at head would be clobbered by
// writing n bytes at pos. When wrapping, every record in the wrapped
// segment is older than the ones at the start of the arena, so all of
// them must go before anything at the start can be overwritten.
func (b *Buffer) overlaps(pos, n int, wrap bool) bool {
	wrapped := b.head >= b.tail
	if wrap {
		return wrapped || b.head < n
	}
	return wrapped && b.head < pos+n
}

func (b *Buffer) evictHead() {
	size := record.SizeAt(b.arena, b.head)
	b.records--
	b.usedBytes -= size

	next, ok := b.next(b.head)
	if !ok {
		b.clear()
		return
	}
	b.head = next
}

// next returns the position of the record following the one at at
func (b *Buffer) next(at int) (int, bool) {
	pos := at + record.SizeAt(b.arena, at)
	if pos == b.tail {
		return 0, false
	}
	if b.capacity-pos < record.HeaderSize || record.IsWrapMarker(b.arena, pos) {
		pos = 0
	}
	return pos, true
}

// Traverse steps one record forward from cursor. BeforeFirst yields the
// oldest record. The returned view is valid until the next Insert or Reset.
func (b *Buffer) Traverse(cursor Cursor) (record.View, Cursor, bool) {
	if b.arena == nil || b.empty {
		return record.View{}, BeforeFirst, false
	}

	if cursor == BeforeFirst {
		return record.NewView(b.arena, b.head), Cursor(b.head), true
	}

	at := int(cursor)
	if at < 0 || at+record.HeaderSize > b.capacity {
		return record.View{}, BeforeFirst, false
	}

	pos, ok := b.next(at)
	if !ok {
		return record.View{}, BeforeFirst, false
	}
	return record.NewView(b.arena, pos), Cursor(pos), true
}

// Newest returns the most recently inserted record
func (b *Buffer) Newest() (record.View, bool) {
	if b.arena == nil || b.empty {
		return record.View{}, false
	}
	return record.NewView(b.arena, b.newest), true
}

// Capacity returns the arena size in bytes
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Len returns the number of retained records
func (b *Buffer) Len() int {
	return b.records
}

// UsedBytes returns the total size of retained records
func (b *Buffer) UsedBytes() int {
	return b.usedBytes
}

// Generation returns a counter that changes on every mutation
func (b *Buffer) Generation() uint64 {
	return b.generation
}

// Allocated reports whether the arena exists
func (b *Buffer) Allocated() bool {
	return b.arena != nil
}

// Disposed reports whether Release has been called
func (b *Buffer) Disposed() bool {
	return b.disposed
}

// Stats returns buffer statistics
func (b *Buffer) Stats() Stats {
	var utilization float64
	if b.capacity > 0 {
		utilization = float64(b.usedBytes) / float64(b.capacity) * 100
	}
	return Stats{
		Capacity:    b.capacity,
		Allocated:   len(b.arena),
		UsedBytes:   b.usedBytes,
		Records:     b.records,
		Generation:  b.generation,
		Inserted:    b.inserted,
		Evicted:     b.evicted,
		Utilization: utilization,
	}
}

// Stats contains ring buffer statistics
type Stats struct {
	Capacity    int     `json:"capacity" yaml:"capacity"`
	Allocated   int     `json:"allocated" yaml:"allocated"`
	UsedBytes   int     `json:"used_bytes" yaml:"used_bytes"`
	Records     int     `json:"records" yaml:"records"`
	Generation  uint64  `json:"generation" yaml:"generation"`
	Inserted    uint64  `json:"inserted" yaml:"inserted"`
	Evicted     uint64  `json:"evicted" yaml:"evicted"`
	Utilization float64 `json:"utilization_percent" yaml:"utilization_percent"`
}
