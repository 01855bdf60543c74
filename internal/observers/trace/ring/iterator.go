package ring

import (
	"errors"
	"iter"

	"github.com/yairfalse/tapio-trace/internal/observers/trace/record"
)

var (
	// ErrConcurrentModification is returned when the buffer changed after the iterator was created
	ErrConcurrentModification = errors.New("ring buffer modified during iteration")

	// ErrUseAfterDispose is returned when the iterated buffer has been released
	ErrUseAfterDispose = errors.New("ring buffer used after dispose")
)

// Iterator walks the records retained at the time it was created, oldest
// first. It is single pass; create a new one to start over.
type Iterator struct {
	buf        *Buffer
	generation uint64
	cursor     Cursor
	done       bool
	err        error
}

// Snapshot returns an iterator stamped with the current generation
func (b *Buffer) Snapshot() *Iterator {
	return &Iterator{
		buf:        b,
		generation: b.generation,
		cursor:     BeforeFirst,
	}
}

// Next returns the next record. It returns false with a nil error once the
// records are exhausted. Errors are sticky.
func (it *Iterator) Next() (record.View, bool, error) {
	if it.err != nil {
		return record.View{}, false, it.err
	}
	if it.done {
		return record.View{}, false, nil
	}

	if it.buf.disposed {
		it.err = ErrUseAfterDispose
		return record.View{}, false, it.err
	}
	if it.buf.generation != it.generation {
		it.err = ErrConcurrentModification
		return record.View{}, false, it.err
	}

	view, next, ok := it.buf.Traverse(it.cursor)
	if !ok {
		it.done = true
		return record.View{}, false, nil
	}
	it.cursor = next
	return view, true, nil
}

// Err returns the error that stopped the iterator, if any
func (it *Iterator) Err() error {
	return it.err
}

// All adapts the iterator for range loops. Iteration stops after the
// first error is yielded.
func (it *Iterator) All() iter.Seq2[record.View, error] {
	return func(yield func(record.View, error) bool) {
		for {
			view, ok, err := it.Next()
			if err != nil {
				yield(record.View{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(view, nil) {
				return
			}
		}
	}
}
