package slotring

import (
	"encoding/binary"
	"math"

	"github.com/joeycumines/logiface"
)

// lengthWidth is the size of one length table entry.
const lengthWidth = 4

// Queue carries variable-length messages of up to MaxLen bytes over a
// Buffer whose slots are MaxLen bytes wide. A parallel length table records
// how many bytes of each slot are in use; the entry is 0 whenever the slot
// holds no unread message.
type Queue[L Locker] struct {
	buf     *Buffer[L]
	lengths []byte
	mem     *backing
	logger  *logiface.Logger[logiface.Event]
}

// QueueStorageSize returns the number of bytes WithStorage must provide for
// NewQueue: the slots followed by the length table.
func QueueStorageSize(capacity, maxLen int) int {
	return capacity*maxLen + capacity*lengthWidth
}

// NewQueue creates a queue of capacity messages of at most maxLen bytes.
//
// With WithAllocator the slots and the length table are separate
// allocations; if the second fails, the first is returned to the allocator
// before the error is.
func NewQueue[L Locker](capacity, maxLen int, opts ...Option) (*Queue[L], error) {
	if !validSize(capacity, maxLen) ||
		uint64(maxLen) > math.MaxUint32 ||
		capacity > (math.MaxInt-capacity*maxLen)/lengthWidth {
		return nil, ErrInvalidArgument
	}
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	mem, err := newBacking(o, capacity*maxLen, capacity*lengthWidth)
	if err != nil {
		return nil, err
	}
	q := &Queue[L]{
		buf:     newBuffer[L](mem.views[0], capacity, maxLen, nil),
		lengths: mem.views[1],
		mem:     mem,
		logger:  o.logger,
	}
	// allocator and caller memory may hold anything
	clear(q.lengths)
	q.logger.Debug().
		Int(`capacity`, capacity).
		Int(`max_len`, maxLen).
		Bool(`atomic`, q.buf.tracking).
		Bool(`caller_storage`, mem.alloc == nil).
		Log(`queue created`)
	return q, nil
}

func (q *Queue[L]) msgLen(i int) int {
	return int(binary.LittleEndian.Uint32(q.lengths[i*lengthWidth:]))
}

func (q *Queue[L]) setMsgLen(i, n int) {
	binary.LittleEndian.PutUint32(q.lengths[i*lengthWidth:], uint32(n))
}

// Write enqueues p, silently truncated to MaxLen bytes, and returns the
// number of bytes stored.
func (q *Queue[L]) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ErrInvalidArgument
	}
	i, slot, err := q.buf.ClaimWrite()
	if err != nil {
		return 0, err
	}
	n := copy(slot, p)
	q.setMsgLen(i, n)
	if err := q.buf.ReleaseWrite(i); err != nil {
		return 0, err
	}
	return n, nil
}

// Read dequeues the oldest message into p and returns the number of message
// bytes copied, min(len(p), message length). Any bytes of p past the message
// are zeroed.
func (q *Queue[L]) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, ErrInvalidArgument
	}
	i, slot, err := q.buf.ClaimRead()
	if err != nil {
		return 0, err
	}
	n := copy(p, slot[:q.msgLen(i)])
	clear(p[n:])
	q.setMsgLen(i, 0)
	if err := q.buf.ReleaseRead(i); err != nil {
		return 0, err
	}
	return n, nil
}

// ClaimWrite reserves a slot of MaxLen bytes for the caller to fill in place.
// The message is published by ReleaseWrite.
func (q *Queue[L]) ClaimWrite() (int, []byte, error) {
	return q.buf.ClaimWrite()
}

// ReleaseWrite publishes the first n bytes of slot i, previously returned by
// ClaimWrite. n is truncated to MaxLen.
func (q *Queue[L]) ReleaseWrite(i, n int) error {
	if err := q.buf.checkIndex(i); err != nil {
		return err
	}
	if n <= 0 {
		return ErrInvalidArgument
	}
	if !q.buf.holds(i, SlotClaimed) {
		return ErrNotPermitted
	}
	q.setMsgLen(i, min(n, q.buf.elemSize))
	return q.buf.ReleaseWrite(i)
}

// ClaimRead reserves the oldest message and returns its slot index and its
// bytes, without copying. The slot is freed by ReleaseRead.
func (q *Queue[L]) ClaimRead() (int, []byte, error) {
	i, slot, err := q.buf.ClaimRead()
	if err != nil {
		return 0, nil, err
	}
	return i, slot[:q.msgLen(i)], nil
}

// ReleaseRead frees slot i, previously returned by ClaimRead.
func (q *Queue[L]) ReleaseRead(i int) error {
	if err := q.buf.checkIndex(i); err != nil {
		return err
	}
	if !q.buf.holds(i, SlotReading) {
		return ErrNotPermitted
	}
	q.setMsgLen(i, 0)
	return q.buf.ReleaseRead(i)
}

func (q *Queue[L]) IsEmpty() bool { return q.buf.IsEmpty() }

func (q *Queue[L]) IsFull() bool { return q.buf.IsFull() }

func (q *Queue[L]) Len() int { return q.buf.Len() }

func (q *Queue[L]) Cap() int { return q.buf.Cap() }

// MessageLen returns the recorded length of the message in slot i, or 0 if
// the slot holds no unread message.
func (q *Queue[L]) MessageLen(i int) (int, error) {
	if err := q.buf.checkIndex(i); err != nil {
		return 0, err
	}
	return q.msgLen(i), nil
}

// MaxLen returns the maximum message length.
func (q *Queue[L]) MaxLen() int { return q.buf.elemSize }

// Stats returns the counters of the underlying buffer.
func (q *Queue[L]) Stats() Stats { return q.buf.Stats() }

// Clear logically empties the queue and zeroes the length table. It fails
// with ErrBusy under the same conditions as Buffer.Clear.
func (q *Queue[L]) Clear() error {
	return q.buf.clear(func() { clear(q.lengths) })
}

// Close releases the slots and the length table to the allocator they came
// from. Every later operation fails with ErrInvalidArgument.
func (q *Queue[L]) Close() error {
	if err := q.buf.Close(); err != nil {
		return err
	}
	err := q.mem.release()
	q.logger.Debug().
		Int(`capacity`, q.buf.Cap()).
		Bool(`released`, err == nil).
		Log(`queue closed`)
	return err
}
