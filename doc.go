// Package slotring provides fixed-capacity containers (a circular buffer, a
// variable-length message queue and a stack) for resource-constrained
// programs. Capacity and slot size are fixed at construction and memory is
// never resized.
//
// Every container is generic over its synchronization strategy:
//
//	b, err := slotring.NewBuffer[*slotring.SlotLock](16, 64) // concurrent
//	s, err := slotring.NewStack[slotring.NopLock](8, 4)     // single-threaded
//
// With *SlotLock each slot moves Free -> Claimed -> Ready -> Reading -> Free,
// every step a compare-and-set from the expected prior state. Two gates, one
// per side, serialize the cursor bookkeeping. Nothing blocks or spins: a lost
// race returns ErrBusy, a full container ErrNoSpace, an empty one
// ErrWouldBlock, and the caller decides whether to try again (see Retry).
//
// Writes and reads come in two forms: Write/Read copy the payload, while the
// split ClaimWrite/ReleaseWrite and ClaimRead/ReleaseRead hand out the slot
// memory itself. A slot claimed and never released stays unavailable.
//
// Memory comes from the Go heap, from an Allocator (WithAllocator), or from
// caller storage (WithStorage). BlockAllocator is a lock-free fixed-block
// arena suitable for the second form.
package slotring
