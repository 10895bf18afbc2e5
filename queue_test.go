package slotring

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewQueueInvalid(t *testing.T) {
	_, err := NewQueue[*SlotLock](0, 4)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewQueue[*SlotLock](4, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewQueue[*SlotLock](4, 4, WithStorage(make([]byte, QueueStorageSize(4, 4)-1)))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestQueueTruncation(t *testing.T) {
	q, err := NewQueue[*SlotLock](2, 4)
	require.NoError(t, err)
	require.Equal(t, 4, q.MaxLen())
	require.Equal(t, 2, q.Cap())

	n, err := q.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	n, err = q.MessageLen(0)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	_, err = q.MessageLen(2)
	require.ErrorIs(t, err, ErrInvalidArgument)

	out := []byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	n, err = q.Read(out)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0}, out)
	require.Equal(t, 0, q.msgLen(0))
	require.True(t, q.IsEmpty())
}

func TestQueueVariableLength(t *testing.T) {
	q, err := NewQueue[*SlotLock](4, 8)
	require.NoError(t, err)

	msgs := []string{"a", "hello", "12345678", "xy"}
	for _, m := range msgs {
		n, err := q.Write([]byte(m))
		require.NoError(t, err)
		require.Equal(t, len(m), n)
	}
	require.True(t, q.IsFull())
	_, err = q.Write([]byte("z"))
	require.ErrorIs(t, err, ErrNoSpace)

	for _, m := range msgs {
		out := make([]byte, 8)
		n, err := q.Read(out)
		require.NoError(t, err)
		require.Equal(t, m, string(out[:n]))
	}
	_, err = q.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestQueueShortReadBuffer(t *testing.T) {
	q, err := NewQueue[NopLock](1, 8)
	require.NoError(t, err)

	_, err = q.Write([]byte("abcdef"))
	require.NoError(t, err)
	out := make([]byte, 3)
	n, err := q.Read(out)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, "abc", string(out))
}

func TestQueueEmptyReadLeavesOutput(t *testing.T) {
	q, err := NewQueue[*SlotLock](2, 4)
	require.NoError(t, err)

	out := []byte{7, 7}
	_, err = q.Read(out)
	require.ErrorIs(t, err, ErrWouldBlock)
	require.Equal(t, []byte{7, 7}, out)

	_, err = q.Write(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = q.Read(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestQueueSplitClaimRelease(t *testing.T) {
	q, err := NewQueue[*SlotLock](2, 6)
	require.NoError(t, err)

	i, slot, err := q.ClaimWrite()
	require.NoError(t, err)
	require.Len(t, slot, 6)
	copy(slot, "ping")
	require.ErrorIs(t, q.ReleaseWrite(i, 0), ErrInvalidArgument)
	require.NoError(t, q.ReleaseWrite(i, 4))
	require.ErrorIs(t, q.ReleaseWrite(i, 4), ErrNotPermitted)

	// length past the slot is clamped
	j, slot, err := q.ClaimWrite()
	require.NoError(t, err)
	copy(slot, "pongpo")
	require.NoError(t, q.ReleaseWrite(j, 100))

	k, msg, err := q.ClaimRead()
	require.NoError(t, err)
	require.Equal(t, i, k)
	require.Equal(t, "ping", string(msg))
	require.NoError(t, q.ReleaseRead(k))
	require.Equal(t, 0, q.msgLen(k))
	require.ErrorIs(t, q.ReleaseRead(k), ErrNotPermitted)

	k, msg, err = q.ClaimRead()
	require.NoError(t, err)
	require.Equal(t, j, k)
	require.Equal(t, "pongpo", string(msg))
	require.NoError(t, q.ReleaseRead(k))

	require.ErrorIs(t, q.ReleaseWrite(5, 1), ErrInvalidArgument)
	require.ErrorIs(t, q.ReleaseRead(-1), ErrInvalidArgument)
}

func TestQueueClear(t *testing.T) {
	q, err := NewQueue[*SlotLock](3, 4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := q.Write([]byte{byte(i + 1)})
		require.NoError(t, err)
	}
	require.NoError(t, q.Clear())
	require.True(t, q.IsEmpty())
	require.Equal(t, 0, q.Len())
	for i := 0; i < 3; i++ {
		require.Equal(t, 0, q.msgLen(i))
	}

	i, _, err := q.ClaimWrite()
	require.NoError(t, err)
	require.ErrorIs(t, q.Clear(), ErrBusy)
	require.NoError(t, q.ReleaseWrite(i, 1))
	require.NoError(t, q.Clear())
}

func TestQueueWithStorage(t *testing.T) {
	storage := make([]byte, QueueStorageSize(2, 3))
	for i := range storage {
		storage[i] = 0xFF
	}
	q, err := NewQueue[*SlotLock](2, 3, WithStorage(storage))
	require.NoError(t, err)

	// the length table sits after the slots and starts zeroed
	require.Equal(t, make([]byte, 2*lengthWidth), storage[6:])

	_, err = q.Write([]byte{0xAB, 0xCD})
	require.NoError(t, err)
	require.Equal(t, []byte{0xAB, 0xCD}, storage[:2])
	require.Equal(t, []byte{2, 0, 0, 0}, storage[6:10])
	require.NoError(t, q.Close())
}

func TestQueueAllocationRollback(t *testing.T) {
	a := &testAllocator{failAt: 2}
	q, err := NewQueue[*SlotLock](4, 16, WithAllocator(a))
	require.ErrorIs(t, err, ErrAllocation)
	require.ErrorIs(t, err, errTestAllocator)
	require.Nil(t, q)
	require.Equal(t, 0, a.live)
	require.Len(t, a.deallocated, 1)
	require.Len(t, a.deallocated[0], 4*16)
}

func TestQueueClose(t *testing.T) {
	a := &testAllocator{}
	q, err := NewQueue[*SlotLock](4, 16, WithAllocator(a))
	require.NoError(t, err)
	require.Equal(t, 2, a.live)

	require.NoError(t, q.Close())
	require.Equal(t, 0, a.live)
	require.ErrorIs(t, q.Close(), ErrInvalidArgument)
	_, err = q.Write([]byte{1})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.ErrorIs(t, q.Clear(), ErrInvalidArgument)
}

// Single producer and single consumer passing messages of varying length.
func TestQueueSPSC(t *testing.T) {
	const (
		capacity = 16
		maxLen   = 32
		N        = 50_000
	)
	q, err := NewQueue[*SlotLock](capacity, maxLen)
	require.NoError(t, err)

	message := func(i int) []byte {
		return []byte(fmt.Sprintf("%0*d", 1+i%maxLen, i))[:1+i%maxLen]
	}

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < N; {
			_, err := q.Write(message(i))
			switch {
			case err == nil:
				i++
			case errors.Is(err, ErrNoSpace), errors.Is(err, ErrBusy):
				runtime.Gosched()
			default:
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		out := make([]byte, maxLen)
		for i := 0; i < N; {
			n, err := q.Read(out)
			switch {
			case err == nil:
				if want := message(i); string(out[:n]) != string(want) {
					return fmt.Errorf("message %d: expected %q, got %q", i, want, out[:n])
				}
				i++
			case errors.Is(err, ErrWouldBlock), errors.Is(err, ErrBusy):
				runtime.Gosched()
			default:
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
	require.True(t, q.IsEmpty())
}
