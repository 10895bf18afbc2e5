package slotring

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotLockGates(t *testing.T) {
	l := NewSlotLock(4)
	require.Equal(t, 4, l.Len())

	require.True(t, l.AcquireWrite())
	require.False(t, l.AcquireWrite())
	// independent of the write gate
	require.True(t, l.AcquireRead())
	require.False(t, l.AcquireRead())

	l.ReleaseWrite()
	require.True(t, l.AcquireWrite())
	l.ReleaseRead()
	require.True(t, l.AcquireRead())
}

func TestSlotLockStates(t *testing.T) {
	l := NewSlotLock(2)
	for i := 0; i < 2; i++ {
		require.Equal(t, SlotFree, l.State(i))
	}

	require.False(t, l.ExpectState(0, SlotReady, SlotReading))
	require.Equal(t, SlotFree, l.State(0))
	require.True(t, l.ExpectState(0, SlotFree, SlotClaimed))
	require.Equal(t, SlotClaimed, l.State(0))
	require.False(t, l.ExpectState(0, SlotFree, SlotClaimed))

	l.SetState(1, SlotReading)
	require.Equal(t, SlotReading, l.State(1))
	require.Equal(t, SlotClaimed, l.State(0))
}

func TestNewSlotLockInvalid(t *testing.T) {
	require.Nil(t, NewSlotLock(0))
	require.Nil(t, NewSlotLock(-3))
}

// Only one of many goroutines racing for a gate may win it.
func TestSlotLockGateExclusive(t *testing.T) {
	const goroutines = 16
	l := NewSlotLock(1)

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		wins    atomic.Int32
	)
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 10_000; i++ {
				if !l.AcquireWrite() {
					continue
				}
				if n := holders.Add(1); n != 1 {
					t.Errorf("%d concurrent holders of the write gate", n)
				}
				wins.Add(1)
				holders.Add(-1)
				l.ReleaseWrite()
			}
		}()
	}
	wg.Wait()
	require.Positive(t, wins.Load())
}

func TestNopLock(t *testing.T) {
	var l NopLock
	require.True(t, l.AcquireWrite())
	require.True(t, l.AcquireWrite())
	require.True(t, l.AcquireRead())
	require.True(t, l.ExpectState(0, SlotReady, SlotReading))
	l.SetState(3, SlotReady)
	require.Equal(t, SlotFree, l.State(3))
}

func TestNewLocker(t *testing.T) {
	sl := newLocker[*SlotLock](3)
	require.NotNil(t, sl)
	require.Equal(t, 3, sl.Len())
	require.True(t, isAtomic[*SlotLock]())

	require.Equal(t, NopLock{}, newLocker[NopLock](3))
	require.False(t, isAtomic[NopLock]())
}

func TestSlotStateString(t *testing.T) {
	for s, want := range map[SlotState]string{
		SlotFree:     "free",
		SlotClaimed:  "claimed",
		SlotReady:    "ready",
		SlotReading:  "reading",
		SlotState(9): "SlotState(9)",
	} {
		require.Equal(t, want, s.String())
	}
}
