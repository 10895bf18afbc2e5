package slotring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryUntilSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 200 {
			return ErrBusy
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 200, calls)
}

func TestRetryStopsOnOtherError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return ErrBusy
		}
		return ErrNoSpace
	})
	require.ErrorIs(t, err, ErrNoSpace)
	require.Equal(t, 2, calls)
}

func TestRetryCustomErrors(t *testing.T) {
	b, err := NewBuffer[*SlotLock](1, 1)
	require.NoError(t, err)
	_, err = b.Write([]byte{1})
	require.NoError(t, err)

	// a reader frees the slot while the writer retries on a full buffer
	calls := 0
	err = Retry(context.Background(), func() error {
		calls++
		if calls == 3 {
			if _, err := b.Read(make([]byte, 1)); err != nil {
				return err
			}
		}
		_, err := b.Write([]byte{2})
		return err
	}, ErrNoSpace, ErrBusy)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, func() error {
		calls++
		if calls == 10 {
			cancel()
		}
		return ErrBusy
	})
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, 10, calls)
}

func TestRetryWrappedError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.Join(errors.New("inner"), ErrBusy)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
