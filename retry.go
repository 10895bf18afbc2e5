package slotring

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/valyala/fastrand"
)

// Retry calls op until it returns an error not matching any of retryOn
// (ErrBusy if none are given), and returns that result. Containers never
// retry internally; this is one policy a caller can pick.
//
// Between attempts the goroutine yields on a randomized schedule, so that
// claimants contending for the same gate drift apart. Retry gives up when
// ctx is done, returning the context error wrapped together with the last
// error from op.
func Retry(ctx context.Context, op func() error, retryOn ...error) error {
	if len(retryOn) == 0 {
		retryOn = []error{ErrBusy}
	}
	var spins uint32
	for {
		err := op()
		if !matchesAny(err, retryOn) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		spins++
		if spins%goschedEvery == 0 || fastrand.Uint32n(goschedEvery) == 0 {
			runtime.Gosched()
		}
	}
}

func matchesAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
