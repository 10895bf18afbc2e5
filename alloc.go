package slotring

import (
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"
)

// Allocator is the memory contract consumed by the containers.
//
// Allocate returns a region of at least size bytes; its contents are not
// required to be zeroed. Deallocate returns a region obtained from Allocate.
// Implementations used with concurrent containers must be safe for
// concurrent use.
type Allocator interface {
	Allocate(size int) ([]byte, error)
	Deallocate(p []byte) error
}

// HeapAllocator allocates from the Go heap. It is the default.
type HeapAllocator struct{}

func (HeapAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrAllocation, size)
	}
	return make([]byte, size), nil
}

func (HeapAllocator) Deallocate(p []byte) error {
	if len(p) == 0 {
		return ErrInvalidArgument
	}
	return nil
}

// backing is the memory a container runs on, plus where it came from.
type backing struct {
	alloc   Allocator // nil when the caller owns the memory
	regions [][]byte  // as returned by the allocator
	views   [][]byte  // regions trimmed to the requested sizes
}

// newBacking provides one region per requested size, either carved in order
// from caller storage or obtained from the configured allocator.
func newBacking(o *options, sizes ...int) (*backing, error) {
	if o.storage != nil {
		total := 0
		for _, n := range sizes {
			total += n
		}
		if len(o.storage) < total {
			return nil, ErrInvalidArgument
		}
		b := &backing{views: make([][]byte, 0, len(sizes))}
		off := 0
		for _, n := range sizes {
			b.views = append(b.views, o.storage[off:off+n:off+n])
			off += n
		}
		return b, nil
	}

	a := o.allocator
	if a == nil {
		a = HeapAllocator{}
	}
	s := scope{alloc: a, logger: o.logger}
	for _, n := range sizes {
		if err := s.acquire(n); err != nil {
			return nil, s.unwind(err)
		}
	}
	return &backing{alloc: a, regions: s.regions, views: s.views}, nil
}

// release returns every region to the allocator. All regions are attempted
// even if one fails.
func (b *backing) release() error {
	if b.alloc == nil {
		return nil
	}
	var errs []error
	for i := len(b.regions) - 1; i >= 0; i-- {
		if err := b.alloc.Deallocate(b.regions[i]); err != nil {
			errs = append(errs, err)
		}
	}
	b.regions, b.views = nil, nil
	return errors.Join(errs...)
}

// scope tracks the regions of one multi-step construction, so that a failing
// step can hand every earlier region back.
type scope struct {
	alloc   Allocator
	logger  *logiface.Logger[logiface.Event]
	regions [][]byte
	views   [][]byte
}

func (s *scope) acquire(n int) error {
	p, err := s.alloc.Allocate(n)
	if err != nil {
		if errors.Is(err, ErrAllocation) {
			return err
		}
		return fmt.Errorf("%w: %d bytes: %w", ErrAllocation, n, err)
	}
	if len(p) < n {
		s.regions = append(s.regions, p)
		return fmt.Errorf("%w: got %d of %d bytes", ErrAllocation, len(p), n)
	}
	s.regions = append(s.regions, p)
	s.views = append(s.views, p[:n:n])
	return nil
}

// unwind deallocates every region acquired so far, newest first, and returns
// cause joined with any deallocation failures.
func (s *scope) unwind(cause error) error {
	errs := []error{cause}
	for i := len(s.regions) - 1; i >= 0; i-- {
		if err := s.alloc.Deallocate(s.regions[i]); err != nil {
			s.logger.Warning().
				Int(`step`, i).
				Err(err).
				Log(`rollback deallocation failed`)
			errs = append(errs, err)
		}
	}
	s.logger.Debug().
		Int(`regions`, len(s.regions)).
		Err(cause).
		Log(`allocation rolled back`)
	s.regions, s.views = nil, nil
	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}
