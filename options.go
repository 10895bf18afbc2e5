package slotring

import (
	"github.com/joeycumines/logiface"
)

// options holds the construction settings shared by every container and the
// block allocator.
type options struct {
	allocator Allocator
	storage   []byte
	logger    *logiface.Logger[logiface.Event]
}

// Option configures a container at construction.
type Option interface {
	apply(*options) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*options) error
}

func (o *optionImpl) apply(opts *options) error {
	return o.applyFunc(opts)
}

// WithAllocator obtains all backing storage from a, and returns it to a on
// Close. Cannot be combined with WithStorage.
func WithAllocator(a Allocator) Option {
	return &optionImpl{func(opts *options) error {
		if a == nil {
			return ErrInvalidArgument
		}
		opts.allocator = a
		return nil
	}}
}

// WithStorage builds the container directly in p, which the caller keeps
// owning. p must be at least as long as the matching *StorageSize helper
// reports. Close leaves p untouched.
func WithStorage(p []byte) Option {
	return &optionImpl{func(opts *options) error {
		if len(p) == 0 {
			return ErrInvalidArgument
		}
		opts.storage = p
		return nil
	}}
}

// WithLogger sets the logger used for lifecycle events. A nil logger (the
// default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *options) error {
		opts.logger = logger
		return nil
	}}
}

// resolveOptions applies Option instances to options.
func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.allocator != nil && cfg.storage != nil {
		return nil, ErrInvalidArgument
	}
	return cfg, nil
}
