package messagebus

import (
	"github.com/joeycumines/logiface"
	"github.com/lancaster-university/microbit-dal-sub002/event"
)

// DefaultQueueDepth bounds the central queue of deferred events. Events
// raised while the queue is full are dropped.
const DefaultQueueDepth = 10

// ConcurrencyMode selects how deferred deliveries may interleave.
type ConcurrencyMode int

const (
	// ConcurrentListeners delivers each (event, listener) pair on its own
	// fork-on-block slot: listeners for the same event run concurrently,
	// and a listener's per-listener policy governs overlapping events.
	// This is the default.
	ConcurrentListeners ConcurrencyMode = iota

	// ConcurrentEvents processes each deferred event as a unit, and
	// serialises handler invocations per listener with a lock: a given
	// listener observes events strictly one at a time, in order.
	ConcurrentEvents
)

// busOptions holds configuration options for MessageBus creation.
type busOptions struct {
	logger     *logiface.Logger[logiface.Event]
	mode       ConcurrencyMode
	queueDepth int
}

// Option configures a MessageBus instance.
type Option interface {
	applyBus(*busOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*busOptions) error
}

func (o *optionImpl) applyBus(opts *busOptions) error {
	return o.applyFunc(opts)
}

// WithLogger attaches a structured logger, used for rate-limited reporting of
// dropped events. The default is no logging; a nil logger is always safe.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *busOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithConcurrencyMode selects the delivery interleaving model. The default is
// ConcurrentListeners.
func WithConcurrencyMode(mode ConcurrencyMode) Option {
	return &optionImpl{func(opts *busOptions) error {
		if mode != ConcurrentListeners && mode != ConcurrentEvents {
			return event.ErrInvalidParameter
		}
		opts.mode = mode
		return nil
	}}
}

// WithQueueDepth bounds the central deferred-event queue. The default is
// DefaultQueueDepth.
func WithQueueDepth(n int) Option {
	return &optionImpl{func(opts *busOptions) error {
		if n < 1 {
			return event.ErrInvalidParameter
		}
		opts.queueDepth = n
		return nil
	}}
}

// resolveBusOptions applies Option instances to busOptions.
func resolveBusOptions(opts []Option) (*busOptions, error) {
	cfg := &busOptions{
		mode:       ConcurrentListeners,
		queueDepth: DefaultQueueDepth,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyBus(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
