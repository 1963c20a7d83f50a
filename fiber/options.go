package fiber

import (
	"time"

	"github.com/joeycumines/logiface"
)

// Clock is a millisecond time source. The system timer satisfies it; tests
// substitute a manual clock.
type Clock interface {
	// CurrentTime returns milliseconds since the source started.
	CurrentTime() uint64
}

// TickSource periodically drives registered callbacks, standing in for the
// hardware timer interrupt. The system timer satisfies it.
type TickSource interface {
	AddTickCallback(fn func()) error
}

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger       *logiface.Logger[logiface.Event]
	clock        Clock
	ticks        TickSource
	poolSize     int
	idleSlots    int
	tickPeriod   time.Duration
	idleWaitHint time.Duration
}

// Option configures a Scheduler instance.
type Option interface {
	applyScheduler(*schedulerOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyFunc func(*schedulerOptions) error
}

func (o *optionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applyFunc(opts)
}

// WithLogger attaches a structured logger. The default is no logging; a nil
// logger is always safe.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithClock sets the millisecond time source consulted by Sleep and Tick.
// The default is an internal counter advanced by the tick period on each
// Tick call.
func WithClock(clock Clock) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.clock = clock
		return nil
	}}
}

// WithTickSource registers the scheduler's Tick with the given source during
// Initialize. If the source also satisfies Clock and no explicit clock is
// configured, it becomes the time source as well.
func WithTickSource(ts TickSource) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.ticks = ts
		return nil
	}}
}

// WithPoolSize bounds the pool of recycled fiber records. Released fibers
// beyond the bound are left to the garbage collector. The default is
// DefaultPoolSize.
func WithPoolSize(n int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if n < 0 {
			return ErrInvalidParameter
		}
		opts.poolSize = n
		return nil
	}}
}

// WithIdleComponentSlots bounds the idle component table. The default is
// DefaultIdleComponentSlots.
func WithIdleComponentSlots(n int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if n < 1 {
			return ErrInvalidParameter
		}
		opts.idleSlots = n
		return nil
	}}
}

// WithTickPeriod sets the nominal period between ticks, used to advance the
// internal clock when no external Clock is configured. The default is
// DefaultTickPeriod.
func WithTickPeriod(d time.Duration) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if d <= 0 {
			return ErrInvalidParameter
		}
		opts.tickPeriod = d
		return nil
	}}
}

// resolveSchedulerOptions applies Option instances to schedulerOptions.
func resolveSchedulerOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		poolSize:     DefaultPoolSize,
		idleSlots:    DefaultIdleComponentSlots,
		tickPeriod:   DefaultTickPeriod,
		idleWaitHint: time.Millisecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.clock == nil {
		if c, ok := cfg.ticks.(Clock); ok {
			cfg.clock = c
		}
	}
	return cfg, nil
}
