package runner

import (
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

// Constraint derives a stable string key from a payload. The runner indexes
// pending events by this key so Contains and Len never touch the loop.
type Constraint[V comparable] interface {
	FormStoreKey(V) string
}

// Runner owns a delta timer queue and drives it from a clock: it converts
// wall-clock delays into ticks, advances the queue as time passes, and
// delivers fired events on a channel. All mutation happens on the loop
// goroutine, so the queue itself needs no locking.
type Runner[V comparable] interface {
	Schedule(event V, delay time.Duration) error
	Cancel(event V) (time.Duration, bool)
	Events() <-chan V
	Contains(event V) bool
	Len() int
	Shutdown()
	IsShutdown() bool
}

type config struct {
	resolution time.Duration
	buffer     int
	clock      clock.WithTicker
	logger     logrus.FieldLogger
}

type Option func(*config)

// WithResolution sets the tick size. Delays round up to whole ticks.
func WithResolution(resolution time.Duration) Option {
	return func(cfg *config) {
		cfg.resolution = resolution
	}
}

// WithBuffer sets the capacity of the events and schedule channels.
func WithBuffer(size int) Option {
	return func(cfg *config) {
		cfg.buffer = size
	}
}

// WithClock replaces the real clock, e.g. with a fake one in tests.
func WithClock(c clock.WithTicker) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}
