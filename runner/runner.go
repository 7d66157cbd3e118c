package runner

import (
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/LiuYuuChen/deltatimer/timer"
)

const (
	defaultResolution = time.Millisecond
	defaultBuffer     = 64
)

type scheduleRequest[V any] struct {
	event V
	delay timer.Ticks
}

type cancelRequest[V any] struct {
	event V
	reply chan cancelReply
}

type cancelReply struct {
	remaining timer.Ticks
	found     bool
}

type runner[V comparable] struct {
	queue      *timer.Queue[V]
	constraint Constraint[V]

	resolution time.Duration
	clock      clock.WithTicker
	logger     logrus.FieldLogger

	// pending indexes scheduled events by their store key so lookups do
	// not go through the loop.
	pending cmap.ConcurrentMap[V]

	events     chan V
	scheduleCh chan scheduleRequest[V]
	cancelCh   chan cancelRequest[V]

	// stopCh lets us signal a shutdown to the loop
	stopCh chan struct{}
	// stopOnce guarantees we only signal shutdown a single time
	stopOnce sync.Once
}

// NewRunner starts a runner around an empty queue. The loop goroutine runs
// until Shutdown.
func NewRunner[V comparable](constraint Constraint[V], opts ...Option) Runner[V] {
	cfg := &config{
		resolution: defaultResolution,
		buffer:     defaultBuffer,
		clock:      clock.RealClock{},
		logger:     logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	run := &runner[V]{
		queue:      timer.New[V](),
		constraint: constraint,
		resolution: cfg.resolution,
		clock:      cfg.clock,
		logger:     cfg.logger,
		pending:    cmap.New[V](),
		events:     make(chan V, cfg.buffer),
		scheduleCh: make(chan scheduleRequest[V], cfg.buffer),
		cancelCh:   make(chan cancelRequest[V]),
		stopCh:     make(chan struct{}),
	}

	go run.loop()
	return run
}

// Schedule queues event to fire delay from now. Delays round up to whole
// ticks; zero and negative delays fire on the next tick. Events with equal
// deadlines fire in the order they were scheduled.
func (run *runner[V]) Schedule(event V, delay time.Duration) error {
	req := scheduleRequest[V]{event: event, delay: run.toTicks(delay)}
	select {
	case <-run.stopCh:
		return fmt.Errorf("can not schedule on a shut down runner")
	case run.scheduleCh <- req:
		return nil
	}
}

// Cancel removes the earliest pending event equal to event and reports how
// much time it had left. An event still sitting in the schedule channel is
// not yet cancellable.
func (run *runner[V]) Cancel(event V) (time.Duration, bool) {
	req := cancelRequest[V]{event: event, reply: make(chan cancelReply, 1)}

	select {
	case <-run.stopCh:
		return 0, false
	case run.cancelCh <- req:
	}

	select {
	case <-run.stopCh:
		return 0, false
	case rep := <-req.reply:
		return time.Duration(rep.remaining) * run.resolution, rep.found
	}
}

// Events returns the channel fired events are delivered on.
func (run *runner[V]) Events() <-chan V {
	return run.events
}

func (run *runner[V]) Contains(event V) bool {
	return run.pending.Has(run.constraint.FormStoreKey(event))
}

func (run *runner[V]) Len() int {
	return run.pending.Count()
}

func (run *runner[V]) Shutdown() {
	run.stopOnce.Do(func() {
		close(run.stopCh)
	})
}

func (run *runner[V]) IsShutdown() bool {
	select {
	case <-run.stopCh:
		return true
	default:
		return false
	}
}

func (run *runner[V]) loop() {
	ticker := run.clock.NewTicker(run.resolution)
	defer ticker.Stop()

	last := run.clock.Now()
	for {
		select {
		case <-run.stopCh:
			return

		case req := <-run.scheduleCh:
			run.queue.Add(req.delay, req.event)
			run.pending.Set(run.constraint.FormStoreKey(req.event), req.event)
			run.fire()

		case req := <-run.cancelCh:
			remaining, found := run.queue.Remove(req.event)
			if found {
				run.pending.Remove(run.constraint.FormStoreKey(req.event))
			}
			req.reply <- cancelReply{remaining: remaining, found: found}

		case <-ticker.C():
			now := run.clock.Now()
			ticks := timer.Ticks(now.Sub(last) / run.resolution)
			if ticks == 0 {
				continue
			}
			last = last.Add(time.Duration(ticks) * run.resolution)
			run.queue.Update(ticks)
			run.fire()
		}
	}
}

// fire drains every due entry to the events channel.
func (run *runner[V]) fire() {
	for {
		event, ok := run.queue.Poll()
		if !ok {
			return
		}

		key := run.constraint.FormStoreKey(event)
		run.pending.Remove(key)

		select {
		case run.events <- event:
		default:
			run.logger.WithField("key", key).Warn("events channel is full, waiting for a consumer")
			select {
			case run.events <- event:
			case <-run.stopCh:
				return
			}
		}
	}
}

func (run *runner[V]) toTicks(delay time.Duration) timer.Ticks {
	if delay <= 0 {
		return 0
	}
	return timer.Ticks((delay + run.resolution - 1) / run.resolution)
}
