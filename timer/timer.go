package timer

import (
	"math"
)

// Ticks is a relative duration measured in caller-defined time units. It is
// unsigned; all arithmetic on it saturates instead of wrapping.
type Ticks uint64

type entry[V comparable] struct {
	gap   Ticks
	value V
}

// Queue is an ordered sequence of pending events with delta-encoded
// deadlines: each entry stores the gap between its own deadline and its
// predecessor's, so the front gap alone is the time until the next event
// and advancing time only touches entries at or near expiry.
//
// A Queue is not synchronized. It assumes a single owner; callers sharing
// one across goroutines must bring their own locking.
type Queue[V comparable] struct {
	entries []entry[V]
}

// New returns an empty queue for payloads of type V.
func New[V comparable]() *Queue[V] {
	return &Queue[V]{}
}

// NextIn returns the time until the earliest pending event fires, or false
// if the queue is empty.
func (q *Queue[V]) NextIn() (Ticks, bool) {
	if len(q.entries) == 0 {
		return 0, false
	}
	return q.entries[0].gap, true
}

// Update advances logical time by elapsed. Entries absorb the elapsed time
// front to back, each up to its own gap worth; once all of it is consumed
// the walk stops, since the gaps of later entries are relative to their
// predecessors and do not change. Elapsed time beyond the last pending
// deadline is discarded.
func (q *Queue[V]) Update(elapsed Ticks) {
	remaining := elapsed
	for i := range q.entries {
		if remaining == 0 {
			break
		}
		gap := q.entries[i].gap
		q.entries[i].gap = satSub(gap, remaining)
		remaining = satSub(remaining, gap)
	}
}

// Add schedules event to fire deadline ticks from now. Among entries with
// equal deadlines, earlier additions fire first. The successor at the
// insertion point gives up the new entry's gap so its own deadline holds.
func (q *Queue[V]) Add(deadline Ticks, event V) {
	var sum Ticks
	index := 0
	for i, e := range q.entries {
		if satAdd(sum, e.gap) > deadline {
			break
		}
		sum = satAdd(sum, e.gap)
		index = i + 1
	}

	gap := deadline - sum
	if index < len(q.entries) {
		q.entries[index].gap = satSub(q.entries[index].gap, gap)
	}

	q.entries = append(q.entries, entry[V]{})
	copy(q.entries[index+1:], q.entries[index:])
	q.entries[index] = entry[V]{gap: gap, value: event}
}

// Remove cancels the earliest entry whose payload equals event and returns
// its deadline-from-now at the time of removal, or false if no entry
// matches. The successor inherits the removed gap, keeping every remaining
// deadline intact.
func (q *Queue[V]) Remove(event V) (Ticks, bool) {
	var sum Ticks
	for i, e := range q.entries {
		sum = satAdd(sum, e.gap)
		if e.value != event {
			continue
		}
		if i+1 < len(q.entries) {
			q.entries[i+1].gap = satAdd(q.entries[i+1].gap, e.gap)
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		return sum, true
	}
	return 0, false
}

// Poll removes and returns the front entry if it is due, or false if the
// queue is empty or the front entry still has time left. It never looks past
// the front: no later entry can be due before the front is. Repeated calls
// drain simultaneously due entries one at a time in insertion order.
func (q *Queue[V]) Poll() (V, bool) {
	if len(q.entries) == 0 || q.entries[0].gap != 0 {
		var empty V
		return empty, false
	}
	event := q.entries[0].value
	q.entries[0] = entry[V]{}
	q.entries = q.entries[1:]
	return event, true
}

// Len returns the number of pending entries.
func (q *Queue[V]) Len() int {
	return len(q.entries)
}

// List returns the pending payloads in firing order, front first.
func (q *Queue[V]) List() []V {
	list := make([]V, 0, len(q.entries))
	for _, e := range q.entries {
		list = append(list, e.value)
	}
	return list
}

func satSub(a, b Ticks) Ticks {
	if b > a {
		return 0
	}
	return a - b
}

func satAdd(a, b Ticks) Ticks {
	if sum := a + b; sum >= a {
		return sum
	}
	return math.MaxUint64
}
