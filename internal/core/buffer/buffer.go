// Package buffer implements the bounded out-of-order window that sits in
// front of the cascade. It holds at most N finest-granularity buckets per
// group key and releases them strictly in ascending bucket order.
package buffer

import (
	"sort"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
)

// Outcome reports what Admit did with an event.
type Outcome int

const (
	// Merged: the event joined an existing slot.
	Merged Outcome = iota
	// Created: the event opened a new slot.
	Created
	// Rebucketed: the event was older than every retained slot and was
	// merged into the oldest one.
	Rebucketed
	// Dropped: the event was older than every retained slot and the drop
	// policy discarded it.
	Dropped
	// Direct: no window is kept (size 0, or nothing retained after a drain)
	// and the late event was emitted as its own slot.
	Direct
)

func (o Outcome) String() string {
	switch o {
	case Merged:
		return "merged"
	case Created:
		return "created"
	case Rebucketed:
		return "rebucketed"
	case Dropped:
		return "dropped"
	case Direct:
		return "direct"
	}
	return "unknown"
}

// Slot is one in-progress finest-granularity bucket.
type Slot struct {
	Start int64
	Acc   *aggregation.Accumulator
}

// Buffer is the out-of-order window of one group key. It is not safe for
// concurrent use; the engine serializes access per lane.
type Buffer struct {
	capacity    int
	passThrough bool
	dropOlder   bool

	slots       []Slot // ascending by Start
	flushed     bool
	lastFlushed int64
}

// New returns a buffer holding at most size slots. Size 0 keeps a single
// in-progress slot and emits late events directly instead of reordering them.
// With dropOlder set, events older than every retained slot are discarded.
func New(size int, dropOlder bool) *Buffer {
	b := &Buffer{capacity: size, dropOlder: dropOlder}
	if size <= 0 {
		b.capacity = 1
		b.passThrough = true
	}
	return b
}

// Capacity returns the maximum number of retained slots.
func (b *Buffer) Capacity() int { return b.capacity }

// Len returns the number of retained slots.
func (b *Buffer) Len() int { return len(b.slots) }

// Admit places an event whose finest bucket starts at start. The event's
// contribution is folded in by merge against the chosen slot's accumulator.
// Slots released by the admission are returned in ascending Start order and
// must be cascaded in that order.
func (b *Buffer) Admit(start int64, merge func(acc *aggregation.Accumulator)) ([]Slot, Outcome) {
	i := sort.Search(len(b.slots), func(i int) bool { return b.slots[i].Start >= start })
	if i < len(b.slots) && b.slots[i].Start == start {
		merge(b.slots[i].Acc)
		return nil, Merged
	}

	late := (b.flushed && start <= b.lastFlushed) ||
		(len(b.slots) == b.capacity && start < b.slots[0].Start)

	if late {
		switch {
		case b.dropOlder:
			return nil, Dropped
		case b.passThrough || len(b.slots) == 0:
			return []Slot{newSlot(start, merge)}, Direct
		default:
			merge(b.slots[0].Acc)
			return nil, Rebucketed
		}
	}

	var released []Slot
	if len(b.slots) == b.capacity {
		released = []Slot{b.slots[0]}
		b.markFlushed(b.slots[0].Start)
		b.slots = b.slots[1:]
		i--
	}

	b.slots = append(b.slots, Slot{})
	copy(b.slots[i+1:], b.slots[i:])
	b.slots[i] = newSlot(start, merge)
	return released, Created
}

// Drain releases every retained slot in ascending order and leaves the
// buffer empty. Later events older than the drained slots are treated as late.
func (b *Buffer) Drain() []Slot {
	if len(b.slots) == 0 {
		return nil
	}
	out := b.slots
	b.markFlushed(out[len(out)-1].Start)
	b.slots = nil
	return out
}

// Snapshot returns copies of the retained slots in ascending order.
func (b *Buffer) Snapshot() []Slot {
	out := make([]Slot, len(b.slots))
	for i, s := range b.slots {
		out[i] = Slot{Start: s.Start, Acc: s.Acc.Clone()}
	}
	return out
}

func (b *Buffer) markFlushed(start int64) {
	if !b.flushed || start > b.lastFlushed {
		b.lastFlushed = start
	}
	b.flushed = true
}

func newSlot(start int64, merge func(acc *aggregation.Accumulator)) Slot {
	acc := aggregation.NewAccumulator()
	merge(acc)
	return Slot{Start: start, Acc: acc}
}
