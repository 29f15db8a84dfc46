// Package pifo implements a Push-In-First-Out priority queue: a
// collection of entries ordered for removal by an ascending numeric
// rank, with insertion order preserved among entries of equal rank.
package pifo

import (
	"time"

	"github.com/gammazero/deque"
	"github.com/google/btree"

	"github.com/PIFO-TM/ns3-bmv2/packet"
)

// Entry is a single PIFO entry. A PIFO's entries are uniformly either
// leaf entries (Packet set, IsLeaf true) or interior entries
// (ChildNodeIdx/ChildPifoIdx set, IsLeaf false); which kind a given
// PIFO holds is a property of the owning node, not of the PIFO.
type Entry struct {
	IsLeaf bool

	// Leaf fields.
	Packet interface{}

	// Interior fields.
	ChildNodeIdx uint32
	ChildPifoIdx uint32

	// Common fields.
	Rank      uint64
	TxTime    time.Time
	TxDelta   time.Duration
	SchedMeta packet.SchedMeta

	seq uint64
}

// bucket groups every entry sharing a rank behind a single btree item,
// so equal-rank ordering is a plain FIFO deque rather than a
// secondary comparator key.
type bucket struct {
	rank uint64
	q    *deque.Deque
}

func (b *bucket) Less(other btree.Item) bool {
	return b.rank < other.(*bucket).rank
}

// Pifo is a rank-ordered priority queue of Entry values.
type Pifo struct {
	ranks   *btree.BTree
	buckets map[uint64]*bucket

	size        int
	nextSeq     uint64
	lastPopTime time.Time
}

// New returns an empty Pifo.
func New() *Pifo {
	return &Pifo{
		ranks:   btree.New(2),
		buckets: make(map[uint64]*bucket),
	}
}

// Push inserts entry, ordered by entry.Rank.
func (p *Pifo) Push(entry Entry) {
	b, ok := p.buckets[entry.Rank]
	if !ok {
		b = &bucket{rank: entry.Rank, q: new(deque.Deque)}
		p.buckets[entry.Rank] = b
		p.ranks.ReplaceOrInsert(b)
	}
	entry.seq = p.nextSeq
	p.nextSeq++
	b.q.PushBack(entry)
	p.size++
}

// Peek returns the head entry without removing it.
func (p *Pifo) Peek() (Entry, bool) {
	item := p.ranks.Min()
	if item == nil {
		return Entry{}, false
	}
	b := item.(*bucket)
	return b.q.Front().(Entry), true
}

// Pop removes and returns the head entry, recording now as the PIFO's
// last-dequeue timestamp.
func (p *Pifo) Pop(now time.Time) (Entry, bool) {
	item := p.ranks.Min()
	if item == nil {
		return Entry{}, false
	}
	b := item.(*bucket)
	e := b.q.PopFront().(Entry)
	if b.q.Len() == 0 {
		p.ranks.Delete(b)
		delete(p.buckets, b.rank)
	}
	p.size--
	p.lastPopTime = now
	return e, true
}

// RemoveLastPushed removes and discards the most recently pushed
// entry at the given rank, if one is present. It is used only to
// unwind a push that must be rolled back (spec "no partial
// insertion"); callers must only use it to undo their own most recent
// Push at that rank before any other Push or Pop has touched the same
// rank bucket, which the single-threaded, non-yielding enqueue
// traversal guarantees.
func (p *Pifo) RemoveLastPushed(rank uint64) bool {
	b, ok := p.buckets[rank]
	if !ok || b.q.Len() == 0 {
		return false
	}
	b.q.PopBack()
	p.size--
	if b.q.Len() == 0 {
		p.ranks.Delete(b)
		delete(p.buckets, rank)
	}
	return true
}

// IsEmpty reports whether the Pifo holds no entries.
func (p *Pifo) IsEmpty() bool {
	return p.size == 0
}

// Len returns the number of entries currently held.
func (p *Pifo) Len() int {
	return p.size
}

// LastPopTime returns the timestamp of the most recent Pop, or the
// zero time if Pop has never been called.
func (p *Pifo) LastPopTime() time.Time {
	return p.lastPopTime
}
