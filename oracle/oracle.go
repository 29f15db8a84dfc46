// Package oracle defines the uniform contract the scheduler core uses
// to consult external rank/selection logic. An oracle is a pure
// function of its explicit input; any state it keeps across calls is
// its own, surfaced to the core only through the opaque Trace it
// returns.
package oracle

import (
	"time"

	"github.com/PIFO-TM/ns3-bmv2/packet"
)

// MaxPifos is the fixed snapshot width a dequeue oracle is shown,
// padded with empty slots when a node has fewer PIFOs.
const MaxPifos = 3

// Trace is four opaque 32-bit words an oracle may use to carry state
// across invocations. The core never interprets them.
type Trace [4]uint32

// ClassifyInput is the input to the classification oracle, invoked
// once per arriving packet.
type ClassifyInput struct {
	PktLen   uint32
	FlowHash uint32
	Now      time.Time
	Trace    Trace
}

// ClassifyOutput steers an admitted packet to a buffer and leaf node.
type ClassifyOutput struct {
	BufferID uint32
	LeafID   uint32
	Trace    Trace
}

// Classifier is the classification oracle (one instance, scheduler-wide).
type Classifier interface {
	Classify(in ClassifyInput) ClassifyOutput
}

// EnqueueTrigger is the input to a node's enqueue oracle on the
// "enq_trigger" event flavor: a new entry is about to be pushed into
// one of the node's PIFOs.
type EnqueueTrigger struct {
	SchedMeta    packet.SchedMeta
	Now          time.Time
	IsLeaf       bool
	ChildNodeIdx uint32
	ChildPifoIdx uint32
	Trace        Trace
}

// EnqueueDecision is the enqueue oracle's response to an EnqueueTrigger.
type EnqueueDecision struct {
	Rank     uint64
	PifoID   uint32
	EnqDelay time.Duration
	TxTime   time.Time
	TxDelta  time.Duration
	Trace    Trace

	// Reject, when true, instructs the node to abandon this enqueue
	// without pushing an entry, triggering rollback of everything
	// inserted at lower levels (spec scenario S6).
	Reject bool
}

// DequeueFeedback is the input to a node's enqueue oracle on the
// "deq_trigger" event flavor: one of the node's own PIFOs has just
// popped the fields carried here. This does not produce an enqueue;
// only Trace in the result is meaningful.
type DequeueFeedback struct {
	DeqNodeIdx   uint32
	DeqPifoIdx   uint32
	DeqRank      uint64
	DeqTxTime    time.Time
	DeqTxDelta   time.Duration
	DeqSchedMeta packet.SchedMeta
	Now          time.Time
	Trace        Trace
}

// DequeueFeedbackResult carries the enqueue oracle's updated trace
// after observing a dequeue feedback event.
type DequeueFeedbackResult struct {
	Trace Trace
}

// EnqueueOracle is the per-node enqueue oracle: it both ranks new
// entries and observes dequeue feedback from its own node.
type EnqueueOracle interface {
	OnEnqueue(in EnqueueTrigger) EnqueueDecision
	OnDequeueFeedback(in DequeueFeedback) DequeueFeedbackResult
}

// PifoSnapshot describes one PIFO's state as seen by a dequeue oracle.
type PifoSnapshot struct {
	IsEmpty          bool
	LastDeqTime      time.Time
	HeadChildNodeIdx uint32
	HeadChildPifoIdx uint32
	HeadRank         uint64
	HeadTxTime       time.Time
	HeadTxDelta      time.Duration
	HeadPktLen       uint32
}

// DequeueTrigger is the input to a node's dequeue oracle.
type DequeueTrigger struct {
	Now    time.Time
	IsLeaf bool
	Pifos  [MaxPifos]PifoSnapshot
	Trace  Trace
}

// DequeueDecision selects which PIFO (if any) to release from this
// round, and how long to defer before doing so.
type DequeueDecision struct {
	PifoID   uint32
	DeqDelay time.Duration
	Trace    Trace
}

// DequeueOracle is the per-node dequeue oracle.
type DequeueOracle interface {
	SelectDequeue(in DequeueTrigger) DequeueDecision
}
