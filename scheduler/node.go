package scheduler

import (
	"fmt"
	"time"

	"github.com/PIFO-TM/ns3-bmv2/common/logging"
	"github.com/PIFO-TM/ns3-bmv2/oracle"
	"github.com/PIFO-TM/ns3-bmv2/packet"
	"github.com/PIFO-TM/ns3-bmv2/pifo"
)

// unknownPifo is the "no specific pifo" sentinel used by the dequeue
// re-entry path (spec §4.4 dequeue_with / §4.6 dequeue_at).
const unknownPifo = ^uint32(0)

var nodeLog = logging.GetLogger("scheduler/node")

// node is one PIFO-tree node (spec §4.4): K PIFOs, zero-or-one
// parent, zero-or-more children, and the enqueue/dequeue oracles that
// drive it. Nodes are held in an arena (Scheduler.nodes) indexed by
// global id; parent and children links are pointers, and a child is
// addressed inside its parent by its local index (globalToLocal).
type node struct {
	id     uint32
	isLeaf bool

	pifos     []*pifo.Pifo
	enqOracle oracle.EnqueueOracle
	deqOracle oracle.DequeueOracle

	parent        *node
	children      []*node
	globalToLocal map[uint32]int

	packetsInNode uint64
	enqTrace      oracle.Trace
	deqTrace      oracle.Trace

	sched *Scheduler
}

// enqueueLeaf implements spec §4.4 enqueue_leaf. It must only be
// called on a leaf node.
func (n *node) enqueueLeaf(pkt packet.Handle, meta packet.SchedMeta) error {
	trig := oracle.EnqueueTrigger{
		SchedMeta: meta,
		Now:       n.sched.clk.Now(),
		IsLeaf:    true,
		Trace:     n.enqTrace,
	}
	dec := n.enqOracle.OnEnqueue(trig)
	n.enqTrace = dec.Trace
	n.sched.sink.NodeEnqTrace(n.id, n.enqTrace)

	if dec.Reject {
		return ErrTreeReject
	}
	if dec.PifoID >= uint32(len(n.pifos)) {
		return fmt.Errorf("node %d: enqueue oracle selected out-of-range pifo %d (K=%d)", n.id, dec.PifoID, len(n.pifos))
	}

	n.pifos[dec.PifoID].Push(pifo.Entry{
		IsLeaf:    true,
		Packet:    pkt,
		Rank:      dec.Rank,
		TxTime:    dec.TxTime,
		TxDelta:   dec.TxDelta,
		SchedMeta: meta,
	})
	n.packetsInNode++
	n.sched.sink.NodePacketsGauge(n.id, n.packetsInNode)

	if err := n.enqueueNext(dec.EnqDelay, dec.PifoID, meta); err != nil {
		n.pifos[dec.PifoID].RemoveLastPushed(dec.Rank)
		n.packetsInNode--
		n.sched.sink.NodePacketsGauge(n.id, n.packetsInNode)
		return err
	}
	return nil
}

// enqueueInterior implements spec §4.4 enqueue_interior. childGlobalID
// is the global id of the child presenting itself for cascade; it is
// translated to this node's local index via globalToLocal.
func (n *node) enqueueInterior(childGlobalID uint32, childPifoIdx uint32, meta packet.SchedMeta) error {
	localIdx, ok := n.globalToLocal[childGlobalID]
	if !ok {
		return fmt.Errorf("%w: node %d has no child %d", ErrInvalidChildID, n.id, childGlobalID)
	}

	trig := oracle.EnqueueTrigger{
		SchedMeta:    meta,
		Now:          n.sched.clk.Now(),
		IsLeaf:       false,
		ChildNodeIdx: uint32(localIdx),
		ChildPifoIdx: childPifoIdx,
		Trace:        n.enqTrace,
	}
	dec := n.enqOracle.OnEnqueue(trig)
	n.enqTrace = dec.Trace
	n.sched.sink.NodeEnqTrace(n.id, n.enqTrace)

	if dec.Reject {
		return ErrTreeReject
	}
	if dec.PifoID >= uint32(len(n.pifos)) {
		return fmt.Errorf("node %d: enqueue oracle selected out-of-range pifo %d (K=%d)", n.id, dec.PifoID, len(n.pifos))
	}

	n.pifos[dec.PifoID].Push(pifo.Entry{
		IsLeaf:       false,
		ChildNodeIdx: uint32(localIdx),
		ChildPifoIdx: childPifoIdx,
		Rank:         dec.Rank,
		TxTime:       dec.TxTime,
		TxDelta:      dec.TxDelta,
		SchedMeta:    meta,
	})
	n.packetsInNode++
	n.sched.sink.NodePacketsGauge(n.id, n.packetsInNode)

	if err := n.enqueueNext(dec.EnqDelay, dec.PifoID, meta); err != nil {
		n.pifos[dec.PifoID].RemoveLastPushed(dec.Rank)
		n.packetsInNode--
		n.sched.sink.NodePacketsGauge(n.id, n.packetsInNode)
		return err
	}
	return nil
}

// enqueueNext implements spec §4.4 enqueue_next: continue the cascade
// into the parent, synchronously or after enqDelay via the host clock.
func (n *node) enqueueNext(enqDelay time.Duration, pifoID uint32, meta packet.SchedMeta) error {
	if n.parent == nil {
		return nil // root: cascade complete.
	}
	if enqDelay <= 0 {
		return n.parent.enqueueInterior(n.id, pifoID, meta)
	}

	parent, selfID := n.parent, n.id
	n.sched.clk.Schedule(enqDelay, func() {
		// A failure here cannot roll back an Enqueue call that has
		// already returned; see DESIGN.md for the scope of this
		// limitation.
		_ = parent.enqueueInterior(selfID, pifoID, meta)
	})
	return nil
}

// dequeue implements spec §4.4 dequeue: the root entry point, or a
// re-entry at an unknown pifo_id.
func (n *node) dequeue() (packet.Handle, packet.SchedMeta, bool) {
	var snap [oracle.MaxPifos]oracle.PifoSnapshot
	for i := range snap {
		snap[i] = oracle.PifoSnapshot{IsEmpty: true}
	}
	for i, p := range n.pifos {
		if i >= oracle.MaxPifos {
			break
		}
		if p.IsEmpty() {
			continue
		}
		head, _ := p.Peek()
		snap[i] = oracle.PifoSnapshot{
			IsEmpty:          false,
			LastDeqTime:      p.LastPopTime(),
			HeadChildNodeIdx: head.ChildNodeIdx,
			HeadChildPifoIdx: head.ChildPifoIdx,
			HeadRank:         head.Rank,
			HeadTxTime:       head.TxTime,
			HeadTxDelta:      head.TxDelta,
			HeadPktLen:       head.SchedMeta.PktLen,
		}
	}

	trig := oracle.DequeueTrigger{
		Now:    n.sched.clk.Now(),
		IsLeaf: n.isLeaf,
		Pifos:  snap,
		Trace:  n.deqTrace,
	}
	dec := n.deqOracle.SelectDequeue(trig)
	n.deqTrace = dec.Trace
	n.sched.sink.NodeDeqTrace(n.id, n.deqTrace)

	if dec.PifoID >= uint32(len(n.pifos)) {
		return nil, packet.SchedMeta{}, false
	}
	if dec.DeqDelay > 0 {
		nodeID := n.id
		n.sched.clk.Schedule(dec.DeqDelay, func() {
			_, _ = n.sched.DequeueAt(nodeID, unknownPifo)
		})
		return nil, packet.SchedMeta{}, false
	}
	return n.dequeuePifo(dec.PifoID)
}

// dequeueWith implements spec §4.4 dequeue_with.
func (n *node) dequeueWith(pifoID uint32) (packet.Handle, packet.SchedMeta, bool) {
	if pifoID >= uint32(len(n.pifos)) {
		return n.dequeue()
	}
	return n.dequeuePifo(pifoID)
}

// dequeuePifo implements spec §4.4 dequeue_pifo: pop, fire dequeue
// feedback into this node's own enqueue oracle, then (if interior)
// descend.
func (n *node) dequeuePifo(pifoID uint32) (packet.Handle, packet.SchedMeta, bool) {
	p := n.pifos[pifoID]
	if p.IsEmpty() {
		// Internal invariant violation (spec §7 EmptyPifoPop): the
		// dequeue oracle selected an empty pifo. Logged, "no packet
		// this round" returned.
		nodeLog.Error("dequeue oracle selected an empty pifo", "node", n.id, "pifo", pifoID, "err", ErrEmptyPifoPop)
		return nil, packet.SchedMeta{}, false
	}

	now := n.sched.clk.Now()
	e, _ := p.Pop(now)
	n.packetsInNode--
	n.sched.sink.NodePacketsGauge(n.id, n.packetsInNode)

	fb := oracle.DequeueFeedback{
		DeqNodeIdx:   e.ChildNodeIdx,
		DeqPifoIdx:   pifoID,
		DeqRank:      e.Rank,
		DeqTxTime:    e.TxTime,
		DeqTxDelta:   e.TxDelta,
		DeqSchedMeta: e.SchedMeta,
		Now:          now,
		Trace:        n.enqTrace,
	}
	res := n.enqOracle.OnDequeueFeedback(fb)
	n.enqTrace = res.Trace
	n.sched.sink.NodeEnqTrace(n.id, n.enqTrace)

	if n.isLeaf {
		return e.Packet, e.SchedMeta, true
	}
	child := n.children[e.ChildNodeIdx]
	return child.dequeueWith(e.ChildPifoIdx)
}
