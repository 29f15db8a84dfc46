// Package scheduler implements the PIFO-tree packet scheduler core
// (spec §4.5): the tree of nodes, the partitioned buffer, and the
// enqueue/dequeue traversals that tie them together.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/PIFO-TM/ns3-bmv2/buffer"
	"github.com/PIFO-TM/ns3-bmv2/clock"
	"github.com/PIFO-TM/ns3-bmv2/common/logging"
	"github.com/PIFO-TM/ns3-bmv2/oracle"
	"github.com/PIFO-TM/ns3-bmv2/packet"
	"github.com/PIFO-TM/ns3-bmv2/pifo"
	"github.com/PIFO-TM/ns3-bmv2/trace"
)

var schedLog = logging.GetLogger("scheduler")

// OracleFactory is the host-supplied adapter to the external
// packet-programming runtime (spec §4.2/§6.2): given an opaque
// two-string artifact reference, it returns a usable oracle instance.
// The core never opens or interprets the artifact strings themselves.
type OracleFactory interface {
	Classifier(artifact OracleArtifact) (oracle.Classifier, error)
	EnqueueOracle(nodeID uint32, artifact OracleArtifact) (oracle.EnqueueOracle, error)
	DequeueOracle(nodeID uint32, artifact OracleArtifact) (oracle.DequeueOracle, error)
}

// EnqueueOutcome is the result of a single Enqueue call.
type EnqueueOutcome struct {
	Admitted bool
	Reason   trace.DropReason
}

// Stats is a snapshot of the scheduler's counters (spec §6.3).
type Stats struct {
	Enqueued          uint64
	Dequeued          uint64
	DroppedBufferFull uint64
	DroppedTreeReject uint64
	PerNodePackets    map[uint32]uint64
	PerPartitionBytes map[uint32]uint64
}

type counters struct {
	enqueued          uint64
	dequeued          uint64
	droppedBufferFull uint64
	droppedTreeReject uint64
}

// Scheduler is the tree-top (spec §4.5): it owns the classification
// oracle, the buffer, and the full node arena, and implements the
// public Enqueue/Dequeue surface.
type Scheduler struct {
	mu sync.Mutex

	classifier oracle.Classifier
	classTrace oracle.Trace

	buf   *buffer.Buffer
	nodes []*node

	clk    clock.Clock
	broker *trace.Broker
	sink   trace.Sink

	ids map[packet.Handle]uuid.UUID

	stats counters
}

// FromConfig validates cfg, instantiates the buffer and every node,
// wires parent/child edges, and returns a ready-to-use Scheduler (spec
// §4.5 configure). Any failure aborts configuration and no partial
// Scheduler is returned.
func FromConfig(cfg Config, factory OracleFactory, clk clock.Clock, hostSink trace.Sink) (*Scheduler, error) {
	if clk == nil {
		return nil, fmt.Errorf("%w: clock is required", ErrConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	classifier, err := factory.Classifier(cfg.ClassLogic)
	if err != nil {
		return nil, fmt.Errorf("%w: class-logic: %v", ErrConfig, err)
	}

	s := &Scheduler{
		classifier: classifier,
		buf:        buffer.New(bufferConfigFromJSON(cfg.BufferConfig)),
		nodes:      make([]*node, cfg.NumNodes),
		clk:        clk,
		broker:     trace.NewBroker(),
		ids:        make(map[packet.Handle]uuid.UUID),
	}
	if hostSink != nil {
		s.sink = trace.MultiSink{s.broker, hostSink}
	} else {
		s.sink = s.broker
	}

	hasChildren := make(map[uint32]bool)
	for parentStr, children := range cfg.Tree {
		if len(children) == 0 {
			continue
		}
		parent, _ := strconv.ParseUint(parentStr, 10, 32)
		hasChildren[uint32(parent)] = true
	}

	for id := uint32(0); id < cfg.NumNodes; id++ {
		k := strconv.FormatUint(uint64(id), 10)
		numPifos := cfg.NumPifos[k]
		if numPifos == 0 {
			numPifos = 1
		}

		n := &node{
			id:            id,
			isLeaf:        !hasChildren[id],
			pifos:         make([]*pifo.Pifo, numPifos),
			globalToLocal: make(map[uint32]int),
			sched:         s,
		}
		for i := range n.pifos {
			n.pifos[i] = pifo.New()
		}

		enqArtifact := cfg.EnqLogic[k]
		n.enqOracle, err = factory.EnqueueOracle(id, enqArtifact)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d enq-logic: %v", ErrConfig, id, err)
		}
		deqArtifact := cfg.DeqLogic[k]
		n.deqOracle, err = factory.DequeueOracle(id, deqArtifact)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d deq-logic: %v", ErrConfig, id, err)
		}

		s.nodes[id] = n
	}

	// Wire parent/child edges in a stable order so globalToLocal
	// indices are deterministic across runs of the same config.
	parentIDs := make([]uint32, 0, len(cfg.Tree))
	for parentStr := range cfg.Tree {
		p, _ := strconv.ParseUint(parentStr, 10, 32)
		parentIDs = append(parentIDs, uint32(p))
	}
	sort.Slice(parentIDs, func(i, j int) bool { return parentIDs[i] < parentIDs[j] })

	for _, parentID := range parentIDs {
		parent := s.nodes[parentID]
		children := cfg.Tree[strconv.FormatUint(uint64(parentID), 10)]
		for _, childID := range children {
			child := s.nodes[childID]
			child.parent = parent
			parent.globalToLocal[childID] = len(parent.children)
			parent.children = append(parent.children, child)
		}
	}

	return s, nil
}

func (s *Scheduler) assignID(pkt packet.Handle) uuid.UUID {
	id := uuid.New()
	s.ids[pkt] = id
	return id
}

func (s *Scheduler) idFor(pkt packet.Handle) uuid.UUID {
	return s.ids[pkt]
}

func (s *Scheduler) forgetID(pkt packet.Handle) {
	delete(s.ids, pkt)
}

// Enqueue runs the classification oracle, admits the packet into the
// buffer, and dispatches into the tree (spec §4.5 enqueue). pktLen and
// flowHash are the fields the classification oracle needs; the core
// never otherwise inspects pkt.
func (s *Scheduler) Enqueue(pkt packet.Handle, pktLen, flowHash uint32) (EnqueueOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cin := oracle.ClassifyInput{PktLen: pktLen, FlowHash: flowHash, Now: s.clk.Now(), Trace: s.classTrace}
	cout := s.classifier.Classify(cin)
	s.classTrace = cout.Trace

	partitionID, maxSize, ok, err := s.buf.Admit(cout.BufferID, pktLen)
	if err != nil {
		// Unknown buffer id: a programming/config error, not a drop.
		return EnqueueOutcome{}, fmt.Errorf("scheduler: classification referenced unknown buffer: %w", err)
	}

	id := s.assignID(pkt)

	if !ok {
		s.stats.droppedBufferFull++
		schedLog.Debug("dropping packet", "reason", ErrBufferFull, "buffer_id", cout.BufferID, "pkt_len", pktLen)
		s.sink.PacketDropped(pkt, id, trace.DropBufferFull)
		s.forgetID(pkt)
		return EnqueueOutcome{Admitted: false, Reason: trace.DropBufferFull}, nil
	}

	meta := packet.SchedMeta{
		PktLen:           pktLen,
		FlowHash:         flowHash,
		BufferID:         cout.BufferID,
		PartitionID:      partitionID,
		PartitionSize:    s.buf.Used(int(partitionID)),
		PartitionMaxSize: maxSize,
	}
	s.sink.BufferEnqueue(partitionID, pktLen)

	if cout.LeafID >= uint32(len(s.nodes)) {
		s.buf.Release(partitionID, pktLen)
		s.sink.BufferDequeue(partitionID, pktLen)
		s.forgetID(pkt)
		return EnqueueOutcome{}, fmt.Errorf("scheduler: classification referenced nonexistent leaf %d", cout.LeafID)
	}

	leaf := s.nodes[cout.LeafID]
	if err := leaf.enqueueLeaf(pkt, meta); err != nil {
		s.buf.Release(partitionID, pktLen)
		s.sink.BufferDequeue(partitionID, pktLen)

		if errors.Is(err, ErrTreeReject) {
			s.stats.droppedTreeReject++
			s.sink.PacketDropped(pkt, id, trace.DropTreeReject)
			s.forgetID(pkt)
			return EnqueueOutcome{Admitted: false, Reason: trace.DropTreeReject}, nil
		}
		s.forgetID(pkt)
		return EnqueueOutcome{}, err
	}

	s.stats.enqueued++
	s.sink.PacketEnqueued(pkt, id, meta)
	return EnqueueOutcome{Admitted: true}, nil
}

// Dequeue implements spec §4.5 dequeue: calls into the root.
func (s *Scheduler) Dequeue() (packet.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dequeueLocked(0, unknownPifo)
}

// DequeueAt is the re-entry form used by a deferred deq_delay
// continuation (spec §4.5 dequeue_at / §4.6).
func (s *Scheduler) DequeueAt(nodeID, pifoID uint32) (packet.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dequeueLocked(nodeID, pifoID)
}

func (s *Scheduler) dequeueLocked(nodeID, pifoID uint32) (packet.Handle, bool) {
	n := s.nodes[nodeID]
	pkt, meta, ok := n.dequeueWith(pifoID)
	if !ok {
		return nil, false
	}

	s.buf.Release(meta.PartitionID, meta.PktLen)
	s.sink.BufferDequeue(meta.PartitionID, meta.PktLen)
	s.stats.dequeued++

	id := s.idFor(pkt)
	s.sink.PacketDequeued(pkt, id, meta)
	s.forgetID(pkt)
	return pkt, true
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Enqueued:          s.stats.enqueued,
		Dequeued:          s.stats.dequeued,
		DroppedBufferFull: s.stats.droppedBufferFull,
		DroppedTreeReject: s.stats.droppedTreeReject,
		PerNodePackets:    make(map[uint32]uint64, len(s.nodes)),
		PerPartitionBytes: make(map[uint32]uint64, s.buf.NumPartitions()),
	}
	for _, n := range s.nodes {
		st.PerNodePackets[n.id] = n.packetsInNode
	}
	for p := 0; p < s.buf.NumPartitions(); p++ {
		st.PerPartitionBytes[uint32(p)] = s.buf.Used(p)
	}
	return st
}

// Subscribe registers a new tracing subscriber (spec §6.3 "tracing
// subscription by event kind"); events are delivered on an unbounded,
// non-blocking channel regardless of what Sink was passed to
// FromConfig.
func (s *Scheduler) Subscribe() *trace.Subscription {
	return s.broker.Subscribe()
}
