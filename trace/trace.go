// Package trace implements the scheduler's tracing surface (spec
// §4.7): typed, non-blocking event callbacks plus read-only counters.
// Callbacks must never mutate scheduler state; Sink implementations in
// this package never do.
package trace

import (
	"github.com/google/uuid"

	"github.com/PIFO-TM/ns3-bmv2/oracle"
	"github.com/PIFO-TM/ns3-bmv2/packet"
)

// DropReason tags why a packet was dropped.
type DropReason string

const (
	// DropBufferFull means admission failed (spec ErrBufferFull).
	DropBufferFull DropReason = "buffer_full"
	// DropTreeReject means a node rejected the packet mid-cascade
	// (spec ErrTreeReject); everything inserted below was rolled back.
	DropTreeReject DropReason = "tree_reject"
)

// Sink receives scheduler trace events. Every method must return
// without blocking and without calling back into the scheduler.
type Sink interface {
	PacketEnqueued(pkt packet.Handle, id uuid.UUID, meta packet.SchedMeta)
	PacketDequeued(pkt packet.Handle, id uuid.UUID, meta packet.SchedMeta)
	PacketDropped(pkt packet.Handle, id uuid.UUID, reason DropReason)

	BufferEnqueue(partitionID uint32, pktLen uint32)
	BufferDequeue(partitionID uint32, pktLen uint32)
	BufferDrop(bufferID uint32, pktLen uint32)

	NodeEnqTrace(nodeID uint32, tr oracle.Trace)
	NodeDeqTrace(nodeID uint32, tr oracle.Trace)
	NodePacketsGauge(nodeID uint32, count uint64)
}

// NopSink discards every event. scheduler.FromConfig does not use it:
// with no host sink, the scheduler's own Broker is its only Sink.
type NopSink struct{}

func (NopSink) PacketEnqueued(packet.Handle, uuid.UUID, packet.SchedMeta) {}
func (NopSink) PacketDequeued(packet.Handle, uuid.UUID, packet.SchedMeta) {}
func (NopSink) PacketDropped(packet.Handle, uuid.UUID, DropReason)       {}
func (NopSink) BufferEnqueue(uint32, uint32)                             {}
func (NopSink) BufferDequeue(uint32, uint32)                             {}
func (NopSink) BufferDrop(uint32, uint32)                                {}
func (NopSink) NodeEnqTrace(uint32, oracle.Trace)                        {}
func (NopSink) NodeDeqTrace(uint32, oracle.Trace)                        {}
func (NopSink) NodePacketsGauge(uint32, uint64)                          {}

// MultiSink fans a single event out to every sink in the list.
type MultiSink []Sink

func (m MultiSink) PacketEnqueued(pkt packet.Handle, id uuid.UUID, meta packet.SchedMeta) {
	for _, s := range m {
		s.PacketEnqueued(pkt, id, meta)
	}
}

func (m MultiSink) PacketDequeued(pkt packet.Handle, id uuid.UUID, meta packet.SchedMeta) {
	for _, s := range m {
		s.PacketDequeued(pkt, id, meta)
	}
}

func (m MultiSink) PacketDropped(pkt packet.Handle, id uuid.UUID, reason DropReason) {
	for _, s := range m {
		s.PacketDropped(pkt, id, reason)
	}
}

func (m MultiSink) BufferEnqueue(partitionID, pktLen uint32) {
	for _, s := range m {
		s.BufferEnqueue(partitionID, pktLen)
	}
}

func (m MultiSink) BufferDequeue(partitionID, pktLen uint32) {
	for _, s := range m {
		s.BufferDequeue(partitionID, pktLen)
	}
}

func (m MultiSink) BufferDrop(bufferID, pktLen uint32) {
	for _, s := range m {
		s.BufferDrop(bufferID, pktLen)
	}
}

func (m MultiSink) NodeEnqTrace(nodeID uint32, tr oracle.Trace) {
	for _, s := range m {
		s.NodeEnqTrace(nodeID, tr)
	}
}

func (m MultiSink) NodeDeqTrace(nodeID uint32, tr oracle.Trace) {
	for _, s := range m {
		s.NodeDeqTrace(nodeID, tr)
	}
}

func (m MultiSink) NodePacketsGauge(nodeID uint32, count uint64) {
	for _, s := range m {
		s.NodePacketsGauge(nodeID, count)
	}
}
