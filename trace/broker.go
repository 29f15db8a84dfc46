package trace

import (
	"github.com/eapache/channels"
	"github.com/google/uuid"

	"github.com/PIFO-TM/ns3-bmv2/oracle"
	"github.com/PIFO-TM/ns3-bmv2/packet"
)

// Kind identifies which of the Sink methods produced an Event, so a
// Broker subscriber can filter by event kind (spec §6.3 "Tracing
// subscription by event kind") without parsing the event's fields.
type Kind int

const (
	KindPacketEnqueued Kind = iota
	KindPacketDequeued
	KindPacketDropped
	KindBufferEnqueue
	KindBufferDequeue
	KindBufferDrop
	KindNodeEnqTrace
	KindNodeDeqTrace
	KindNodePacketsGauge
)

// Event is the broadcast form of a single Sink callback, used by
// Broker subscribers that want to consume events off of a channel
// instead of implementing Sink directly.
type Event struct {
	Kind Kind

	Packet    packet.Handle
	PacketID  uuid.UUID
	SchedMeta packet.SchedMeta
	Reason    DropReason

	PartitionID uint32
	BufferID    uint32
	PktLen      uint32

	NodeID uint32
	Trace  oracle.Trace
	Count  uint64
}

// Broker is a Sink that fans every event out to an arbitrary number
// of subscribers over unbounded, non-blocking channels, the way the
// teacher's pub/sub broker fans a single Broadcast out to every
// subscriber's infinite channel.
type Broker struct {
	subs []*channels.InfiniteChannel
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{}
}

// Subscription is a single subscriber's view of a Broker's event
// stream.
type Subscription struct {
	ch *channels.InfiniteChannel
}

// Subscribe registers a new subscriber and returns its Subscription.
func (b *Broker) Subscribe() *Subscription {
	ch := channels.NewInfiniteChannel()
	b.subs = append(b.subs, ch)
	return &Subscription{ch: ch}
}

// Unwrap returns the subscription's output channel, on which Events
// arrive in broadcast order.
func (s *Subscription) Unwrap() <-chan interface{} {
	return s.ch.Out()
}

// Close stops delivering further events to this subscription.
func (s *Subscription) Close() {
	s.ch.Close()
}

func (b *Broker) broadcast(e Event) {
	for _, ch := range b.subs {
		ch.In() <- e
	}
}

func (b *Broker) PacketEnqueued(pkt packet.Handle, id uuid.UUID, meta packet.SchedMeta) {
	b.broadcast(Event{Kind: KindPacketEnqueued, Packet: pkt, PacketID: id, SchedMeta: meta})
}

func (b *Broker) PacketDequeued(pkt packet.Handle, id uuid.UUID, meta packet.SchedMeta) {
	b.broadcast(Event{Kind: KindPacketDequeued, Packet: pkt, PacketID: id, SchedMeta: meta})
}

func (b *Broker) PacketDropped(pkt packet.Handle, id uuid.UUID, reason DropReason) {
	b.broadcast(Event{Kind: KindPacketDropped, Packet: pkt, PacketID: id, Reason: reason})
}

func (b *Broker) BufferEnqueue(partitionID, pktLen uint32) {
	b.broadcast(Event{Kind: KindBufferEnqueue, PartitionID: partitionID, PktLen: pktLen})
}

func (b *Broker) BufferDequeue(partitionID, pktLen uint32) {
	b.broadcast(Event{Kind: KindBufferDequeue, PartitionID: partitionID, PktLen: pktLen})
}

func (b *Broker) BufferDrop(bufferID, pktLen uint32) {
	b.broadcast(Event{Kind: KindBufferDrop, BufferID: bufferID, PktLen: pktLen})
}

func (b *Broker) NodeEnqTrace(nodeID uint32, tr oracle.Trace) {
	b.broadcast(Event{Kind: KindNodeEnqTrace, NodeID: nodeID, Trace: tr})
}

func (b *Broker) NodeDeqTrace(nodeID uint32, tr oracle.Trace) {
	b.broadcast(Event{Kind: KindNodeDeqTrace, NodeID: nodeID, Trace: tr})
}

func (b *Broker) NodePacketsGauge(nodeID uint32, count uint64) {
	b.broadcast(Event{Kind: KindNodePacketsGauge, NodeID: nodeID, Count: count})
}

var _ Sink = (*Broker)(nil)
