package trace

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/PIFO-TM/ns3-bmv2/packet"
)

func TestBrokerFansOutToEverySubscriber(t *testing.T) {
	b := NewBroker()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	id := uuid.New()
	meta := packet.SchedMeta{PktLen: 128}
	b.PacketEnqueued("pkt", id, meta)

	for _, sub := range []*Subscription{sub1, sub2} {
		ev := (<-sub.Unwrap()).(Event)
		require.Equal(t, KindPacketEnqueued, ev.Kind)
		require.Equal(t, "pkt", ev.Packet)
		require.Equal(t, id, ev.PacketID)
		require.Equal(t, meta, ev.SchedMeta)
	}
}

func TestBrokerPreservesEventOrderPerSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()

	b.BufferEnqueue(0, 10)
	b.BufferEnqueue(0, 20)
	b.BufferDequeue(0, 10)

	var kinds []Kind
	for i := 0; i < 3; i++ {
		ev := (<-sub.Unwrap()).(Event)
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []Kind{KindBufferEnqueue, KindBufferEnqueue, KindBufferDequeue}, kinds)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	sub.Close()

	_, ok := <-sub.Unwrap()
	require.False(t, ok, "closed subscription channel should drain and close")
}

func TestBrokerImplementsSink(t *testing.T) {
	var _ Sink = NewBroker()
}
