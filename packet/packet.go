// Package packet defines the scheduling metadata that travels beside
// a packet handle through the enqueue cascade. The packet payload
// itself is opaque to the scheduler; only its handle identity and
// this metadata matter to scheduling decisions.
package packet

// Handle is an opaque reference to a packet. The scheduler never
// inspects it; it only stores and later returns it unchanged.
// Implementations must be comparable, since dequeue round-trip
// (spec property 4) is defined by object identity.
type Handle = interface{}

// SchedMeta carries the fields every oracle and the buffer need to
// make admission and ranking decisions. It is built once at admission
// and copied into every PIFO entry the packet produces as it cascades
// up the tree.
type SchedMeta struct {
	PktLen   uint32
	FlowHash uint32
	BufferID uint32

	// Stamped by the buffer on admission.
	PartitionID      uint32
	PartitionSize    uint64
	PartitionMaxSize uint64
}
