// Package buffer implements the partitioned, byte-accounted admission
// buffer (spec §4.3): a fixed set of partitions, each with a byte
// limit, and a map from logical buffer id to the ordered list of
// partitions tried on admission.
package buffer

import (
	"fmt"

	coreerrors "github.com/PIFO-TM/ns3-bmv2/common/errors"
)

const module = "buffer"

// ErrUnknownBufferID is raised when admit is called for a buffer id
// that was never registered; this is a configuration error, not a
// drop.
var ErrUnknownBufferID = coreerrors.New(module, 1, "buffer: unknown buffer id")

// Config describes a Buffer's static shape: per-partition byte
// limits, and for each buffer id the ordered partitions to try.
type Config struct {
	PartitionLimits []uint64
	BufferRoutes    map[uint32][]int
}

// Buffer is a partitioned, byte-accounted admission buffer. It is not
// safe for concurrent use; the scheduler is its sole owner.
type Buffer struct {
	limits []uint64
	used   []uint64
	routes map[uint32][]int
}

// New constructs a Buffer from cfg. It does not validate cfg; callers
// should validate a scheduler.Config as a whole before building its
// components.
func New(cfg Config) *Buffer {
	b := &Buffer{
		limits: append([]uint64(nil), cfg.PartitionLimits...),
		used:   make([]uint64, len(cfg.PartitionLimits)),
		routes: cfg.BufferRoutes,
	}
	return b
}

// NumPartitions returns the number of partitions.
func (b *Buffer) NumPartitions() int {
	return len(b.limits)
}

// Used returns the bytes currently admitted into partition p.
func (b *Buffer) Used(p int) uint64 {
	return b.used[p]
}

// Limit returns the byte limit of partition p.
func (b *Buffer) Limit(p int) uint64 {
	return b.limits[p]
}

// Admit tries to admit pktLen bytes under bufferID, walking its
// configured partition list in order and admitting into the first
// partition with enough headroom. It returns the chosen partition id
// and false if no partition had room (the packet must be dropped
// before any tree work). An unknown bufferID is a programming error,
// reported via ErrUnknownBufferID rather than as an admission miss.
func (b *Buffer) Admit(bufferID uint32, pktLen uint32) (partitionID uint32, maxSize uint64, ok bool, err error) {
	order, known := b.routes[bufferID]
	if !known {
		return 0, 0, false, fmt.Errorf("%w: %d", ErrUnknownBufferID, bufferID)
	}

	for _, p := range order {
		if b.used[p]+uint64(pktLen) <= b.limits[p] {
			b.used[p] += uint64(pktLen)
			return uint32(p), b.limits[p], true, nil
		}
	}
	return 0, 0, false, nil
}

// Release credits pktLen bytes back to partitionID, asserting the
// partition does not go negative.
func (b *Buffer) Release(partitionID uint32, pktLen uint32) {
	p := int(partitionID)
	if uint64(pktLen) > b.used[p] {
		panic(fmt.Errorf("buffer: release of %d bytes exceeds used %d on partition %d", pktLen, b.used[p], p))
	}
	b.used[p] -= uint64(pktLen)
}
