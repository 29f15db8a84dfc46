package scheduler

import coreerrors "github.com/PIFO-TM/ns3-bmv2/common/errors"

const module = "scheduler"

var (
	// ErrBufferFull names a drop for lack of buffer room. Enqueue does
	// not return it as an error: it reports the drop through
	// EnqueueOutcome.Reason (trace.DropBufferFull) and uses
	// ErrBufferFull only in its log line.
	ErrBufferFull = coreerrors.New(module, 1, "scheduler: buffer full")

	// ErrTreeReject is returned when a node along the enqueue cascade
	// rejects the packet; all lower-level insertions are rolled back.
	ErrTreeReject = coreerrors.New(module, 2, "scheduler: tree rejected packet")

	// ErrInvalidChildID is fatal: a child presented a global node id
	// that its parent has no wired edge for during the enqueue cascade.
	ErrInvalidChildID = coreerrors.New(module, 3, "scheduler: child node id not wired to its parent")

	// ErrEmptyPifoPop is an internal invariant violation: a node's
	// dequeue oracle selected a PIFO that is empty.
	ErrEmptyPifoPop = coreerrors.New(module, 4, "scheduler: dequeue oracle selected an empty pifo")

	// ErrConfig wraps configuration validation failures.
	ErrConfig = coreerrors.New(module, 5, "scheduler: invalid configuration")
)
