package oracle

// This file holds small, deterministic oracle implementations used by
// this module's own tests to exercise the scheduler core against the
// scenarios in spec §8. A real deployment supplies oracles backed by
// the external packet-programming runtime; these are stand-ins only.

// TableClassifier steers packets to a (bufferID, leafID) pair chosen
// by a caller-supplied function of flow hash.
type TableClassifier struct {
	Route func(flowHash uint32) (bufferID, leafID uint32)
}

// Classify implements Classifier.
func (c *TableClassifier) Classify(in ClassifyInput) ClassifyOutput {
	bufferID, leafID := c.Route(in.FlowHash)
	return ClassifyOutput{BufferID: bufferID, LeafID: leafID, Trace: in.Trace}
}

// RankFunc computes a rank (and optionally a reject decision and
// shaping delay) given an EnqueueTrigger and the oracle's own trace.
type RankFunc func(in EnqueueTrigger) EnqueueDecision

// FuncEnqueueOracle is an EnqueueOracle backed by a RankFunc. Dequeue
// feedback is ignored unless OnFeedback is set.
type FuncEnqueueOracle struct {
	Rank       RankFunc
	OnFeedback func(in DequeueFeedback) DequeueFeedbackResult
}

// OnEnqueue implements EnqueueOracle.
func (o *FuncEnqueueOracle) OnEnqueue(in EnqueueTrigger) EnqueueDecision {
	return o.Rank(in)
}

// OnDequeueFeedback implements EnqueueOracle.
func (o *FuncEnqueueOracle) OnDequeueFeedback(in DequeueFeedback) DequeueFeedbackResult {
	if o.OnFeedback != nil {
		return o.OnFeedback(in)
	}
	return DequeueFeedbackResult{Trace: in.Trace}
}

// FirstNonEmptyDequeueOracle implements strict-priority selection: it
// picks the lowest-indexed non-empty PIFO slot, as used by spec
// scenario S2.
type FirstNonEmptyDequeueOracle struct{}

// SelectDequeue implements DequeueOracle.
func (FirstNonEmptyDequeueOracle) SelectDequeue(in DequeueTrigger) DequeueDecision {
	for i, snap := range in.Pifos {
		if !snap.IsEmpty {
			return DequeueDecision{PifoID: uint32(i), Trace: in.Trace}
		}
	}
	return DequeueDecision{PifoID: MaxPifos, Trace: in.Trace}
}

// SinglePifoDequeueOracle always selects PIFO 0; valid for K==1 nodes.
type SinglePifoDequeueOracle struct{}

// SelectDequeue implements DequeueOracle.
func (SinglePifoDequeueOracle) SelectDequeue(in DequeueTrigger) DequeueDecision {
	return DequeueDecision{PifoID: 0, Trace: in.Trace}
}
