package scheduler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/PIFO-TM/ns3-bmv2/clock"
	"github.com/PIFO-TM/ns3-bmv2/oracle"
	"github.com/PIFO-TM/ns3-bmv2/trace"
)

// testFactory is the simplest possible OracleFactory: it just returns
// whatever fixed oracle instances the test wired up per node id,
// standing in for the external packet-programming runtime (spec
// §6.2), which this module never implements.
type testFactory struct {
	classifier oracle.Classifier
	enq        map[uint32]oracle.EnqueueOracle
	deq        map[uint32]oracle.DequeueOracle
}

func (f *testFactory) Classifier(OracleArtifact) (oracle.Classifier, error) {
	return f.classifier, nil
}

func (f *testFactory) EnqueueOracle(id uint32, _ OracleArtifact) (oracle.EnqueueOracle, error) {
	return f.enq[id], nil
}

func (f *testFactory) DequeueOracle(id uint32, _ OracleArtifact) (oracle.DequeueOracle, error) {
	return f.deq[id], nil
}

func monotonicRankOracle() oracle.EnqueueOracle {
	counter := uint64(0)
	return &oracle.FuncEnqueueOracle{
		Rank: func(in oracle.EnqueueTrigger) oracle.EnqueueDecision {
			r := counter
			counter++
			return oracle.EnqueueDecision{Rank: r, PifoID: 0}
		},
	}
}

// TestS1FIFOLeaf exercises spec scenario S1: a single leaf/root node
// with one pifo behaves as a plain FIFO.
func TestS1FIFOLeaf(t *testing.T) {
	cfg := Config{
		ClassLogic: OracleArtifact{"classify.prog", "classify.tbl"},
		BufferConfig: BufferConfig{
			NumBufIDs:      1,
			PartitionSizes: []uint64{1 << 20},
			BufIDMap:       map[string][]int{"0": {0}},
		},
		NumNodes: 1,
		Tree:     map[string][]uint32{},
		NumPifos: map[string]uint32{"0": 1},
		EnqLogic: map[string]OracleArtifact{"0": {"enq0.prog", "enq0.tbl"}},
		DeqLogic: map[string]OracleArtifact{"0": {"deq0.prog", "deq0.tbl"}},
	}

	factory := &testFactory{
		classifier: &oracle.TableClassifier{Route: func(uint32) (uint32, uint32) { return 0, 0 }},
		enq:        map[uint32]oracle.EnqueueOracle{0: monotonicRankOracle()},
		deq:        map[uint32]oracle.DequeueOracle{0: oracle.SinglePifoDequeueOracle{}},
	}

	clk := clock.NewManual(time.Unix(0, 0))
	s, err := FromConfig(cfg, factory, clk, nil)
	require.NoError(t, err)

	p1, p2, p3 := "pkt1", "pkt2", "pkt3"
	for _, p := range []struct {
		pkt string
		len uint32
	}{{p1, 100}, {p2, 200}, {p3, 300}} {
		out, err := s.Enqueue(p.pkt, p.len, 0)
		require.NoError(t, err)
		require.True(t, out.Admitted)
	}

	got1, ok1 := s.Dequeue()
	got2, ok2 := s.Dequeue()
	got3, ok3 := s.Dequeue()
	require.True(t, ok1)
	require.True(t, ok2)
	require.True(t, ok3)
	require.Equal(t, p1, got1)
	require.Equal(t, p2, got2)
	require.Equal(t, p3, got3)

	st := s.Stats()
	require.EqualValues(t, 0, st.PerPartitionBytes[0])
	require.EqualValues(t, 3, st.Dequeued)
}

// TestS2StrictPriorityRoot exercises spec scenario S2.
func TestS2StrictPriorityRoot(t *testing.T) {
	cfg := Config{
		ClassLogic: OracleArtifact{"classify.prog", "classify.tbl"},
		BufferConfig: BufferConfig{
			PartitionSizes: []uint64{1 << 20},
			BufIDMap:       map[string][]int{"0": {0}},
		},
		NumNodes: 3,
		Tree:     map[string][]uint32{"0": {1, 2}},
		NumPifos: map[string]uint32{"0": 2, "1": 1, "2": 1},
		EnqLogic: map[string]OracleArtifact{
			"0": {"root.enq", ""}, "1": {"l1.enq", ""}, "2": {"l2.enq", ""},
		},
		DeqLogic: map[string]OracleArtifact{
			"0": {"root.deq", ""}, "1": {"l1.deq", ""}, "2": {"l2.deq", ""},
		},
	}

	// Odd flow_hash -> leaf L2 (global id 2), even -> leaf L1 (global id 1).
	classifier := &oracle.TableClassifier{
		Route: func(flowHash uint32) (uint32, uint32) {
			if flowHash%2 == 1 {
				return 0, 2
			}
			return 0, 1
		},
	}

	// Root ranks entries from L1 (local idx 0) at rank 0, from L2
	// (local idx 1) at rank 1, both into pifo 0.
	rootEnq := &oracle.FuncEnqueueOracle{
		Rank: func(in oracle.EnqueueTrigger) oracle.EnqueueDecision {
			return oracle.EnqueueDecision{Rank: uint64(in.ChildNodeIdx), PifoID: 0}
		},
	}

	factory := &testFactory{
		classifier: classifier,
		enq: map[uint32]oracle.EnqueueOracle{
			0: rootEnq,
			1: monotonicRankOracle(),
			2: monotonicRankOracle(),
		},
		deq: map[uint32]oracle.DequeueOracle{
			0: oracle.FirstNonEmptyDequeueOracle{},
			1: oracle.SinglePifoDequeueOracle{},
			2: oracle.SinglePifoDequeueOracle{},
		},
	}

	clk := clock.NewManual(time.Unix(0, 0))
	s, err := FromConfig(cfg, factory, clk, nil)
	require.NoError(t, err)

	type pkt struct {
		name     string
		flowHash uint32
	}
	pkts := []pkt{{"p2", 2}, {"p3", 3}, {"p4", 4}, {"p5", 5}}
	for _, p := range pkts {
		out, err := s.Enqueue(p.name, 64, p.flowHash)
		require.NoError(t, err)
		require.True(t, out.Admitted)
	}

	var order []string
	for i := 0; i < 4; i++ {
		got, ok := s.Dequeue()
		require.True(t, ok)
		order = append(order, got.(string))
	}
	require.Equal(t, []string{"p2", "p4", "p3", "p5"}, order)
}

// TestS3WFQLeaf exercises spec scenario S3: two equal-weight,
// equal-packet-size flows sharing one leaf dequeue alternately
// regardless of arrival interleaving.
func TestS3WFQLeaf(t *testing.T) {
	const pktLen = 100

	cfg := Config{
		ClassLogic: OracleArtifact{"classify.prog", ""},
		BufferConfig: BufferConfig{
			PartitionSizes: []uint64{1 << 20},
			BufIDMap:       map[string][]int{"0": {0}},
		},
		NumNodes: 1,
		Tree:     map[string][]uint32{},
		NumPifos: map[string]uint32{"0": 1},
		EnqLogic: map[string]OracleArtifact{"0": {"wfq.enq", ""}},
		DeqLogic: map[string]OracleArtifact{"0": {"wfq.deq", ""}},
	}

	// trace[0] = flow A's virtual finish time, trace[1] = flow B's.
	wfq := &oracle.FuncEnqueueOracle{
		Rank: func(in oracle.EnqueueTrigger) oracle.EnqueueDecision {
			tr := in.Trace
			var rank uint64
			if in.SchedMeta.FlowHash == 1 {
				rank = uint64(tr[0])
				tr[0] += in.SchedMeta.PktLen
			} else {
				rank = uint64(tr[1])
				tr[1] += in.SchedMeta.PktLen
			}
			return oracle.EnqueueDecision{Rank: rank, PifoID: 0, Trace: tr}
		},
	}

	factory := &testFactory{
		classifier: &oracle.TableClassifier{Route: func(uint32) (uint32, uint32) { return 0, 0 }},
		enq:        map[uint32]oracle.EnqueueOracle{0: wfq},
		deq:        map[uint32]oracle.DequeueOracle{0: oracle.SinglePifoDequeueOracle{}},
	}

	clk := clock.NewManual(time.Unix(0, 0))
	s, err := FromConfig(cfg, factory, clk, nil)
	require.NoError(t, err)

	// Interleave arrival order AABBABAB... to show the alternation is
	// a property of the ranking, not of arrival order.
	arrivals := []uint32{1, 1, 2, 2, 1, 2, 1, 2, 1, 2}
	for i, flow := range arrivals {
		out, err := s.Enqueue(i, pktLen, flow)
		require.NoError(t, err)
		require.True(t, out.Admitted)
	}

	var flows []uint32
	for i := 0; i < len(arrivals); i++ {
		got, ok := s.Dequeue()
		require.True(t, ok)
		idx := got.(int)
		flows = append(flows, arrivals[idx])
	}

	for i := 1; i < len(flows); i++ {
		require.NotEqual(t, flows[i-1], flows[i], "dequeue order should alternate flows at index %d", i)
	}
}

// TestS5Shaping exercises spec scenario S5: a leaf-assigned tx_time in
// the future defers release until the host clock catches up.
func TestS5Shaping(t *testing.T) {
	cfg := Config{
		ClassLogic: OracleArtifact{"classify.prog", ""},
		BufferConfig: BufferConfig{
			PartitionSizes: []uint64{1 << 20},
			BufIDMap:       map[string][]int{"0": {0}},
		},
		NumNodes: 1,
		Tree:     map[string][]uint32{},
		NumPifos: map[string]uint32{"0": 1},
		EnqLogic: map[string]OracleArtifact{"0": {"shape.enq", ""}},
		DeqLogic: map[string]OracleArtifact{"0": {"shape.deq", ""}},
	}

	clk := clock.NewManual(time.Unix(0, 0))

	enq := &oracle.FuncEnqueueOracle{
		Rank: func(in oracle.EnqueueTrigger) oracle.EnqueueDecision {
			return oracle.EnqueueDecision{Rank: 0, PifoID: 0, TxTime: in.Now.Add(10 * time.Millisecond)}
		},
	}
	deq := shapingDequeueOracle{}

	factory := &testFactory{
		classifier: &oracle.TableClassifier{Route: func(uint32) (uint32, uint32) { return 0, 0 }},
		enq:        map[uint32]oracle.EnqueueOracle{0: enq},
		deq:        map[uint32]oracle.DequeueOracle{0: deq},
	}

	s, err := FromConfig(cfg, factory, clk, nil)
	require.NoError(t, err)

	out, err := s.Enqueue("shaped", 64, 0)
	require.NoError(t, err)
	require.True(t, out.Admitted)

	clk.Advance(5 * time.Millisecond)
	_, ok := s.Dequeue()
	require.False(t, ok, "packet should not release before its tx_time")

	clk.Advance(5 * time.Millisecond) // now at 10ms: fires the scheduled re-entry.
	require.EqualValues(t, 1, s.Stats().Dequeued)
}

// shapingDequeueOracle defers release until the head entry's tx_time.
type shapingDequeueOracle struct{}

func (shapingDequeueOracle) SelectDequeue(in oracle.DequeueTrigger) oracle.DequeueDecision {
	snap := in.Pifos[0]
	if snap.IsEmpty {
		return oracle.DequeueDecision{PifoID: oracle.MaxPifos}
	}
	if in.Now.Before(snap.HeadTxTime) {
		return oracle.DequeueDecision{PifoID: 0, DeqDelay: snap.HeadTxTime.Sub(in.Now)}
	}
	return oracle.DequeueDecision{PifoID: 0}
}

// TestS6RollbackOnInteriorFailure exercises spec scenario S6: a root
// that rejects odd flow_hash packets leaves no trace of them anywhere
// in the tree, and refunds the buffer.
func TestS6RollbackOnInteriorFailure(t *testing.T) {
	cfg := Config{
		ClassLogic: OracleArtifact{"classify.prog", ""},
		BufferConfig: BufferConfig{
			PartitionSizes: []uint64{1000},
			BufIDMap:       map[string][]int{"0": {0}},
		},
		NumNodes: 2,
		Tree:     map[string][]uint32{"0": {1}},
		NumPifos: map[string]uint32{"0": 1, "1": 1},
		EnqLogic: map[string]OracleArtifact{"0": {"root.enq", ""}, "1": {"leaf.enq", ""}},
		DeqLogic: map[string]OracleArtifact{"0": {"root.deq", ""}, "1": {"leaf.deq", ""}},
	}

	rootEnq := &oracle.FuncEnqueueOracle{
		Rank: func(in oracle.EnqueueTrigger) oracle.EnqueueDecision {
			if in.SchedMeta.FlowHash%2 == 1 {
				return oracle.EnqueueDecision{Reject: true}
			}
			return oracle.EnqueueDecision{Rank: 0, PifoID: 0}
		},
	}

	factory := &testFactory{
		classifier: &oracle.TableClassifier{Route: func(uint32) (uint32, uint32) { return 0, 1 }},
		enq: map[uint32]oracle.EnqueueOracle{
			0: rootEnq,
			1: monotonicRankOracle(),
		},
		deq: map[uint32]oracle.DequeueOracle{
			0: oracle.SinglePifoDequeueOracle{},
			1: oracle.SinglePifoDequeueOracle{},
		},
	}

	clk := clock.NewManual(time.Unix(0, 0))
	s, err := FromConfig(cfg, factory, clk, nil)
	require.NoError(t, err)

	outEven, err := s.Enqueue("even", 100, 2)
	require.NoError(t, err)
	require.True(t, outEven.Admitted)

	require.EqualValues(t, 1, s.nodes[1].packetsInNode, "even packet should sit in the leaf pifo")
	require.EqualValues(t, 1, s.nodes[0].packetsInNode, "even packet's interior entry should sit in the root pifo")

	outOdd, err := s.Enqueue("odd", 100, 3)
	require.NoError(t, err)
	require.False(t, outOdd.Admitted)
	require.Equal(t, trace.DropTreeReject, outOdd.Reason)

	require.EqualValues(t, 1, s.nodes[1].packetsInNode, "rejected packet must leave no trace in the leaf pifo")
	require.EqualValues(t, 1, s.nodes[0].packetsInNode, "rejected packet must leave no trace in the root pifo")
	require.EqualValues(t, 100, s.Stats().PerPartitionBytes[0], "buffer must be refunded for the rejected packet")
}

func TestConfigValidationCatchesMultipleProblems(t *testing.T) {
	cfg := Config{
		NumNodes: 2,
		Tree:     map[string][]uint32{"0": {5}}, // out-of-range child, and node 1 has no parent
		NumPifos: map[string]uint32{"0": 1},      // node 1 missing
		EnqLogic: map[string]OracleArtifact{"0": {}},
		DeqLogic: map[string]OracleArtifact{"0": {}},
	}
	err := cfg.validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Greater(t, len(merr.Errors), 1, "every problem should be reported, not just the first")
}

func TestConfigJSONRoundTrip(t *testing.T) {
	raw := []byte(`{
		"class-logic": ["classify.prog", "classify.tbl"],
		"buffer-config": {
			"num-bufIDs": 1,
			"partition-sizes": [1000000],
			"bufID-map": {"0": [0]}
		},
		"num-nodes": 1,
		"tree": {},
		"num-pifos": {"0": 1},
		"enq-logic": {"0": ["e.prog", "e.tbl"]},
		"deq-logic": {"0": ["d.prog", "d.tbl"]}
	}`)

	var cfg Config
	require.NoError(t, json.Unmarshal(raw, &cfg))
	require.EqualValues(t, 1, cfg.NumNodes)
	require.Equal(t, OracleArtifact{"classify.prog", "classify.tbl"}, cfg.ClassLogic)
	require.NoError(t, cfg.validate())

	encoded, err := json.Marshal(cfg)
	require.NoError(t, err)
	var again Config
	require.NoError(t, json.Unmarshal(encoded, &again))
	require.Equal(t, cfg, again)
}
