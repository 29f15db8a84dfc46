package trace

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/PIFO-TM/ns3-bmv2/oracle"
	"github.com/PIFO-TM/ns3-bmv2/packet"
)

var (
	enqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pifosched_packets_enqueued_total",
			Help: "Number of packets successfully enqueued.",
		},
		[]string{"scheduler"},
	)
	dequeuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pifosched_packets_dequeued_total",
			Help: "Number of packets released by the scheduler.",
		},
		[]string{"scheduler"},
	)
	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pifosched_packets_dropped_total",
			Help: "Number of packets dropped, by reason.",
		},
		[]string{"scheduler", "reason"},
	)
	partitionBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pifosched_partition_used_bytes",
			Help: "Bytes currently admitted into a buffer partition.",
		},
		[]string{"scheduler", "partition"},
	)
	nodePackets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pifosched_node_packets",
			Help: "Packets currently resident in a tree node.",
		},
		[]string{"scheduler", "node"},
	)

	metricsCollectors = []prometheus.Collector{
		enqueuedTotal,
		dequeuedTotal,
		droppedTotal,
		partitionBytes,
		nodePackets,
	}

	metricsOnce sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(metricsCollectors...)
	})
}

// MetricsSink is a Sink that reports scheduler activity as Prometheus
// collectors, registered once per process the way the teacher's
// transaction pool registers its queue-depth gauges.
type MetricsSink struct {
	SchedulerName string
}

// NewMetricsSink returns a MetricsSink labeled with schedulerName and
// registers its collectors with the default Prometheus registry.
func NewMetricsSink(schedulerName string) *MetricsSink {
	initMetrics()
	return &MetricsSink{SchedulerName: schedulerName}
}

func (m *MetricsSink) PacketEnqueued(packet.Handle, uuid.UUID, packet.SchedMeta) {
	enqueuedTotal.WithLabelValues(m.SchedulerName).Inc()
}

func (m *MetricsSink) PacketDequeued(packet.Handle, uuid.UUID, packet.SchedMeta) {
	dequeuedTotal.WithLabelValues(m.SchedulerName).Inc()
}

func (m *MetricsSink) PacketDropped(_ packet.Handle, _ uuid.UUID, reason DropReason) {
	droppedTotal.WithLabelValues(m.SchedulerName, string(reason)).Inc()
}

func (m *MetricsSink) BufferEnqueue(partitionID, pktLen uint32) {
	partitionBytes.WithLabelValues(m.SchedulerName, strconv.Itoa(int(partitionID))).Add(float64(pktLen))
}

func (m *MetricsSink) BufferDequeue(partitionID, pktLen uint32) {
	partitionBytes.WithLabelValues(m.SchedulerName, strconv.Itoa(int(partitionID))).Sub(float64(pktLen))
}

func (m *MetricsSink) BufferDrop(uint32, uint32) {}

func (m *MetricsSink) NodeEnqTrace(uint32, oracle.Trace) {}
func (m *MetricsSink) NodeDeqTrace(uint32, oracle.Trace) {}

func (m *MetricsSink) NodePacketsGauge(nodeID uint32, count uint64) {
	nodePackets.WithLabelValues(m.SchedulerName, strconv.Itoa(int(nodeID))).Set(float64(count))
}

var _ Sink = (*MetricsSink)(nil)
