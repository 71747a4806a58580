package stepperctl

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the response-latency histogram buckets in
// nanoseconds. Buckets cover from 1ms to 10s with logarithmic spacing,
// matching the ceiling the response-timeout state machine (§4.4) imposes.
var LatencyBuckets = []uint64{
	1_000_000,    // 1ms
	10_000_000,   // 10ms
	100_000_000,  // 100ms
	500_000_000,  // 500ms
	1_000_000_000, // 1s
	2_000_000_000, // 2s
	5_000_000_000, // 5s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks protocol-level traffic and job outcomes for a Controller.
type Metrics struct {
	// Frame-level counters
	FramesSent     atomic.Uint64
	FramesReceived atomic.Uint64
	FramesDropped  atomic.Uint64 // inbound frames dropped, full router queue (§4.3)
	SendErrors     atomic.Uint64 // TryEnqueue failures, full outbound queue (§5)
	TransportErrors atomic.Uint64

	// Job lifecycle counters
	JobsSubmitted  atomic.Uint64
	JobsCompleted  atomic.Uint64
	JobsCancelled  atomic.Uint64
	Naks           atomic.Uint64
	Timeouts       atomic.Uint64
	Adjustments    atomic.Uint64 // position-loop re-commands issued (§4.6)

	// Response round-trip latency: time from a motion verb's job submission
	// (job.Machine.Submit) to the correlated ACK/NAK, in nanoseconds.
	TotalResponseLatencyNs atomic.Uint64
	ResponseCount          atomic.Uint64
	LatencyBuckets         [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordFrameSent records one outbound frame write.
func (m *Metrics) RecordFrameSent() {
	m.FramesSent.Add(1)
}

// RecordFrameReceived records one inbound frame dispatched by the router or
// applied directly to the Feedback Store.
func (m *Metrics) RecordFrameReceived() {
	m.FramesReceived.Add(1)
}

// RecordFrameDropped records a non-feedback frame discarded because the
// router's inbound queue was full (§4.3).
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Add(1)
}

// RecordSendError records a TryEnqueue failure (outbound queue full, §5).
func (m *Metrics) RecordSendError() {
	m.SendErrors.Add(1)
}

// RecordTransportError records an I/O error observed by the transport.
func (m *Metrics) RecordTransportError() {
	m.TransportErrors.Add(1)
}

// RecordJobSubmitted records a motion verb successfully enqueuing a job.
func (m *Metrics) RecordJobSubmitted() {
	m.JobsSubmitted.Add(1)
}

// RecordResponse records a correlated ACK/NAK and its round-trip latency
// since submission.
func (m *Metrics) RecordResponse(latencyNs uint64, ack bool) {
	m.ResponseCount.Add(1)
	m.TotalResponseLatencyNs.Add(latencyNs)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
	if !ack {
		m.Naks.Add(1)
	}
}

// RecordJobCompleted records a job reaching idle via JOB_COMPLETE.
func (m *Metrics) RecordJobCompleted() {
	m.JobsCompleted.Add(1)
}

// RecordJobCancelled records a job reaching idle via JOB_CANCELLED.
func (m *Metrics) RecordJobCancelled() {
	m.JobsCancelled.Add(1)
}

// RecordTimeout records a response-timeout (§4.4) returning the state
// machine to idle.
func (m *Metrics) RecordTimeout() {
	m.Timeouts.Add(1)
}

// RecordAdjustment records a bounded position-loop re-command (§4.6).
func (m *Metrics) RecordAdjustment() {
	m.Adjustments.Add(1)
}

// Stop marks the controller as stopped, freezing uptime-derived rates.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics, with a
// handful of derived statistics.
type MetricsSnapshot struct {
	FramesSent      uint64
	FramesReceived  uint64
	FramesDropped   uint64
	SendErrors      uint64
	TransportErrors uint64

	JobsSubmitted uint64
	JobsCompleted uint64
	JobsCancelled uint64
	Naks          uint64
	Timeouts      uint64
	Adjustments   uint64

	AvgResponseLatencyNs uint64
	LatencyP50Ns         uint64
	LatencyP99Ns         uint64
	LatencyHistogram     [numLatencyBuckets]uint64

	UptimeNs  uint64
	NakRate   float64 // percentage of responses that were NAK
}

// Snapshot returns a consistent point-in-time copy of the metrics, with
// derived rates and latency percentiles computed.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		FramesSent:      m.FramesSent.Load(),
		FramesReceived:  m.FramesReceived.Load(),
		FramesDropped:   m.FramesDropped.Load(),
		SendErrors:      m.SendErrors.Load(),
		TransportErrors: m.TransportErrors.Load(),
		JobsSubmitted:   m.JobsSubmitted.Load(),
		JobsCompleted:   m.JobsCompleted.Load(),
		JobsCancelled:   m.JobsCancelled.Load(),
		Naks:            m.Naks.Load(),
		Timeouts:        m.Timeouts.Load(),
		Adjustments:     m.Adjustments.Load(),
	}

	respCount := m.ResponseCount.Load()
	totalLatency := m.TotalResponseLatencyNs.Load()
	if respCount > 0 {
		snap.AvgResponseLatencyNs = totalLatency / respCount
		snap.NakRate = float64(snap.Naks) / float64(respCount) * 100.0
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	if respCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
	}

	return snap
}

// calculatePercentile estimates the response latency at the given
// percentile (0.0-1.0) using linear interpolation between histogram
// buckets, mirroring the teacher's block-I/O latency estimator.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.ResponseCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		count := m.LatencyBuckets[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter, for test isolation.
func (m *Metrics) Reset() {
	m.FramesSent.Store(0)
	m.FramesReceived.Store(0)
	m.FramesDropped.Store(0)
	m.SendErrors.Store(0)
	m.TransportErrors.Store(0)
	m.JobsSubmitted.Store(0)
	m.JobsCompleted.Store(0)
	m.JobsCancelled.Store(0)
	m.Naks.Store(0)
	m.Timeouts.Store(0)
	m.Adjustments.Store(0)
	m.TotalResponseLatencyNs.Store(0)
	m.ResponseCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable traffic observation (e.g. an external
// telemetry sink, explicitly out of this spec's core but wired as a seam).
type Observer interface {
	ObserveFrameSent()
	ObserveFrameReceived()
	ObserveFrameDropped()
	ObserveResponse(latencyNs uint64, ack bool)
}

// NoOpObserver discards everything.
type NoOpObserver struct{}

func (NoOpObserver) ObserveFrameSent()                        {}
func (NoOpObserver) ObserveFrameReceived()                     {}
func (NoOpObserver) ObserveFrameDropped()                      {}
func (NoOpObserver) ObserveResponse(uint64, bool)              {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveFrameSent()       { o.metrics.RecordFrameSent() }
func (o *MetricsObserver) ObserveFrameReceived()    { o.metrics.RecordFrameReceived() }
func (o *MetricsObserver) ObserveFrameDropped()     { o.metrics.RecordFrameDropped() }
func (o *MetricsObserver) ObserveResponse(latencyNs uint64, ack bool) {
	o.metrics.RecordResponse(latencyNs, ack)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
