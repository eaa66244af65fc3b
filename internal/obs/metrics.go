package obs

import (
	"sync/atomic"
	"time"

	"main/internal/risk"
	"main/internal/schema"
)

const (
	maxEventKind  = int(schema.EventDisconnected)
	maxRiskReason = int(risk.ReasonOrderInterval)
)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	eventCounts      [maxEventKind + 1]uint64
	riskReasonCounts [maxRiskReason + 1]uint64
	queueDrops       uint64
	reconnects       uint64
	resyncs          uint64
	ordersSubmitted  uint64
	ordersRejected   uint64

	eventLatency    LatencyStats
	decisionLatency LatencyStats
	submitLatency   LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventKind]uint64
	RiskReasonCounts map[risk.Reason]uint64
	QueueDrops       uint64
	Reconnects       uint64
	Resyncs          uint64
	OrdersSubmitted  uint64
	OrdersRejected   uint64
	EventLatency     LatencySnapshot
	DecisionLatency  LatencySnapshot
	SubmitLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts an event and tracks delivery latency when both
// timestamps are present.
func (m *Metrics) ObserveEvent(ev schema.Event) {
	if m == nil {
		return
	}
	idx := int(ev.Kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
	if ev.TsEvent > 0 && ev.TsRecv > 0 {
		delta := ev.TsRecv - ev.TsEvent
		if delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// IncRiskDeny counts a denied intent by reason.
func (m *Metrics) IncRiskDeny(reason risk.Reason) {
	if m == nil {
		return
	}
	idx := int(reason)
	if idx >= 0 && idx < len(m.riskReasonCounts) {
		atomic.AddUint64(&m.riskReasonCounts[idx], 1)
	}
}

// IncQueueDrop records an event dropped on a full queue.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncReconnect records a stream reconnection.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

// IncResync records a full state resync.
func (m *Metrics) IncResync() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.resyncs, 1)
}

// IncOrderSubmitted counts an accepted submission.
func (m *Metrics) IncOrderSubmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersSubmitted, 1)
}

// IncOrderRejected counts an exchange rejection.
func (m *Metrics) IncOrderRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersRejected, 1)
}

// ObserveDecision measures one decision-loop pass.
func (m *Metrics) ObserveDecision(d time.Duration) {
	if m == nil {
		return
	}
	m.decisionLatency.Observe(d)
}

// ObserveSubmit measures one order submission round trip.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventKind]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventKind(i)] = v
		}
	}
	riskCounts := make(map[risk.Reason]uint64)
	for i := range m.riskReasonCounts {
		if v := atomic.LoadUint64(&m.riskReasonCounts[i]); v > 0 {
			riskCounts[risk.Reason(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		RiskReasonCounts: riskCounts,
		QueueDrops:       atomic.LoadUint64(&m.queueDrops),
		Reconnects:       atomic.LoadUint64(&m.reconnects),
		Resyncs:          atomic.LoadUint64(&m.resyncs),
		OrdersSubmitted:  atomic.LoadUint64(&m.ordersSubmitted),
		OrdersRejected:   atomic.LoadUint64(&m.ordersRejected),
		EventLatency:     m.eventLatency.Snapshot(),
		DecisionLatency:  m.decisionLatency.Snapshot(),
		SubmitLatency:    m.submitLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
