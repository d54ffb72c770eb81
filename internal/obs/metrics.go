// Package obs implements the Observer metrics collaborator
// (internal/interfaces.Observer): atomic counters and a latency
// histogram any driver can feed from its hot path without taking a
// lock.
//
// Adapted from the teacher's root metrics.go, generalized from ublk's
// fixed read/write/discard/flush op set to also cover ioctl calls and
// aborted requests (spec.md's CmdTCGetAttr/CmdTCSetAttr/CmdAbort have
// no ublk analogue).
package obs

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets are the histogram boundaries in nanoseconds, 1us to
// 10s with logarithmic spacing — identical to the teacher's.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a single
// driver device.
type Metrics struct {
	ReadOps    atomic.Uint64
	WriteOps   atomic.Uint64
	DiscardOps atomic.Uint64
	FlushOps   atomic.Uint64
	IOCtlOps   atomic.Uint64
	AbortOps   atomic.Uint64

	ReadBytes    atomic.Uint64
	WriteBytes   atomic.Uint64
	DiscardBytes atomic.Uint64

	ReadErrors    atomic.Uint64
	WriteErrors   atomic.Uint64
	DiscardErrors atomic.Uint64
	FlushErrors   atomic.Uint64
	IOCtlErrors   atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance stamped with the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// ObserveRead implements internal/interfaces.Observer.
func (m *Metrics) ObserveRead(bytes, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// ObserveWrite implements internal/interfaces.Observer.
func (m *Metrics) ObserveWrite(bytes, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// ObserveDiscard implements internal/interfaces.Observer.
func (m *Metrics) ObserveDiscard(bytes, latencyNs uint64, success bool) {
	m.DiscardOps.Add(1)
	if success {
		m.DiscardBytes.Add(bytes)
	} else {
		m.DiscardErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// ObserveFlush implements internal/interfaces.Observer.
func (m *Metrics) ObserveFlush(latencyNs uint64, success bool) {
	m.FlushOps.Add(1)
	if !success {
		m.FlushErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// ObserveIOCtl implements internal/interfaces.Observer (TCGETATTR/
// TCSETATTR/ISATTY — no ublk analogue, added for this driver's
// control-plane commands).
func (m *Metrics) ObserveIOCtl(latencyNs uint64, success bool) {
	m.IOCtlOps.Add(1)
	if !success {
		m.IOCtlErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// ObserveAbort implements internal/interfaces.Observer.
func (m *Metrics) ObserveAbort() {
	m.AbortOps.Add(1)
}

// ObserveQueueDepth implements internal/interfaces.Observer.
func (m *Metrics) ObserveQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the device as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// Snapshot is a point-in-time view of Metrics, safe to serialize.
type Snapshot struct {
	ReadOps, WriteOps, DiscardOps, FlushOps, IOCtlOps, AbortOps uint64
	ReadBytes, WriteBytes, DiscardBytes                         uint64
	ReadErrors, WriteErrors, DiscardErrors, FlushErrors, IOCtlErrors uint64
	AvgQueueDepth float64
	MaxQueueDepth uint32
	AvgLatencyNs  uint64
	UptimeNs      uint64
	LatencyHistogram [numLatencyBuckets]uint64
	TotalOps, TotalBytes uint64
}

// Snapshot captures the current counters.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		ReadOps:       m.ReadOps.Load(),
		WriteOps:      m.WriteOps.Load(),
		DiscardOps:    m.DiscardOps.Load(),
		FlushOps:      m.FlushOps.Load(),
		IOCtlOps:      m.IOCtlOps.Load(),
		AbortOps:      m.AbortOps.Load(),
		ReadBytes:     m.ReadBytes.Load(),
		WriteBytes:    m.WriteBytes.Load(),
		DiscardBytes:  m.DiscardBytes.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		WriteErrors:   m.WriteErrors.Load(),
		DiscardErrors: m.DiscardErrors.Load(),
		FlushErrors:   m.FlushErrors.Load(),
		IOCtlErrors:   m.IOCtlErrors.Load(),
		MaxQueueDepth: m.MaxQueueDepth.Load(),
	}
	s.TotalOps = s.ReadOps + s.WriteOps + s.DiscardOps + s.FlushOps + s.IOCtlOps + s.AbortOps
	s.TotalBytes = s.ReadBytes + s.WriteBytes + s.DiscardBytes

	if c := m.QueueDepthCount.Load(); c > 0 {
		s.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(c)
	}
	if c := m.OpCount.Load(); c > 0 {
		s.AvgLatencyNs = m.TotalLatencyNs.Load() / c
	}
	for i := range s.LatencyHistogram {
		s.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		s.UptimeNs = uint64(stop - start)
	} else {
		s.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return s
}

// NoOpObserver discards every observation; the default when no
// metrics collaborator is configured.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool)    {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool)   {}
func (NoOpObserver) ObserveDiscard(uint64, uint64, bool) {}
func (NoOpObserver) ObserveFlush(uint64, bool)           {}
func (NoOpObserver) ObserveIOCtl(uint64, bool)           {}
func (NoOpObserver) ObserveAbort()                       {}
func (NoOpObserver) ObserveQueueDepth(uint32)             {}
