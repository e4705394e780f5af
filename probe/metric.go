package probe

import (
	"sync/atomic"
)

// Metrics contains atomic counters for a probing session.
type Metrics struct {
	// FramesSent indicates the number of commands placed on the wire.
	FramesSent atomic.Uint64
	// BytesSent indicates the number of bytes written.
	BytesSent atomic.Uint64
	// FramesReceived indicates the number of receives that captured any byte.
	FramesReceived atomic.Uint64
	// CompleteFrames indicates the number of receives that captured a complete frame.
	CompleteFrames atomic.Uint64
	// NoResponseCount indicates the number of receives that captured nothing.
	NoResponseCount atomic.Uint64
	// MatchCount indicates the number of replies equal to their expected response.
	MatchCount atomic.Uint64
	// MismatchCount indicates the number of replies that differ from their expected response.
	MismatchCount atomic.Uint64
	// HeartbeatMissCount indicates the number of unanswered heartbeats.
	HeartbeatMissCount atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	FramesSent         uint64 `json:"frames_sent" yaml:"frames_sent"`
	BytesSent          uint64 `json:"bytes_sent" yaml:"bytes_sent"`
	FramesReceived     uint64 `json:"frames_received" yaml:"frames_received"`
	CompleteFrames     uint64 `json:"complete_frames" yaml:"complete_frames"`
	NoResponseCount    uint64 `json:"no_response" yaml:"no_response"`
	MatchCount         uint64 `json:"matches" yaml:"matches"`
	MismatchCount      uint64 `json:"mismatches" yaml:"mismatches"`
	HeartbeatMissCount uint64 `json:"heartbeat_misses" yaml:"heartbeat_misses"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		FramesSent:         m.FramesSent.Load(),
		BytesSent:          m.BytesSent.Load(),
		FramesReceived:     m.FramesReceived.Load(),
		CompleteFrames:     m.CompleteFrames.Load(),
		NoResponseCount:    m.NoResponseCount.Load(),
		MatchCount:         m.MatchCount.Load(),
		MismatchCount:      m.MismatchCount.Load(),
		HeartbeatMissCount: m.HeartbeatMissCount.Load(),
	}
}

// Add returns the field-wise sum of s and o.
func (s MetricsSnapshot) Add(o MetricsSnapshot) MetricsSnapshot {
	return MetricsSnapshot{
		FramesSent:         s.FramesSent + o.FramesSent,
		BytesSent:          s.BytesSent + o.BytesSent,
		FramesReceived:     s.FramesReceived + o.FramesReceived,
		CompleteFrames:     s.CompleteFrames + o.CompleteFrames,
		NoResponseCount:    s.NoResponseCount + o.NoResponseCount,
		MatchCount:         s.MatchCount + o.MatchCount,
		MismatchCount:      s.MismatchCount + o.MismatchCount,
		HeartbeatMissCount: s.HeartbeatMissCount + o.HeartbeatMissCount,
	}
}

func (m *Metrics) incFramesSent(bytes int) {
	m.FramesSent.Add(1)
	m.BytesSent.Add(uint64(bytes))
}

func (m *Metrics) incBytesSent(bytes int) {
	m.BytesSent.Add(uint64(bytes))
}

func (m *Metrics) incFramesReceived(complete bool) {
	m.FramesReceived.Add(1)
	if complete {
		m.CompleteFrames.Add(1)
	}
}

func (m *Metrics) incNoResponseCount() {
	m.NoResponseCount.Add(1)
}

func (m *Metrics) incMatch(equal bool) {
	if equal {
		m.MatchCount.Add(1)
	} else {
		m.MismatchCount.Add(1)
	}
}

func (m *Metrics) incHeartbeatMissCount() {
	m.HeartbeatMissCount.Add(1)
}
