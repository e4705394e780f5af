package probe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/transport"
)

// Chunk is one burst of unsolicited bytes seen by the Monitor.
type Chunk struct {
	Time  time.Time
	Bytes []byte
}

// tryReader is implemented by transport.Shared.
type tryReader interface {
	TryReadAvailable() ([]byte, bool, error)
}

// Monitor polls a port on a fixed cadence to surface bytes nobody asked for.
//
// It keeps its own accumulation buffer. When the port is a transport.Shared,
// a poll is skipped while a Receiver or a Handshake exchange holds the read
// lease. A Handshake takes the lease before it sends, so the Monitor never
// takes bytes that belong to a handshake exchange.
type Monitor struct {
	port     transport.Reader
	interval time.Duration
	log      *Log
	logger   logger.Logger

	subs   *xsync.MapOf[uint64, func(Chunk)]
	nextID atomic.Uint64

	mu  sync.Mutex
	buf []byte

	polls   atomic.Uint64
	skipped atomic.Uint64
	bytes   atomic.Uint64
}

// NewMonitor creates a Monitor for port using the configured cadence and logger.
// log may be nil; when set every chunk is appended as an rx record with command "unsolicited".
func NewMonitor(port transport.Reader, cfg *Config, log *Log) *Monitor {
	return &Monitor{
		port:     port,
		interval: cfg.MonitorInterval(),
		log:      log,
		logger:   cfg.GetLogger(),
		subs:     xsync.NewMapOf[uint64, func(Chunk)](),
	}
}

// Subscribe registers fn for every chunk and returns a function that removes it.
// fn runs on the monitor goroutine and receives its own copy of the bytes.
func (m *Monitor) Subscribe(fn func(Chunk)) (unsubscribe func()) {
	id := m.nextID.Add(1)
	m.subs.Store(id, fn)

	return func() { m.subs.Delete(id) }
}

// Run polls until ctx is done. It returns nil on cancellation and the read
// error, wrapped in transport.ErrTransportRead, if the port fails.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Debug("monitor started", "interval", m.interval)
	defer m.logger.Debug("monitor stopped", "polls", m.polls.Load(), "skipped", m.skipped.Load())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Poll(); err != nil {
				m.logger.Error("monitor read failed", "error", err)
				return err
			}
		}
	}
}

// Poll performs a single drain and dispatches any bytes found.
func (m *Monitor) Poll() error {
	m.polls.Add(1)

	var (
		b   []byte
		err error
	)
	if tr, ok := m.port.(tryReader); ok {
		var read bool
		b, read, err = tr.TryReadAvailable()
		if !read {
			m.skipped.Add(1)
			return nil
		}
	} else {
		b, err = m.port.ReadAvailable()
	}

	if len(b) > 0 {
		m.dispatch(b)
	}

	return err
}

func (m *Monitor) dispatch(b []byte) {
	now := time.Now()
	m.bytes.Add(uint64(len(b)))

	m.mu.Lock()
	m.buf = append(m.buf, b...)
	m.mu.Unlock()

	if m.log != nil {
		m.log.Append(Record{Timestamp: now, Direction: Rx, Command: CmdUnsolicited, Bytes: b})
	}
	m.logger.Info("unsolicited bytes", "count", len(b), "bytes", frame.FormatHex(b))

	m.subs.Range(func(_ uint64, fn func(Chunk)) bool {
		fn(Chunk{Time: now, Bytes: append([]byte(nil), b...)})
		return true
	})
}

// Buffer returns a copy of every byte accumulated since the last Reset.
func (m *Monitor) Buffer() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]byte(nil), m.buf...)
}

// Frame decodes the accumulated buffer.
func (m *Monitor) Frame() frame.Frame {
	return frame.Decode(m.Buffer())
}

// Reset clears the accumulation buffer.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.buf = nil
	m.mu.Unlock()
}

// MonitorStats reports poll counters.
type MonitorStats struct {
	Polls   uint64
	Skipped uint64
	Bytes   uint64
}

// Stats returns the monitor's poll counters.
func (m *Monitor) Stats() MonitorStats {
	return MonitorStats{
		Polls:   m.polls.Load(),
		Skipped: m.skipped.Load(),
		Bytes:   m.bytes.Load(),
	}
}
