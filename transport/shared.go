package transport

import "sync"

// Shared serializes access to a Port so that a passive monitor can run next to
// operator sends and handshake receives without losing bytes.
//
// Writes, control-line changes and reconfiguration are serialized by one lock.
// Reads are serialized by a second lock that a frame receiver holds for the
// whole receive through a ReadLease. The monitor uses TryReadAvailable, which
// skips a poll instead of waiting while a lease is held.
type Shared struct {
	port Port

	writeMu sync.Mutex
	readMu  sync.Mutex
}

var _ Port = (*Shared)(nil)

// NewShared wraps port.
func NewShared(port Port) *Shared {
	return &Shared{port: port}
}

// Unwrap returns the wrapped port.
func (s *Shared) Unwrap() Port { return s.port }

func (s *Shared) Open() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.readMu.Lock()
	defer s.readMu.Unlock()

	return s.port.Open()
}

func (s *Shared) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.readMu.Lock()
	defer s.readMu.Unlock()

	return s.port.Close()
}

func (s *Shared) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.port.Write(p)
}

func (s *Shared) SetControlLine(line Line, active bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.port.SetControlLine(line, active)
}

func (s *Shared) Reconfigure(cfg Config) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.readMu.Lock()
	defer s.readMu.Unlock()

	return s.port.Reconfigure(cfg)
}

func (s *Shared) ClearBuffers() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.readMu.Lock()
	defer s.readMu.Unlock()

	return s.port.ClearBuffers()
}

func (s *Shared) Capabilities() Capabilities {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.port.Capabilities()
}

// ReadAvailable drains the port under the read lock.
// Do not call it while holding a ReadLease from the same Shared.
func (s *Shared) ReadAvailable() ([]byte, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	return s.port.ReadAvailable()
}

// TryReadAvailable drains the port only if no other reader holds the read lock.
// ok is false when the poll was skipped.
func (s *Shared) TryReadAvailable() (b []byte, ok bool, err error) {
	if !s.readMu.TryLock() {
		return nil, false, nil
	}
	defer s.readMu.Unlock()

	b, err = s.port.ReadAvailable()

	return b, true, err
}

// LeaseRead takes the read lock until the returned lease is released.
func (s *Shared) LeaseRead() *ReadLease {
	s.readMu.Lock()
	return &ReadLease{s: s}
}

// ReadLeaser is implemented by ports that can grant an exclusive read lease.
type ReadLeaser interface {
	LeaseRead() *ReadLease
}

// ReadLease is an exclusive read grant on a Shared port.
type ReadLease struct {
	s        *Shared
	released bool
}

var _ Reader = (*ReadLease)(nil)

// ReadAvailable drains the port. The caller already holds the read lock.
func (l *ReadLease) ReadAvailable() ([]byte, error) {
	if l.released {
		return nil, ErrPortClosed
	}

	return l.s.port.ReadAvailable()
}

// Release gives up the lease. Releasing twice is a no-op.
func (l *ReadLease) Release() {
	if l.released {
		return
	}
	l.released = true
	l.s.readMu.Unlock()
}
