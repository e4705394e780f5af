package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-ptu/logger"
)

// fakeSerial is an in-memory serial.Port.
type fakeSerial struct {
	mu sync.Mutex

	mode        *serial.Mode
	modes       []*serial.Mode
	readTimeout time.Duration
	input       []byte
	written     []byte
	drains      int
	rts, dtr    bool
	rtsHistory  []bool
	status      serial.ModemStatusBits
	closed      bool

	rejectLines bool
	writeErr    error
	setModeErr  error
	resetErr    error
	resets      int
}

var _ serial.Port = (*fakeSerial)(nil)

func (f *fakeSerial) SetMode(mode *serial.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setModeErr != nil {
		return f.setModeErr
	}
	f.mode = mode
	f.modes = append(f.modes, mode)

	return nil
}

func (f *fakeSerial) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New("closed")
	}
	n := copy(p, f.input)
	f.input = f.input[n:]

	return n, nil
}

func (f *fakeSerial) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, p...)

	return len(p), nil
}

func (f *fakeSerial) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++

	return nil
}

func (f *fakeSerial) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.input = nil
	f.resets++

	return nil
}

func (f *fakeSerial) ResetOutputBuffer() error { return nil }

func (f *fakeSerial) SetDTR(dtr bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectLines {
		return errors.New("not supported")
	}
	f.dtr = dtr

	return nil
}

func (f *fakeSerial) SetRTS(rts bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectLines {
		return errors.New("not supported")
	}
	f.rts = rts
	f.rtsHistory = append(f.rtsHistory, rts)

	return nil
}

func (f *fakeSerial) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bits := f.status

	return &bits, nil
}

func (f *fakeSerial) SetReadTimeout(t time.Duration) error {
	f.readTimeout = t
	return nil
}

func (f *fakeSerial) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true

	return nil
}

func (f *fakeSerial) Break(time.Duration) error { return nil }

func (f *fakeSerial) feed(b ...byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = append(f.input, b...)
}

// newTestSerial returns a Serial whose opener hands out fake.
func newTestSerial(t *testing.T, cfg Config, fake *fakeSerial, opts ...SerialOption) (*Serial, *[]*serial.Mode) {
	t.Helper()

	var opened []*serial.Mode
	open := func(name string, mode *serial.Mode) (serial.Port, error) {
		opened = append(opened, mode)
		fake.mode = mode
		return fake, nil
	}

	defaults := []SerialOption{WithOpener(open), WithLogger(logger.Discard())}
	s, err := NewSerial("/dev/ttyTEST", cfg, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestSerial: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s, &opened
}
