package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/arloliu/go-ptu/logger"
)

// Serial adapter defaults.
const (
	DefaultReadTimeout = time.Millisecond
	DefaultFlowTimeout = 500 * time.Millisecond
	DefaultReadBufSize = 256

	MinReadTimeout = time.Millisecond
	MaxReadTimeout = 100 * time.Millisecond

	flowPollInterval = 2 * time.Millisecond
)

// Opener opens a serial device. It matches serial.Open and is replaced in tests.
type Opener func(name string, mode *serial.Mode) (serial.Port, error)

// Serial is a Port backed by go.bug.st/serial.
//
// Reads are made non-blocking with a short read timeout. Every write is
// followed by Drain so that pacing delays start once bytes have left the UART.
// The library has no hardware flow-control mode, so RTS/CTS and DSR/DTR are
// emulated: the output line is asserted and the matching input line is polled
// before each write.
type Serial struct {
	name        string
	opener      Opener
	readTimeout time.Duration
	flowTimeout time.Duration
	logger      logger.Logger

	mu   sync.Mutex
	port serial.Port
	cfg  Config
	caps Capabilities
	buf  []byte
}

var _ Port = (*Serial)(nil)

// SerialOption is a functional option for configuring a Serial port.
type SerialOption interface {
	apply(*Serial) error
}

type serialOptFunc func(*Serial) error

func (f serialOptFunc) apply(s *Serial) error { return f(s) }

// WithOpener replaces serial.Open.
func WithOpener(open Opener) SerialOption {
	return serialOptFunc(func(s *Serial) error {
		if open == nil {
			return errors.New("transport: opener must not be nil")
		}
		s.opener = open

		return nil
	})
}

// WithReadTimeout sets how long one ReadAvailable call may wait for the first byte.
func WithReadTimeout(d time.Duration) SerialOption {
	return serialOptFunc(func(s *Serial) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("transport: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		s.readTimeout = d

		return nil
	})
}

// WithFlowTimeout sets how long a write waits for CTS or DSR when flow control is emulated.
func WithFlowTimeout(d time.Duration) SerialOption {
	return serialOptFunc(func(s *Serial) error {
		if d <= 0 {
			return errors.New("transport: flow timeout must be positive")
		}
		s.flowTimeout = d

		return nil
	})
}

// WithLogger sets the logger used for port events.
func WithLogger(l logger.Logger) SerialOption {
	return serialOptFunc(func(s *Serial) error {
		if l == nil {
			return errors.New("transport: logger must not be nil")
		}
		s.logger = l

		return nil
	})
}

// NewSerial creates a Serial port for the device name with the initial configuration cfg.
// The device is not opened until Open or Reconfigure is called.
func NewSerial(name string, cfg Config, opts ...SerialOption) (*Serial, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty device name", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Serial{
		name:        name,
		opener:      serial.Open,
		readTimeout: DefaultReadTimeout,
		flowTimeout: DefaultFlowTimeout,
		logger:      logger.GetLogger(),
		cfg:         cfg,
		buf:         make([]byte, DefaultReadBufSize),
	}

	for _, opt := range opts {
		if err := opt.apply(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Name returns the device name.
func (s *Serial) Name() string { return s.name }

// Config returns the active configuration.
func (s *Serial) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg
}

func (s *Serial) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.openLocked()
}

func (s *Serial) openLocked() error {
	if s.port != nil {
		return nil
	}

	port, err := s.opener(s.name, toMode(s.cfg))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransportOpen, s.name, err)
	}
	if err := port.SetReadTimeout(s.readTimeout); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: %s: set read timeout: %w", ErrTransportOpen, s.name, err)
	}

	// Probe each output line once. A driver that rejects it is reported as not
	// supporting the line.
	s.caps = Capabilities{
		SupportsRTS: port.SetRTS(s.cfg.RTSCTS) == nil,
		SupportsDTR: port.SetDTR(s.cfg.DSRDTR) == nil,
	}
	s.port = port

	s.logger.Debug("serial port opened", "port", s.name, "config", s.cfg.String(),
		"rts", s.caps.SupportsRTS, "dtr", s.caps.SupportsDTR)

	return nil
}

// Close restores RTS and DTR to inactive and closes the device. It is idempotent.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}

	port := s.port
	s.port = nil

	if s.caps.SupportsRTS {
		if err := port.SetRTS(false); err != nil {
			s.logger.Warn("failed to release RTS", "port", s.name, "error", err)
		}
	}
	if s.caps.SupportsDTR {
		if err := port.SetDTR(false); err != nil {
			s.logger.Warn("failed to release DTR", "port", s.name, "error", err)
		}
	}

	if err := port.Close(); err != nil {
		return fmt.Errorf("transport: close %s: %w", s.name, err)
	}
	s.logger.Debug("serial port closed", "port", s.name)

	return nil
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return 0, ErrPortClosed
	}

	if s.cfg.RTSCTS {
		if err := s.waitModemLocked("CTS", func(b *serial.ModemStatusBits) bool { return b.CTS }); err != nil {
			return 0, err
		}
	}
	if s.cfg.DSRDTR {
		if err := s.waitModemLocked("DSR", func(b *serial.ModemStatusBits) bool { return b.DSR }); err != nil {
			return 0, err
		}
	}

	n, err := s.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrTransportWrite, err)
	}
	if n < len(p) {
		return n, fmt.Errorf("%w: short write %d/%d", ErrTransportWrite, n, len(p))
	}
	if err := s.port.Drain(); err != nil {
		return n, fmt.Errorf("%w: drain: %w", ErrTransportWrite, err)
	}

	return n, nil
}

func (s *Serial) waitModemLocked(name string, ready func(*serial.ModemStatusBits) bool) error {
	deadline := time.Now().Add(s.flowTimeout)
	for {
		bits, err := s.port.GetModemStatusBits()
		if err != nil {
			return fmt.Errorf("%w: read %s: %w", ErrTransportWrite, name, err)
		}
		if ready(bits) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s not asserted within %v", ErrTransportWrite, name, s.flowTimeout)
		}
		time.Sleep(flowPollInterval)
	}
}

func (s *Serial) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil, ErrPortClosed
	}

	var out []byte
	for {
		n, err := s.port.Read(s.buf)
		if err != nil {
			return out, fmt.Errorf("%w: %w", ErrTransportRead, err)
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, s.buf[:n]...)
		if n < len(s.buf) {
			return out, nil
		}
	}
}

func (s *Serial) SetControlLine(line Line, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrPortClosed
	}
	if !s.caps.Supports(line) {
		return fmt.Errorf("%w: %s", ErrLineUnsupported, line)
	}

	var err error
	switch line {
	case LineRTS:
		err = s.port.SetRTS(active)
	case LineDTR:
		err = s.port.SetDTR(active)
	}
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrTransportWrite, line, err)
	}

	return nil
}

// Reconfigure applies cfg. A closed port is opened with cfg.
func (s *Serial) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportOpen, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		s.cfg = cfg
		return s.openLocked()
	}

	if err := s.port.SetMode(toMode(cfg)); err != nil {
		return fmt.Errorf("%w: %s: set mode %s: %w", ErrTransportOpen, s.name, cfg, err)
	}
	s.cfg = cfg

	if s.caps.SupportsRTS {
		_ = s.port.SetRTS(cfg.RTSCTS)
	}
	if s.caps.SupportsDTR {
		_ = s.port.SetDTR(cfg.DSRDTR)
	}

	s.logger.Debug("serial port reconfigured", "port", s.name, "config", cfg.String())

	return nil
}

func (s *Serial) ClearBuffers() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrPortClosed
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("%w: reset input: %w", ErrTransportOpen, err)
	}
	if err := s.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("%w: reset output: %w", ErrTransportOpen, err)
	}

	return nil
}

func (s *Serial) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.caps
}

func toMode(cfg Config) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: DataBits,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: cfg.RTSCTS,
			DTR: cfg.DSRDTR,
		},
	}

	switch cfg.Parity {
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	switch cfg.StopBits {
	case StopBits1Half:
		mode.StopBits = serial.OnePointFiveStopBits
	case StopBits2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}

	return mode
}

// PortInfo describes a serial device found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts returns the serial devices present on the host.
//
// USB details are included when the platform enumerator supports them; otherwise
// only names are reported.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		out := make([]PortInfo, 0, len(details))
		for _, d := range details {
			out = append(out, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}

		return out, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}
	out := make([]PortInfo, 0, len(names))
	for _, name := range names {
		out = append(out, PortInfo{Name: name})
	}

	return out, nil
}
