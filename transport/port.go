package transport

import "errors"

var (
	// ErrTransportOpen indicates the line could not be acquired or configured.
	// The sweep skips the current candidate when it sees this error.
	ErrTransportOpen = errors.New("transport: open failed")

	// ErrTransportWrite indicates a hardware or OS write failure.
	// It ends the current handshake attempt.
	ErrTransportWrite = errors.New("transport: write failed")

	// ErrTransportRead indicates a hardware or OS read failure.
	ErrTransportRead = errors.New("transport: read failed")

	// ErrPortClosed is returned by operations on a port that is not open.
	ErrPortClosed = errors.New("transport: port closed")

	// ErrLineUnsupported is returned when setting a control line the port cannot drive.
	ErrLineUnsupported = errors.New("transport: control line unsupported")
)

// Line names a modem control output line.
type Line uint8

const (
	LineRTS Line = iota
	LineDTR
)

// String returns "RTS" or "DTR".
func (l Line) String() string {
	switch l {
	case LineRTS:
		return "RTS"
	case LineDTR:
		return "DTR"
	default:
		return "unknown"
	}
}

// Capabilities describes the optional features of a port.
// It is determined once when the port is opened.
type Capabilities struct {
	SupportsRTS bool
	SupportsDTR bool
}

// Supports reports whether l can be driven.
func (c Capabilities) Supports(l Line) bool {
	switch l {
	case LineRTS:
		return c.SupportsRTS
	case LineDTR:
		return c.SupportsDTR
	default:
		return false
	}
}

// Reader is the non-blocking drain primitive shared by the frame receiver and the monitor.
type Reader interface {
	// ReadAvailable returns every byte currently buffered, or an empty slice
	// when nothing is pending. It never waits for data to arrive.
	ReadAvailable() ([]byte, error)
}

// Port is the byte-level transport the handshake engine drives.
//
// Implementations need not be safe for concurrent use; wrap them in a Shared
// when a monitor runs alongside operator sends.
type Port interface {
	Reader

	// Open acquires the line. Opening an open port is a no-op.
	Open() error
	// Close releases the line, restoring control lines to inactive. It is idempotent.
	Close() error
	// Write places p on the wire and returns the number of bytes written.
	Write(p []byte) (int, error)
	// SetControlLine drives an output control line.
	SetControlLine(line Line, active bool) error
	// Reconfigure applies new transport parameters, opening the port if needed.
	Reconfigure(cfg Config) error
	// ClearBuffers discards pending input and output.
	ClearBuffers() error
	// Capabilities reports the optional features of the open port.
	Capabilities() Capabilities
}
