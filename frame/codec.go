package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Wire markers.
const (
	// StartMarker opens every frame.
	StartMarker byte = 0x3C
	// EndMarker closes every frame.
	EndMarker byte = 0x7C
	// StructMarker separates control fields inside a frame body.
	StructMarker byte = 0x5C
)

// ErrMalformedTemplate is returned when command bytes violate the marker invariant.
var ErrMalformedTemplate = errors.New("frame: malformed template")

// Frame is one receive attempt's view of the wire.
//
// When Complete is true, Raw begins with StartMarker and ends with EndMarker, and
// Payload is Raw with both markers stripped. Bytes seen before the start marker
// are kept in Leading and bytes after the end marker in Trailing.
// When no start marker was seen, Raw holds every byte captured and Payload is empty.
type Frame struct {
	Payload  []byte
	Complete bool
	Raw      []byte
	Leading  []byte
	Trailing []byte
}

// Empty reports whether nothing at all was captured.
func (f Frame) Empty() bool {
	return len(f.Leading) == 0 && len(f.Raw) == 0 && len(f.Trailing) == 0
}

// HasStart reports whether a start marker was seen.
// Without a start marker Raw holds no 0x3C at all, so its first byte decides.
func (f Frame) HasStart() bool {
	return len(f.Raw) > 0 && f.Raw[0] == StartMarker
}

// Captured returns every byte observed on the wire, in order.
func (f Frame) Captured() []byte {
	out := make([]byte, 0, len(f.Leading)+len(f.Raw)+len(f.Trailing))
	out = append(out, f.Leading...)
	out = append(out, f.Raw...)
	out = append(out, f.Trailing...)

	return out
}

// String returns a short diagnostic representation.
func (f Frame) String() string {
	if f.Empty() {
		return "<no response>"
	}
	state := "partial"
	if f.Complete {
		state = "complete"
	}

	return fmt.Sprintf("%s frame [%d bytes] %s", state, len(f.Raw), FormatHex(f.Raw))
}

// Encode validates command bytes and returns them as wire bytes.
//
// The command table is stored pre-encoded, so Encode is the identity function
// guarded by the marker invariant: the first byte must be StartMarker and the
// last byte EndMarker.
func Encode(cmd []byte) ([]byte, error) {
	if len(cmd) < 2 {
		return nil, fmt.Errorf("%w: %d bytes, need at least start and end markers", ErrMalformedTemplate, len(cmd))
	}
	if cmd[0] != StartMarker {
		return nil, fmt.Errorf("%w: first byte 0x%02X, want 0x%02X", ErrMalformedTemplate, cmd[0], StartMarker)
	}
	if last := cmd[len(cmd)-1]; last != EndMarker {
		return nil, fmt.Errorf("%w: last byte 0x%02X, want 0x%02X", ErrMalformedTemplate, last, EndMarker)
	}

	return cloneBytes(cmd), nil
}

// Build wraps payload in start and end markers.
func Build(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, StartMarker)
	out = append(out, payload...)

	return append(out, EndMarker)
}

// Decode scans raw for the first start marker and the first end marker after it.
//
// Decode is pure: it never modifies raw and returns equal Frames for equal input.
func Decode(raw []byte) Frame {
	start := bytes.IndexByte(raw, StartMarker)
	if start < 0 {
		return Frame{Raw: cloneBytes(raw)}
	}

	f := Frame{Leading: cloneBytes(raw[:start])}

	end := bytes.IndexByte(raw[start+1:], EndMarker)
	if end < 0 {
		f.Raw = cloneBytes(raw[start:])
		f.Payload = cloneBytes(raw[start+1:])

		return f
	}
	end += start + 1

	f.Complete = true
	f.Raw = cloneBytes(raw[start : end+1])
	f.Payload = cloneBytes(raw[start+1 : end])
	f.Trailing = cloneBytes(raw[end+1:])

	return f
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)

	return out
}
