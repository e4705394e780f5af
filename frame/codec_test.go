package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	require := require.New(t)

	wire := []byte{0x3C, 0x80, 0x5C, 0x7C}
	got, err := Encode(wire)
	require.NoError(err)
	require.Equal(wire, got)

	got[1] = 0xFF
	require.Equal(byte(0x80), wire[1], "Encode must return a copy")

	tests := []struct {
		desc string
		in   []byte
	}{
		{"empty", nil},
		{"start only", []byte{0x3C}},
		{"missing start", []byte{0x80, 0x7C}},
		{"missing end", []byte{0x3C, 0x80}},
	}
	for _, tt := range tests {
		_, err := Encode(tt.in)
		require.ErrorIs(err, ErrMalformedTemplate, tt.desc)
	}
}

func TestDecode_Complete(t *testing.T) {
	f := Decode([]byte{0x3C, 0x80, 0x5C, 0xC0, 0x7C})

	assert.True(t, f.Complete)
	assert.True(t, f.HasStart())
	assert.Equal(t, []byte{0x80, 0x5C, 0xC0}, f.Payload)
	assert.Equal(t, []byte{0x3C, 0x80, 0x5C, 0xC0, 0x7C}, f.Raw)
	assert.Empty(t, f.Leading)
	assert.Empty(t, f.Trailing)
}

func TestDecode_LeadingAndTrailing(t *testing.T) {
	raw := []byte{0x00, 0xFF, 0x3C, 0x80, 0x7C, 0x3C, 0x11}
	f := Decode(raw)

	assert.True(t, f.Complete)
	assert.Equal(t, []byte{0x00, 0xFF}, f.Leading)
	assert.Equal(t, []byte{0x3C, 0x80, 0x7C}, f.Raw)
	assert.Equal(t, []byte{0x80}, f.Payload)
	assert.Equal(t, []byte{0x3C, 0x11}, f.Trailing)
	assert.Equal(t, raw, f.Captured())
}

func TestDecode_Partial(t *testing.T) {
	f := Decode([]byte{0x01, 0x3C, 0x80, 0x5C})

	assert.False(t, f.Complete)
	assert.True(t, f.HasStart())
	assert.Equal(t, []byte{0x80, 0x5C}, f.Payload)
	assert.Equal(t, []byte{0x3C, 0x80, 0x5C}, f.Raw)
	assert.Equal(t, []byte{0x01}, f.Leading)
}

func TestDecode_EndBeforeStartIgnored(t *testing.T) {
	f := Decode([]byte{0x7C, 0x3C, 0x80})

	assert.False(t, f.Complete)
	assert.Equal(t, []byte{0x80}, f.Payload)
	assert.Equal(t, []byte{0x7C}, f.Leading)
}

func TestDecode_NoStartMarker(t *testing.T) {
	raw := []byte{0x00, 0x80, 0x7C}
	f := Decode(raw)

	assert.False(t, f.Complete)
	assert.False(t, f.HasStart())
	assert.Empty(t, f.Payload)
	assert.Equal(t, raw, f.Raw)
	assert.False(t, f.Empty())
}

func TestDecode_Empty(t *testing.T) {
	f := Decode(nil)

	assert.True(t, f.Empty())
	assert.False(t, f.Complete)
	assert.Empty(t, f.Payload)
	assert.Equal(t, "<no response>", f.String())
}

func TestDecode_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x80},
		{0x80, 0x5C, 0xC0, 0x5C, 0x70},
		{0x00, 0xFF, 0x5C, 0x5C},
	}

	// every byte value except the two markers
	all := make([]byte, 0, 254)
	for b := 0; b < 256; b++ {
		if byte(b) == StartMarker || byte(b) == EndMarker {
			continue
		}
		all = append(all, byte(b))
	}
	payloads = append(payloads, all)

	for _, p := range payloads {
		f := Decode(Build(p))
		require.True(t, f.Complete)
		require.True(t, bytes.Equal(p, f.Payload), "payload % X", p)
	}
}

func TestDecode_Idempotent(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0x3C},
		{0x11, 0x3C, 0x80, 0x7C, 0x22},
		{0x3C, 0x80, 0x5C},
		{0x80, 0x81},
	}

	for _, in := range inputs {
		orig := append([]byte(nil), in...)
		a := Decode(in)
		b := Decode(in)
		assert.Equal(t, a, b)
		assert.Equal(t, orig, in, "Decode must not modify its input")
	}
}

func TestFrameString(t *testing.T) {
	f := Decode([]byte{0x3C, 0x80, 0x7C})
	assert.Equal(t, "complete frame [3 bytes] 0x3C 0x80 0x7C", f.String())

	f = Decode([]byte{0x3C, 0x80})
	assert.Equal(t, "partial frame [2 bytes] 0x3C 0x80", f.String())
}

// --- hex helpers ---

func TestParseHex(t *testing.T) {
	want := []byte{0x3C, 0x80, 0x5C}

	for _, in := range []string{"0x3C 0x80 0x5C", "3C 80 5C", "3C805C", "3c,80,5c", " 0x3c, 0x80, 0x5c "} {
		got, err := ParseHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := ParseHex("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseHex("3C 8")
	require.Error(t, err)

	_, err = ParseHex("0x3C 0x100")
	require.Error(t, err)

	_, err = ParseHex("zz")
	require.Error(t, err)
}

func TestFormatHex(t *testing.T) {
	assert.Equal(t, "0x3C 0x80 0x0A", FormatHex([]byte{0x3C, 0x80, 0x0A}))
	assert.Equal(t, "", FormatHex(nil))

	b := []byte{0x3C, 0xC0, 0x5C, 0x7C}
	back, err := ParseHex(FormatHex(b))
	require.NoError(t, err)
	assert.Equal(t, b, back)
}
