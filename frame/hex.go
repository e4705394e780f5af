package frame

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseHex parses a captured byte sequence.
//
// Accepted notations are "0x3C 0x80 0x5C", "3C 80 5C", "3C805C" and comma
// separated variants of each.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", " "))
	if s == "" {
		return nil, nil
	}

	fields := strings.Fields(s)
	if strings.HasPrefix(strings.ToLower(fields[0]), "0x") {
		out := make([]byte, 0, len(fields))
		for _, f := range fields {
			v, err := strconv.ParseUint(f, 0, 8)
			if err != nil {
				return nil, fmt.Errorf("frame: invalid hex byte %q: %w", f, err)
			}
			out = append(out, byte(v))
		}

		return out, nil
	}

	out, err := hex.DecodeString(strings.Join(fields, ""))
	if err != nil {
		return nil, fmt.Errorf("frame: invalid hex string %q: %w", s, err)
	}

	return out, nil
}

// MustParseHex is like ParseHex but panics on error. It is meant for built-in tables.
func MustParseHex(s string) []byte {
	b, err := ParseHex(s)
	if err != nil {
		panic(err)
	}

	return b
}

// FormatHex renders b as "0x3C 0x80 0x5C".
func FormatHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(b) * 5)
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%02X", v)
	}

	return sb.String()
}
