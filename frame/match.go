package frame

import (
	"fmt"
	"strings"
)

// MatchResult is the structured diff between a received frame and an expectation.
//
// It is diagnostic only. A frame that does not match is still evidence that the
// device is alive.
type MatchResult struct {
	Equal          bool
	LengthActual   int
	LengthExpected int
	// DiffPositions lists every index below min(LengthActual, LengthExpected)
	// where the bytes differ.
	DiffPositions []int
}

// LengthMismatch reports whether the two sequences have different lengths.
func (m MatchResult) LengthMismatch() bool {
	return m.LengthActual != m.LengthExpected
}

// String returns a one-line summary such as "mismatch len 3/3 diff [1]".
func (m MatchResult) String() string {
	if m.Equal {
		return fmt.Sprintf("match len %d", m.LengthActual)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "mismatch len %d/%d", m.LengthActual, m.LengthExpected)
	if len(m.DiffPositions) > 0 {
		fmt.Fprintf(&sb, " diff %v", m.DiffPositions)
	}

	return sb.String()
}

// Compare diffs actual.Raw against expected byte by byte.
//
// A length mismatch does not stop the positional comparison.
func Compare(actual Frame, expected []byte) MatchResult {
	res := MatchResult{
		LengthActual:   len(actual.Raw),
		LengthExpected: len(expected),
	}

	n := min(res.LengthActual, res.LengthExpected)
	for i := 0; i < n; i++ {
		if actual.Raw[i] != expected[i] {
			res.DiffPositions = append(res.DiffPositions, i)
		}
	}
	res.Equal = len(res.DiffPositions) == 0 && !res.LengthMismatch()

	return res
}
