package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_SingleDiff(t *testing.T) {
	actual := Frame{Raw: []byte{0x3C, 0x80, 0x5C}}
	res := Compare(actual, []byte{0x3C, 0x81, 0x5C})

	assert.False(t, res.Equal)
	assert.Equal(t, []int{1}, res.DiffPositions)
	assert.Equal(t, 3, res.LengthActual)
	assert.Equal(t, 3, res.LengthExpected)
	assert.False(t, res.LengthMismatch())
	assert.Equal(t, "mismatch len 3/3 diff [1]", res.String())
}

func TestCompare_Equal(t *testing.T) {
	expected := DefaultTable()
	want, ok := expected.Expected(CmdInit)
	assert.True(t, ok)

	res := Compare(Decode(want), want)
	assert.True(t, res.Equal)
	assert.Empty(t, res.DiffPositions)
	assert.Equal(t, "match len 15", res.String())
}

func TestCompare_LengthMismatchKeepsComparing(t *testing.T) {
	actual := Frame{Raw: []byte{0x3C, 0x00, 0x5C, 0x7C, 0x99}}
	res := Compare(actual, []byte{0x3C, 0x80, 0x5C})

	assert.False(t, res.Equal)
	assert.True(t, res.LengthMismatch())
	assert.Equal(t, []int{1}, res.DiffPositions)
	assert.Equal(t, 5, res.LengthActual)
	assert.Equal(t, 3, res.LengthExpected)
}

func TestCompare_PrefixIsNotEqual(t *testing.T) {
	res := Compare(Frame{Raw: []byte{0x3C}}, []byte{0x3C, 0x80})

	assert.False(t, res.Equal)
	assert.Empty(t, res.DiffPositions)
	assert.True(t, res.LengthMismatch())
}

func TestCompare_LengthSymmetry(t *testing.T) {
	raws := [][]byte{nil, {0x3C}, {0x3C, 0x80, 0x7C}, {0x01, 0x02, 0x03, 0x04}}
	exps := [][]byte{nil, {0x3C}, {0x3C, 0x81}, {0x3C, 0x80, 0x5C, 0x7C, 0x00}}

	for _, raw := range raws {
		for _, exp := range exps {
			res := Compare(Frame{Raw: raw}, exp)
			assert.Equal(t, len(raw), res.LengthActual)
			assert.Equal(t, len(exp), res.LengthExpected)
			for _, p := range res.DiffPositions {
				assert.Less(t, p, min(len(raw), len(exp)))
			}
		}
	}
}

func TestCompare_UsesRawNotCaptured(t *testing.T) {
	f := Decode([]byte{0xAA, 0x3C, 0x7C})
	res := Compare(f, []byte{0x3C, 0x7C})

	assert.True(t, res.Equal)
	assert.Equal(t, 2, res.LengthActual)
}
