package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()

	assert.Equal(t, []string{CmdAltInit, CmdHeartbeat, CmdInit, CmdSync}, tbl.Names())

	sync, ok := tbl.Command(CmdSync)
	require.True(t, ok)
	assert.Equal(t, MarkerProbe, sync.Kind)
	assert.Equal(t, []byte{StartMarker}, sync.Wire)

	for _, name := range []string{CmdInit, CmdAltInit, CmdHeartbeat} {
		c, ok := tbl.Command(name)
		require.True(t, ok, name)
		assert.Equal(t, Framed, c.Kind, name)
		_, err := Encode(c.Wire)
		assert.NoError(t, err, name)
	}

	hb, _ := tbl.Command(CmdHeartbeat)
	assert.Len(t, hb.Wire, 25)

	_, ok = tbl.Expected(CmdAltInit)
	assert.False(t, ok, "alternate-initialization has no expected response")

	exp, ok := tbl.Expected(CmdHeartbeat)
	require.True(t, ok)
	assert.Equal(t, MustParseHex("3C C0 5C 80 5C C0 5C CA 2A 5C 5C 60 5C E2 7C"), exp)
}

func TestTable_ReturnsCopies(t *testing.T) {
	tbl := DefaultTable()

	c, _ := tbl.Command(CmdInit)
	c.Wire[0] = 0x00
	again, _ := tbl.Command(CmdInit)
	assert.Equal(t, StartMarker, again.Wire[0])

	exp, _ := tbl.Expected(CmdSync)
	exp[0] = 0x00
	again2, _ := tbl.Expected(CmdSync)
	assert.Equal(t, StartMarker, again2[0])
}

func TestNewTable_Validation(t *testing.T) {
	_, err := NewTable([]Command{{Name: "bad", Kind: Framed, Wire: []byte{0x3C, 0x80}}}, nil)
	require.ErrorIs(t, err, ErrMalformedTemplate)

	_, err = NewTable([]Command{{Name: "probe", Kind: MarkerProbe, Wire: []byte{0x7C}}}, nil)
	require.ErrorIs(t, err, ErrMalformedTemplate)

	_, err = NewTable([]Command{{Kind: MarkerProbe, Wire: []byte{0x3C}}}, nil)
	require.ErrorIs(t, err, ErrMalformedTemplate)

	dup := Command{Name: "x", Kind: MarkerProbe, Wire: []byte{0x3C}}
	_, err = NewTable([]Command{dup, dup}, nil)
	require.Error(t, err)

	_, err = NewTable([]Command{dup}, map[string][]byte{"y": {0x3C}})
	require.Error(t, err)

	assert.Panics(t, func() {
		MustTable([]Command{{Name: "bad", Kind: Framed, Wire: []byte{0x00}}}, nil)
	})
}

func TestTable_With(t *testing.T) {
	base := DefaultTable()
	custom := Command{Name: CmdHeartbeat, Kind: Framed, Wire: []byte{0x3C, 0x01, 0x7C}}
	extra := Command{Name: "probe", Kind: MarkerProbe, Wire: []byte{0x3C, 0x3C}}

	tbl, err := base.With([]Command{custom, extra}, map[string][]byte{CmdHeartbeat: {0x3C, 0x02, 0x7C}})
	require.NoError(t, err)

	hb, ok := tbl.Command(CmdHeartbeat)
	require.True(t, ok)
	assert.Equal(t, custom.Wire, hb.Wire)

	exp, _ := tbl.Expected(CmdHeartbeat)
	assert.Equal(t, []byte{0x3C, 0x02, 0x7C}, exp)

	_, ok = tbl.Command("probe")
	assert.True(t, ok)

	// the base table is untouched
	orig, _ := base.Command(CmdHeartbeat)
	assert.Len(t, orig.Wire, 25)

	_, err = base.With([]Command{{Name: CmdInit, Kind: Framed, Wire: []byte{0x3C}}}, nil)
	require.ErrorIs(t, err, ErrMalformedTemplate)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "framed", Framed.String())
	assert.Equal(t, "marker-probe", MarkerProbe.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
