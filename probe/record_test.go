package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendCopiesBytes(t *testing.T) {
	log := NewLog()
	b := []byte{0x3C}
	log.Append(Record{Direction: Tx, Command: "sync", Bytes: b, Exchange: 1})
	b[0] = 0x00

	recs := log.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, []byte{0x3C}, recs[0].Bytes)
	assert.False(t, recs[0].Timestamp.IsZero())
	assert.Equal(t, 1, log.Len())
}

func TestLog_NextExchange(t *testing.T) {
	log := NewLog()
	assert.Equal(t, 1, log.NextExchange())
	assert.Equal(t, 2, log.NextExchange())
}

func TestGroupExchanges(t *testing.T) {
	records := []Record{
		{Direction: Tx, Command: "heartbeat", Bytes: []byte{0x3C}, Exchange: 1},
		{Direction: Tx, Command: "heartbeat", Bytes: []byte{0x80}, Exchange: 1},
		{Direction: Rx, Command: "unsolicited", Bytes: []byte{0xFF}},
		{Direction: Rx, Command: "heartbeat", Bytes: []byte{0x3C, 0x7C}, Exchange: 1},
		{Direction: Tx, Command: "heartbeat", Bytes: []byte{0x3C}, Exchange: 2},
		{Direction: Tx, Command: "sync", Bytes: []byte{0x3C}, Exchange: 3},
		{Direction: Rx, Command: "sync", Bytes: []byte{0x3C}, Exchange: 3},
	}

	groups := GroupExchanges(records)
	require.Len(t, groups, 3)

	assert.Equal(t, ExchangeGroup{ID: 1, Command: "heartbeat", Tx: []byte{0x3C, 0x80}, Rx: []byte{0x3C, 0x7C}}, groups[0])
	assert.False(t, groups[1].Answered())
	assert.True(t, groups[2].Answered())

	assert.Equal(t, 1, CountAnswered(groups, "heartbeat"))
	assert.Equal(t, 1, CountAnswered(groups, "sync"))
	assert.Equal(t, 0, CountAnswered(groups, "initialization"))
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "tx", Tx.String())
	assert.Equal(t, "rx", Rx.String())
}
