package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ptu/internal/porttest"
	"github.com/arloliu/go-ptu/transport"
)

// recordingPort wraps a porttest.Port and notes the time of every write.
type recordingPort struct {
	*porttest.Port
	writes []time.Time
}

func (p *recordingPort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, time.Now())
	return p.Port.Write(b)
}

func TestSender_BytewiseOrderAndLog(t *testing.T) {
	port := porttest.New(nil)
	cfg := newTestConfig(t)
	log := NewLog()
	metrics := &Metrics{}
	s := NewSender(port, cfg, log, metrics)

	wire := []byte{0x3C, 0x80, 0x5C, 0xC0, 0x7C}
	require.NoError(t, s.Send(context.Background(), 7, "test", wire, SendOptions{}))

	assert.Equal(t, wire, port.Written())

	recs := log.Records()
	require.Len(t, recs, len(wire), "one tx record per byte")
	for i, r := range recs {
		assert.Equal(t, Tx, r.Direction)
		assert.Equal(t, "test", r.Command)
		assert.Equal(t, 7, r.Exchange)
		assert.Equal(t, []byte{wire[i]}, r.Bytes)
	}

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.FramesSent)
	assert.EqualValues(t, len(wire), snap.BytesSent)
}

func TestSender_SegmentedDelays(t *testing.T) {
	port := &recordingPort{Port: porttest.New(nil)}
	cfg := newTestConfig(t,
		WithPostStartDelay(40*time.Millisecond),
		WithEscapeDelay(20*time.Millisecond),
		WithByteDelay(5*time.Millisecond),
		WithSettleDelay(30*time.Millisecond),
	)
	s := NewSender(port, cfg, NewLog(), nil)

	begin := time.Now()
	require.NoError(t, s.Send(context.Background(), 1, "test", []byte{0x3C, 0x5C, 0x80, 0x7C}, SendOptions{}))
	elapsed := time.Since(begin)

	require.Len(t, port.writes, 4)
	// start marker is followed by the post-start delay
	assert.GreaterOrEqual(t, port.writes[1].Sub(port.writes[0]), 40*time.Millisecond)
	// structural marker is followed by the escape delay
	assert.GreaterOrEqual(t, port.writes[2].Sub(port.writes[1]), 20*time.Millisecond)
	// ordinary byte is followed by the uniform delay
	assert.GreaterOrEqual(t, port.writes[3].Sub(port.writes[2]), 5*time.Millisecond)
	// 40 + 20 + 5 + 5 after the last byte + 30 settle
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestSender_ByteDelayOverride(t *testing.T) {
	port := &recordingPort{Port: porttest.New(nil)}
	cfg := newTestConfig(t)
	s := NewSender(port, cfg, NewLog(), nil)

	require.NoError(t, s.Send(context.Background(), 1, "slow", []byte{0x3C, 0x80, 0x5C, 0x7C},
		SendOptions{ByteDelay: 15 * time.Millisecond}))

	require.Len(t, port.writes, 4)
	for i := 1; i < len(port.writes); i++ {
		assert.GreaterOrEqual(t, port.writes[i].Sub(port.writes[i-1]), 15*time.Millisecond)
	}
}

func TestSender_Block(t *testing.T) {
	port := porttest.New(nil)
	log := NewLog()
	s := NewSender(port, newTestConfig(t), log, nil)

	wire := []byte{0x3C, 0x80, 0x7C}
	require.NoError(t, s.Send(context.Background(), 1, "block", wire, SendOptions{Block: true}))

	recs := log.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, wire, recs[0].Bytes)

	// the configured pacing mode applies without an explicit option
	log2 := NewLog()
	s2 := NewSender(port, newTestConfig(t, WithPacing(PaceBlock)), log2, nil)
	require.NoError(t, s2.Send(context.Background(), 2, "block", wire, SendOptions{}))
	assert.Equal(t, 1, log2.Len())
}

func TestSender_WriteFailure(t *testing.T) {
	port := porttest.New(nil)
	port.FailWriteAt(3, errors.New("cable unplugged"))
	log := NewLog()
	metrics := &Metrics{}
	s := NewSender(port, newTestConfig(t), log, metrics)

	err := s.Send(context.Background(), 1, "init", []byte{0x3C, 0x80, 0x5C, 0xC0, 0x7C}, SendOptions{})
	require.ErrorIs(t, err, transport.ErrTransportWrite)
	assert.Contains(t, err.Error(), "cable unplugged")

	// only the bytes actually written are logged
	recs := log.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, []byte{0x3C, 0x80}, port.Written())
	assert.EqualValues(t, 0, metrics.Snapshot().FramesSent)
	assert.EqualValues(t, 2, metrics.Snapshot().BytesSent)
}

func TestSender_ClosedPortIsWriteError(t *testing.T) {
	port := porttest.New(nil)
	require.NoError(t, port.Close())
	s := NewSender(port, newTestConfig(t), NewLog(), nil)

	err := s.Send(context.Background(), 1, "sync", []byte{0x3C}, SendOptions{})
	require.ErrorIs(t, err, transport.ErrTransportWrite)
	require.ErrorIs(t, err, transport.ErrPortClosed)
}

func TestSender_Cancelled(t *testing.T) {
	port := porttest.New(nil)
	s := NewSender(port, newTestConfig(t, WithPostStartDelay(time.Second)), NewLog(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	begin := time.Now()
	err := s.Send(ctx, 1, "init", []byte{0x3C, 0x80, 0x7C}, SendOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
	assert.Equal(t, []byte{0x3C}, port.Written())
}

func TestSender_SendRaw(t *testing.T) {
	port := porttest.New(nil)
	log := NewLog()
	s := NewSender(port, newTestConfig(t), log, nil)

	require.NoError(t, s.SendRaw(4, "wake-nul", []byte{0x00}))
	recs := log.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 4, recs[0].Exchange)
	assert.Equal(t, []byte{0x00}, port.Written())
}
