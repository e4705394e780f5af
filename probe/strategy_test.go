package probe

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/internal/porttest"
	"github.com/arloliu/go-ptu/transport"
)

func TestStepNames(t *testing.T) {
	names := StepNames()
	for _, want := range []string{
		StepPlainInit, StepAltInit, StepLineToggleInit, StepDirectHeartbeat,
		StepWakeNulInit, StepSlowInit, StepBlockInit, StepStartMarkerInit, StepSyncFlood,
	} {
		assert.Contains(t, names, want)
	}
	assert.IsNonDecreasing(t, names)

	s, ok := LookupStep(StepLineToggleInit)
	require.True(t, ok)
	assert.NotEmpty(t, s.Description)
	assert.NotNil(t, s.Run)
}

func TestRegisterStep_Rejects(t *testing.T) {
	require.Error(t, RegisterStep(Step{Name: "", Run: exchangeStep(frame.CmdInit, SendOptions{})}))
	require.Error(t, RegisterStep(Step{Name: "no-run"}))

	err := RegisterStep(Step{Name: StepPlainInit, Run: exchangeStep(frame.CmdInit, SendOptions{})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterStep_CustomStep(t *testing.T) {
	const name = "test-double-heartbeat"
	if _, ok := LookupStep(name); !ok {
		require.NoError(t, RegisterStep(Step{
			Name:        name,
			Description: "heartbeat twice",
			Run: func(ctx context.Context, h *Handshake) (frame.Frame, error) {
				if _, err := h.Exchange(ctx, frame.CmdHeartbeat, h.Config().InitTimeout(), SendOptions{}); err != nil {
					return frame.Frame{}, err
				}
				return h.Exchange(ctx, frame.CmdHeartbeat, h.Config().InitTimeout(), SendOptions{})
			},
		}))
	}

	hb := 0
	respond := func(ex porttest.Exchange) []byte {
		if !bytes.Equal(ex.Tx, wire(t, frame.CmdHeartbeat)) {
			return nil
		}
		hb++
		if hb < 2 {
			return nil
		}
		return expected(t, frame.CmdHeartbeat)
	}

	report, err := NewHandshake(porttest.New(respond), testTransport,
		newTestConfig(t, WithSyncAttempts(0), WithSteps(StepPlainInit, name), WithHeartbeatCount(1))).
		Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateReady, report.Outcome)
	assert.Equal(t, name, report.ReadyStep)
}

func TestStep_SlowInit(t *testing.T) {
	dev := newDevice().on(wire(t, frame.CmdInit), expected(t, frame.CmdInit))
	port := &recordingPort{Port: porttest.New(dev.respond)}

	report, err := NewHandshake(port, testTransport, newTestConfig(t,
		WithSyncAttempts(0),
		WithSteps(StepSlowInit),
		WithSlowByteDelay(4*time.Millisecond),
		WithHeartbeatCount(1),
	)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StepSlowInit, report.ReadyStep)

	n := len(wire(t, frame.CmdInit))
	require.GreaterOrEqual(t, len(port.writes), n)
	assert.GreaterOrEqual(t, port.writes[n-1].Sub(port.writes[0]), time.Duration(n-1)*4*time.Millisecond)
}

func TestStep_BlockInit(t *testing.T) {
	dev := newDevice().on(wire(t, frame.CmdInit), expected(t, frame.CmdInit))
	port := &recordingPort{Port: porttest.New(dev.respond)}

	report, err := NewHandshake(port, testTransport, newTestConfig(t,
		WithSyncAttempts(0),
		WithSteps(StepBlockInit),
		WithHeartbeatCount(1),
	)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StepBlockInit, report.ReadyStep)
	// one write for the whole init, then bytewise heartbeat
	assert.Len(t, port.writes, 1+len(wire(t, frame.CmdHeartbeat)))
}

func TestStep_StartMarkerInit(t *testing.T) {
	respond := func(ex porttest.Exchange) []byte {
		if bytes.Equal(ex.Tx, wire(t, frame.CmdSync)) && ex.Pulses[transport.LineDTR] > 0 {
			return []byte{frame.StartMarker}
		}
		return nil
	}
	port := porttest.New(respond)

	report, err := NewHandshake(port, testTransport, newTestConfig(t,
		WithSyncAttempts(0),
		WithSteps(StepStartMarkerInit),
		WithHeartbeatCount(1),
	)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StepStartMarkerInit, report.ReadyStep)
	assert.Zero(t, countTx(port, wire(t, frame.CmdInit)), "marker answer short-circuits the init")
	assert.Len(t, port.LineEvents(), 4)
}

func TestStep_StartMarkerFallsBackToInit(t *testing.T) {
	dev := newDevice().on(wire(t, frame.CmdInit), expected(t, frame.CmdInit))
	port := porttest.New(dev.respond)

	report, err := NewHandshake(port, testTransport, newTestConfig(t,
		WithSyncAttempts(0),
		WithSteps(StepStartMarkerInit),
		WithHeartbeatCount(1),
	)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDegraded, report.Outcome)
	assert.Equal(t, [][]byte{wire(t, frame.CmdSync), wire(t, frame.CmdInit), wire(t, frame.CmdHeartbeat)}, txSequence(port))
}

func TestStep_WakeNulInit(t *testing.T) {
	t.Run("device wakes on NUL", func(t *testing.T) {
		dev := newDevice().on([]byte{0x00, 0x00, 0x00}, []byte{0x3C, 0x00, 0x7C})
		port := porttest.New(dev.respond)

		report, err := NewHandshake(port, testTransport, newTestConfig(t,
			WithSyncAttempts(0),
			WithSteps(StepWakeNulInit),
			WithHeartbeatCount(1),
		)).Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, StepWakeNulInit, report.ReadyStep)
		assert.Zero(t, countTx(port, wire(t, frame.CmdInit)))
	})

	t.Run("init after wake", func(t *testing.T) {
		dev := newDevice().on(wire(t, frame.CmdInit), expected(t, frame.CmdInit))
		port := porttest.New(dev.respond)

		begin := time.Now()
		report, err := NewHandshake(port, testTransport, newTestConfig(t,
			WithSyncAttempts(0),
			WithSteps(StepWakeNulInit),
			WithHeartbeatCount(1),
		)).Run(context.Background())
		require.NoError(t, err)

		assert.GreaterOrEqual(t, time.Since(begin), wakeNulCount*wakeNulInterval)
		assert.Equal(t, StepWakeNulInit, report.ReadyStep)
		seq := txSequence(port)
		require.GreaterOrEqual(t, len(seq), 2)
		assert.Equal(t, []byte{0x00, 0x00, 0x00}, seq[0])
		assert.Equal(t, wire(t, frame.CmdInit), seq[1])

		groups := report.Exchanges()
		require.NotEmpty(t, groups)
		assert.Equal(t, "wake-nul", groups[0].Command)
	})
}

func TestStep_SyncFlood(t *testing.T) {
	if testing.Short() {
		t.Skip("sync flood takes two seconds")
	}

	flood := bytes.Repeat(wire(t, frame.CmdSync), syncFloodCount)
	dev := newDevice().on(flood, []byte{frame.StartMarker})
	port := porttest.New(dev.respond)

	report, err := NewHandshake(port, testTransport, newTestConfig(t,
		WithSyncAttempts(0),
		WithSteps(StepSyncFlood),
		WithHeartbeatCount(1),
	)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StepSyncFlood, report.ReadyStep)
	assert.Equal(t, flood, port.Written()[:syncFloodCount])

	groups := report.Exchanges()
	require.NotEmpty(t, groups)
	assert.Equal(t, flood, groups[0].Tx)
	assert.True(t, groups[0].Answered())
}

func TestStep_CancelledDuringPulse(t *testing.T) {
	port := porttest.New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	report, err := NewHandshake(port, testTransport, newTestConfig(t,
		WithSyncAttempts(0),
		WithSteps(StepLineToggleInit),
		WithPulseDuration(time.Second),
	)).Run(ctx)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, StateFailed, report.Outcome)
	assert.False(t, port.Line(transport.LineRTS))
	assert.False(t, port.Line(transport.LineDTR))
}
