package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/internal/porttest"
	"github.com/arloliu/go-ptu/transport"
)

func TestParseTerminalLine(t *testing.T) {
	table := frame.DefaultTable()

	tests := []struct {
		line string
		want termCmd
	}{
		{"", termCmd{kind: termNone}},
		{"   ", termCmd{kind: termNone}},
		{"q", termCmd{kind: termQuit}},
		{"EXIT", termCmd{kind: termQuit}},
		{"help", termCmd{kind: termHelp}},
		{"clear", termCmd{kind: termClear}},
		{"status", termCmd{kind: termStatus}},
		{"seq", termCmd{kind: termSeq}},
		{"init", termCmd{kind: termSend, name: frame.CmdInit}},
		{"alt_init", termCmd{kind: termSend, name: frame.CmdAltInit}},
		{"hb", termCmd{kind: termSend, name: frame.CmdHeartbeat}},
		{"send heartbeat", termCmd{kind: termSend, name: frame.CmdHeartbeat}},
		{"byte 3c", termCmd{kind: termRaw, name: "byte", bytes: []byte{0x3C}}},
		{"byte 0x80", termCmd{kind: termRaw, name: "byte", bytes: []byte{0x80}}},
		{"3C 80 7C", termCmd{kind: termRaw, name: "raw", bytes: []byte{0x3C, 0x80, 0x7C}}},
		{"0x3C,0x7C", termCmd{kind: termRaw, name: "raw", bytes: []byte{0x3C, 0x7C}}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseTerminalLine(tt.line, table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTerminalLine_Errors(t *testing.T) {
	table := frame.DefaultTable()

	for _, line := range []string{"byte", "byte 3C 80", "byte zz", "send", "send nope", "hello", "3C 8"} {
		_, err := parseTerminalLine(line, table)
		assert.Error(t, err, line)
	}
}

func TestTerminal_SendAndReceive(t *testing.T) {
	port := porttest.New(func(ex porttest.Exchange) []byte {
		if n := len(ex.Tx); n > 0 && ex.Tx[n-1] == frame.EndMarker {
			return []byte{0x3C, 0xAA, 0x7C}
		}
		return nil
	})

	out := &syncBuffer{}
	term := newTerminal(port, testProbeConfig(t), out)

	in, feed := io.Pipe()
	defer feed.Close()
	done := make(chan error, 1)
	go func() { done <- term.Run(context.Background(), in) }()

	_, err := io.WriteString(feed, "hb\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "0xAA") }, waitFor, 5*time.Millisecond)

	hb, _ := frame.DefaultTable().Command(frame.CmdHeartbeat)
	assert.Equal(t, hb.Wire, port.Written())

	_, err = io.WriteString(feed, "byte 5C\nstatus\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "receive buffer:") }, waitFor, 5*time.Millisecond)
	assert.Equal(t, append(append([]byte(nil), hb.Wire...), 0x5C), port.Written())

	_, err = io.WriteString(feed, "clear\nstatus\nq\n")
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, 1, port.Clears())
	assert.Contains(t, out.String(), "receive buffer empty")

	records := term.log.Records()
	require.NotEmpty(t, records)
	assert.Equal(t, frame.CmdHeartbeat, records[0].Command)
}

func TestTerminal_BadLineKeepsRunning(t *testing.T) {
	out := &syncBuffer{}
	term := newTerminal(porttest.New(nil), testProbeConfig(t), out)

	err := term.Run(context.Background(), strings.NewReader("bogus\nbyte 7C\n"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "error: not a command or hex bytes")
	assert.Contains(t, out.String(), "TX 0x7C")
}

func TestTerminal_WriteFailureEnds(t *testing.T) {
	port := porttest.New(nil)
	port.FailWriteAt(1, errors.New("unplugged"))
	term := newTerminal(port, testProbeConfig(t), &syncBuffer{})

	err := term.Run(context.Background(), strings.NewReader("3C\nq\n"))
	require.ErrorIs(t, err, transport.ErrTransportWrite)
}

func TestTerminal_CancelStops(t *testing.T) {
	term := newTerminal(porttest.New(nil), testProbeConfig(t), &syncBuffer{})

	in, _ := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- term.Run(ctx, in) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("terminal did not stop on cancel")
	}
}
