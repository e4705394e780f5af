package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/sweep"
	"github.com/arloliu/go-ptu/transport"
)

func TestPromptGate(t *testing.T) {
	next := sweep.Group{Baud: 4800, Candidates: make([]transport.Config, 4)}
	finished := []sweep.Attempt{
		{Outcome: probe.StateDegraded},
		{Outcome: probe.StateFailed},
		{Outcome: probe.StateDegraded, Skipped: true},
	}

	var out bytes.Buffer
	gate := promptGate(strings.NewReader("y\nYES\n\nn\nmaybe\n"), &out)
	ctx := context.Background()

	assert.True(t, gate(ctx, finished, next))
	assert.True(t, gate(ctx, nil, next))
	assert.False(t, gate(ctx, nil, next), "empty answer defaults to no")
	assert.False(t, gate(ctx, nil, next))
	assert.False(t, gate(ctx, nil, next))
	assert.False(t, gate(ctx, nil, next), "end of input stops")

	assert.Contains(t, out.String(), "Continue with 4800 baud (4 candidate(s))? [y/N]")
	assert.Equal(t, 1, strings.Count(out.String(), "1 configuration(s) at the last baud rate"))
}

func TestPromptGate_Cancelled(t *testing.T) {
	var out bytes.Buffer
	gate := promptGate(strings.NewReader("y\n"), &out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, gate(ctx, nil, sweep.Group{Baud: 2400}))
	assert.Empty(t, out.String())
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd(&globalFlags{})

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"sweep", "handshake", "monitor", "verify", "ports"})

	sw, _, err := root.Find([]string{"sweep"})
	assert.NoError(t, err)
	assert.NotNil(t, sw.Flags().Lookup("bauds"))
	assert.NotNil(t, sw.Flags().Lookup("yes"))
	assert.Nil(t, sw.Flags().Lookup("parity"), "sweep picks framing itself")

	hs, _, err := root.Find([]string{"handshake"})
	assert.NoError(t, err)
	assert.NotNil(t, hs.Flags().Lookup("parity"))
}

func TestRun_RequiresPort(t *testing.T) {
	root := newRootCmd(&globalFlags{})
	root.SetArgs([]string{"handshake", "--log-level", "error"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	assert.ErrorContains(t, err, "--port is required")
}

func TestNewSweepPort_OpensOnFirstCandidate(t *testing.T) {
	var opened []int
	open := func(_ string, mode *serial.Mode) (serial.Port, error) {
		opened = append(opened, mode.BaudRate)
		return nil, errors.New("mode rejected")
	}

	first := transport.Config{Baud: 9600, RTSCTS: true}
	port, err := newSweepPort("/dev/ttyTEST", first, logger.Discard(), transport.WithOpener(open))
	require.NoError(t, err)
	assert.Empty(t, opened, "building the port does not open it")

	err = port.Reconfigure(first)
	require.ErrorIs(t, err, transport.ErrTransportOpen, "a rejected first candidate is skippable")
	assert.Equal(t, []int{9600}, opened)

	err = port.Reconfigure(transport.Config{Baud: 4800})
	require.ErrorIs(t, err, transport.ErrTransportOpen)
	assert.Equal(t, []int{9600, 4800}, opened, "each candidate retries the open")
	require.NoError(t, port.Close())
}
