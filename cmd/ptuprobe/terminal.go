package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/internal/pace"
	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/transport"
)

// defaultSeqGap separates the init and heartbeat of the "seq" terminal command.
const defaultSeqGap = 2 * time.Second

type termKind uint8

const (
	termNone termKind = iota
	termSend
	termRaw
	termClear
	termStatus
	termSeq
	termHelp
	termQuit
)

type termCmd struct {
	kind  termKind
	name  string
	bytes []byte
}

var termAliases = map[string]string{
	"sync":     frame.CmdSync,
	"init":     frame.CmdInit,
	"alt_init": frame.CmdAltInit,
	"alt":      frame.CmdAltInit,
	"hb":       frame.CmdHeartbeat,
}

var errTermQuit = errors.New("quit")

// parseTerminalLine parses one line typed at the monitor prompt.
func parseTerminalLine(line string, table *frame.Table) (termCmd, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return termCmd{kind: termNone}, nil
	}

	word := strings.ToLower(fields[0])
	switch word {
	case "q", "quit", "exit":
		return termCmd{kind: termQuit}, nil
	case "help", "?":
		return termCmd{kind: termHelp}, nil
	case "clear":
		return termCmd{kind: termClear}, nil
	case "status":
		return termCmd{kind: termStatus}, nil
	case "seq":
		return termCmd{kind: termSeq}, nil
	case "byte":
		if len(fields) != 2 {
			return termCmd{}, fmt.Errorf("usage: byte XX")
		}
		b, err := frame.ParseHex(fields[1])
		if err != nil {
			return termCmd{}, err
		}
		if len(b) != 1 {
			return termCmd{}, fmt.Errorf("byte takes exactly one byte, got %d", len(b))
		}
		return termCmd{kind: termRaw, name: "byte", bytes: b}, nil
	case "send":
		if len(fields) != 2 {
			return termCmd{}, fmt.Errorf("usage: send <command>")
		}
		if _, ok := table.Command(fields[1]); !ok {
			return termCmd{}, fmt.Errorf("unknown command %q", fields[1])
		}
		return termCmd{kind: termSend, name: fields[1]}, nil
	}

	if name, ok := termAliases[word]; ok && len(fields) == 1 {
		return termCmd{kind: termSend, name: name}, nil
	}

	b, err := frame.ParseHex(line)
	if err != nil {
		return termCmd{}, fmt.Errorf("not a command or hex bytes: %q", strings.TrimSpace(line))
	}

	return termCmd{kind: termRaw, name: "raw", bytes: b}, nil
}

const terminalHelp = `Commands:
  init, alt_init, hb, sync   send a captured command with paced timing
  send <command>             send any command from the table
  byte XX                    send one raw byte
  3C 80 ...                  send raw hex bytes in one write
  seq                        init, pause, heartbeat
  clear                      clear port buffers and the receive buffer
  status                     show counters and the decoded receive buffer
  q, quit, exit              leave the terminal
`

// terminal is the interactive hex terminal behind the monitor command.
// Received bytes are printed by a background Monitor as they arrive.
type terminal struct {
	port    *transport.Shared
	cfg     *probe.Config
	log     *probe.Log
	metrics *probe.Metrics
	sender  *probe.Sender
	monitor *probe.Monitor
	seqGap  time.Duration

	outMu sync.Mutex
	out   io.Writer
}

func newTerminal(port transport.Port, cfg *probe.Config, out io.Writer) *terminal {
	shared := transport.NewShared(port)
	log := probe.NewLog()
	metrics := &probe.Metrics{}

	return &terminal{
		port:    shared,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		sender:  probe.NewSender(shared, cfg, log, metrics),
		monitor: probe.NewMonitor(shared, cfg, log),
		seqGap:  defaultSeqGap,
		out:     out,
	}
}

func (t *terminal) printf(format string, args ...any) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

// Run starts the monitor and executes lines from in until quit, end of input,
// or ctx is done.
func (t *terminal) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe := t.monitor.Subscribe(func(c probe.Chunk) {
		t.printf("%s\n", rxStyle.Render(fmt.Sprintf("RX %s  %s", c.Time.Format("15:04:05.000"), frame.FormatHex(c.Bytes))))
	})
	defer unsubscribe()

	monErr := make(chan error, 1)
	go func() { monErr <- t.monitor.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	t.printf("%s", dimStyle.Render("Type help for commands.")+"\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-monErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := t.exec(ctx, line)
			if errors.Is(err, errTermQuit) {
				return nil
			}
			if err != nil {
				if errors.Is(err, transport.ErrTransportWrite) || errors.Is(err, transport.ErrTransportOpen) {
					return err
				}
				t.printf("%s\n", lipglossError(err))
			}
		}
	}
}

func (t *terminal) exec(ctx context.Context, line string) error {
	cmd, err := parseTerminalLine(line, t.cfg.Table())
	if err != nil {
		return err
	}

	switch cmd.kind {
	case termNone:
		return nil
	case termQuit:
		return errTermQuit
	case termHelp:
		t.printf("%s", terminalHelp)
		return nil
	case termSend:
		return t.send(ctx, cmd.name)
	case termRaw:
		id := t.log.NextExchange()
		if err := t.sender.SendRaw(id, cmd.name, cmd.bytes); err != nil {
			return err
		}
		t.printf("%s\n", txStyle.Render("TX "+frame.FormatHex(cmd.bytes)))
		return nil
	case termClear:
		if err := t.port.ClearBuffers(); err != nil {
			return err
		}
		t.monitor.Reset()
		t.printf("%s\n", dimStyle.Render("buffers cleared"))
		return nil
	case termStatus:
		t.status()
		return nil
	case termSeq:
		if err := t.send(ctx, frame.CmdInit); err != nil {
			return err
		}
		if err := pace.Sleep(ctx, t.seqGap); err != nil {
			return nil
		}
		return t.send(ctx, frame.CmdHeartbeat)
	}

	return nil
}

func (t *terminal) send(ctx context.Context, name string) error {
	c, ok := t.cfg.Table().Command(name)
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	id := t.log.NextExchange()
	if err := t.sender.Send(ctx, id, c.Name, c.Wire, probe.SendOptions{}); err != nil {
		return err
	}
	t.printf("%s\n", txStyle.Render(fmt.Sprintf("TX %s: %s", c.Name, frame.FormatHex(c.Wire))))

	return nil
}

func (t *terminal) status() {
	st := t.monitor.Stats()
	m := t.metrics.Snapshot()
	buf := t.monitor.Frame()

	t.printf("polls %d (skipped %d), %d byte(s) received\n", st.Polls, st.Skipped, st.Bytes)
	t.printf("sent %d frame(s), %d byte(s)\n", m.FramesSent, m.BytesSent)
	if buf.Empty() {
		t.printf("receive buffer empty\n")
		return
	}
	t.printf("receive buffer: %s\n", buf.String())
}

func lipglossError(err error) string {
	return errorStyle.Render("error: " + err.Error())
}
