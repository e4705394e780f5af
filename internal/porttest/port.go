// Package porttest provides a scriptable in-memory transport.Port for tests.
//
// Bytes written to the Port accumulate until the next ReadAvailable call. At
// that point the Responder sees them as one Exchange and its reply becomes
// readable. This matches how the handshake engine drives a port: a complete
// send followed by a receive.
package porttest

import (
	"fmt"
	"sync"

	"github.com/arloliu/go-ptu/transport"
)

// Exchange is what a Responder sees when deciding on a reply.
type Exchange struct {
	// Tx holds every byte written since the previous exchange.
	Tx []byte
	// Config is the transport configuration active when the bytes were written.
	Config transport.Config
	// Pulses counts completed active-to-inactive pulses per line since the port was created.
	Pulses map[transport.Line]int
	// Seq is the 1-based exchange number.
	Seq int
}

// Responder decides what the simulated device sends back. A nil reply means silence.
type Responder func(ex Exchange) []byte

// Silent never answers.
func Silent(Exchange) []byte { return nil }

// LineEvent records one SetControlLine call.
type LineEvent struct {
	Line   transport.Line
	Active bool
}

// Port is a scriptable transport.Port. It starts open.
type Port struct {
	mu sync.Mutex

	respond Responder
	caps    transport.Capabilities
	cfg     transport.Config
	open    bool

	pending   []byte
	input     []byte
	written   []byte
	writes    int
	exchanges []Exchange

	lines      map[transport.Line]bool
	pulses     map[transport.Line]int
	lineEvents []LineEvent

	configs []transport.Config
	clears  int
	closes  int

	failWriteAt    int
	failWriteErr   error
	lineCalls      int
	failLineAt     int
	failLineErr    error
	reconfigureErr func(transport.Config) error
	clearErr       error
	readErr        error
}

var _ transport.Port = (*Port)(nil)

// New returns an open Port that answers through respond. Both control lines are supported.
func New(respond Responder) *Port {
	if respond == nil {
		respond = Silent
	}

	return &Port{
		respond: respond,
		caps:    transport.Capabilities{SupportsRTS: true, SupportsDTR: true},
		cfg:     transport.Config{Baud: 9600},
		open:    true,
		lines:   make(map[transport.Line]bool),
		pulses:  make(map[transport.Line]int),
	}
}

// SetCapabilities replaces the capability descriptor.
func (p *Port) SetCapabilities(c transport.Capabilities) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.caps = c
}

// FailWriteAt makes the n-th Write call (1-based) fail with err wrapped in ErrTransportWrite.
func (p *Port) FailWriteAt(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWriteAt = n
	p.failWriteErr = err
}

// FailLineAt makes the n-th SetControlLine call (1-based) fail with err. The
// line level is left unchanged by the failed call.
func (p *Port) FailLineAt(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failLineAt = n
	p.failLineErr = err
}

// FailReconfigure installs a hook that may reject a configuration.
func (p *Port) FailReconfigure(fn func(transport.Config) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconfigureErr = fn
}

// FailClear makes ClearBuffers fail with err wrapped in ErrTransportOpen.
func (p *Port) FailClear(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearErr = err
}

// FailRead makes every ReadAvailable call fail with err wrapped in ErrTransportRead.
func (p *Port) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// Feed queues unsolicited device bytes.
func (p *Port) Feed(b ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input = append(p.input, b...)
}

func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = true

	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	p.closes++
	for line := range p.lines {
		p.lines[line] = false
	}

	return nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return 0, transport.ErrPortClosed
	}
	p.writes++
	if p.failWriteAt > 0 && p.writes == p.failWriteAt {
		return 0, fmt.Errorf("%w: %w", transport.ErrTransportWrite, p.failWriteErr)
	}

	p.pending = append(p.pending, b...)
	p.written = append(p.written, b...)

	return len(b), nil
}

func (p *Port) ReadAvailable() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil, transport.ErrPortClosed
	}
	if p.readErr != nil {
		return nil, fmt.Errorf("%w: %w", transport.ErrTransportRead, p.readErr)
	}

	if len(p.pending) > 0 {
		pulses := make(map[transport.Line]int, len(p.pulses))
		for k, v := range p.pulses {
			pulses[k] = v
		}
		ex := Exchange{
			Tx:     p.pending,
			Config: p.cfg,
			Pulses: pulses,
			Seq:    len(p.exchanges) + 1,
		}
		p.pending = nil
		p.exchanges = append(p.exchanges, ex)
		p.input = append(p.input, p.respond(ex)...)
	}

	out := p.input
	p.input = nil

	return out, nil
}

func (p *Port) SetControlLine(line transport.Line, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return transport.ErrPortClosed
	}
	if !p.caps.Supports(line) {
		return fmt.Errorf("%w: %s", transport.ErrLineUnsupported, line)
	}
	p.lineCalls++
	if p.failLineAt > 0 && p.lineCalls == p.failLineAt {
		return fmt.Errorf("set %s: %w", line, p.failLineErr)
	}

	if p.lines[line] && !active {
		p.pulses[line]++
	}
	p.lines[line] = active
	p.lineEvents = append(p.lineEvents, LineEvent{Line: line, Active: active})

	return nil
}

func (p *Port) Reconfigure(cfg transport.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reconfigureErr != nil {
		if err := p.reconfigureErr(cfg); err != nil {
			return fmt.Errorf("%w: %w", transport.ErrTransportOpen, err)
		}
	}
	p.open = true
	p.cfg = cfg
	p.configs = append(p.configs, cfg)

	return nil
}

func (p *Port) ClearBuffers() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clearErr != nil {
		return fmt.Errorf("%w: %w", transport.ErrTransportOpen, p.clearErr)
	}
	p.clears++
	p.pending = nil
	p.input = nil

	return nil
}

func (p *Port) Capabilities() transport.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.caps
}

// Written returns every byte successfully written, in order.
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.written...)
}

// Exchanges returns the exchanges seen so far.
func (p *Port) Exchanges() []Exchange {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Exchange(nil), p.exchanges...)
}

// LineEvents returns every SetControlLine call in order.
func (p *Port) LineEvents() []LineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]LineEvent(nil), p.lineEvents...)
}

// Line reports the current level of line.
func (p *Port) Line(line transport.Line) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lines[line]
}

// Configs returns every configuration applied through Reconfigure.
func (p *Port) Configs() []transport.Config {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]transport.Config(nil), p.configs...)
}

// Clears returns the number of successful ClearBuffers calls.
func (p *Port) Clears() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.clears
}

// Closes returns how many times an open port was closed.
func (p *Port) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closes
}
