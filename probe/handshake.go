package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/internal/pace"
	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/transport"
)

// EventKind classifies a handshake Event.
type EventKind uint8

const (
	EventSent EventKind = iota
	EventReceived
	EventNoResponse
	EventMatch
	EventStep
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventSent:
		return "sent"
	case EventReceived:
		return "received"
	case EventNoResponse:
		return "no-response"
	case EventMatch:
		return "match"
	case EventStep:
		return "step"
	default:
		return "unknown"
	}
}

// Event is emitted synchronously while a handshake runs.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Command  string
	Step     string
	Exchange int
	// Bytes holds the wire bytes of an EventSent.
	Bytes []byte
	// Frame holds the decoded reply of an EventReceived.
	Frame frame.Frame
	// Match holds the diff of an EventMatch.
	Match frame.MatchResult
}

// EventHandler receives handshake events. It must not block for long.
type EventHandler func(Event)

// MatchRecord is the diagnostic comparison of one reply with its expected response.
type MatchRecord struct {
	Command  string
	Exchange int
	Result   frame.MatchResult
}

// StepResult records one initialization step.
type StepResult struct {
	Name      string
	Responded bool
	Frame     frame.Frame
}

// Report summarizes one handshake attempt.
type Report struct {
	Outcome   State
	Transport transport.Config
	Reason    string

	// Stale holds bytes already waiting on the port before the first send.
	Stale []byte

	SyncAttempts int
	SyncAnswered bool

	Steps     []StepResult
	ReadyStep string

	HeartbeatsSent  int
	HeartbeatsAcked int

	Records []Record
	Matches []MatchRecord
	Metrics MetricsSnapshot

	Started  time.Time
	Duration time.Duration
}

// Succeeded reports whether the attempt ended in Ready.
func (r *Report) Succeeded() bool { return r.Outcome == StateReady }

// Exchanges groups the report's records by exchange.
func (r *Report) Exchanges() []ExchangeGroup { return GroupExchanges(r.Records) }

// Handshake runs one sync, initialize and heartbeat attempt against a port.
//
// A Handshake is single-use and not goroutine-safe.
type Handshake struct {
	port      transport.Port
	transport transport.Config
	cfg       *Config
	log       *Log
	sender    *Sender
	receiver  *Receiver
	metrics   *Metrics
	sm        *stateMachine
	logger    logger.Logger
	caps      transport.Capabilities
	held      transport.Reader

	eventHandlers []EventHandler
	report        Report
	used          bool
}

// NewHandshake creates a Handshake that drives port. tc is the transport
// configuration the port is already set to; it is recorded in the report.
func NewHandshake(port transport.Port, tc transport.Config, cfg *Config) *Handshake {
	l := cfg.GetLogger().With("config", tc.String())
	log := NewLog()
	metrics := &Metrics{}

	h := &Handshake{
		port:      port,
		transport: tc,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		sm:        newStateMachine(l),
		logger:    l,
	}
	h.sender = &Sender{port: port, cfg: cfg, log: log, metrics: metrics, logger: l}
	h.receiver = &Receiver{port: port, cfg: cfg, log: log, metrics: metrics, logger: l}

	return h
}

// OnStateChange adds a handler invoked after every state change.
func (h *Handshake) OnStateChange(handler StateChangeHandler) {
	h.sm.handlers = append(h.sm.handlers, handler)
}

// OnEvent adds a handler invoked for every send, receive and match.
func (h *Handshake) OnEvent(handler EventHandler) {
	h.eventHandlers = append(h.eventHandlers, handler)
}

// State returns the current state.
func (h *Handshake) State() State { return h.sm.state }

// Metrics returns the handshake's counters.
func (h *Handshake) Metrics() *Metrics { return h.metrics }

// Log returns the transaction log.
func (h *Handshake) Log() *Log { return h.log }

// Config returns the engine configuration.
func (h *Handshake) Config() *Config { return h.cfg }

// Capabilities returns the port capabilities captured when Run started.
func (h *Handshake) Capabilities() transport.Capabilities { return h.caps }

// Run performs the attempt and returns its report.
//
// Running out of initialization steps is not an error: the report's Outcome is
// Failed and Reason explains why. A transport failure ends the attempt in
// Failed and is returned. Cancellation ends the attempt in Failed with reason
// "aborted" and returns an error wrapping ErrAborted and ctx.Err(). Every
// Failed exit drives both control lines inactive.
func (h *Handshake) Run(ctx context.Context) (*Report, error) {
	if h.used {
		return nil, ErrHandshakeUsed
	}
	h.used = true

	h.report = Report{Transport: h.transport, Started: time.Now()}
	h.caps = h.port.Capabilities()
	h.drainStale()

	err := h.run(ctx)
	if err != nil {
		err = h.fail(err)
	}

	h.report.Outcome = h.sm.state
	h.report.Records = h.log.Records()
	h.report.Metrics = h.metrics.Snapshot()
	h.report.Duration = time.Since(h.report.Started)

	h.logger.Info("handshake finished", "outcome", h.report.Outcome.String(), "reason", h.report.Reason,
		"duration", h.report.Duration)

	report := h.report

	return &report, err
}

func (h *Handshake) run(ctx context.Context) error {
	if err := h.sm.transition(StateSyncing); err != nil {
		return err
	}
	if err := h.sync(ctx); err != nil {
		return err
	}

	if err := h.sm.transition(StateInitializing); err != nil {
		return err
	}
	responded, err := h.initialize(ctx)
	if err != nil {
		return err
	}
	if !responded {
		h.report.Reason = fmt.Sprintf("no frame after %d initialization strategies", len(h.report.Steps))
		return h.sm.transition(StateFailed)
	}

	if err := h.sm.transition(StateReady); err != nil {
		return err
	}
	if err := h.heartbeat(ctx); err != nil {
		return err
	}

	if h.report.HeartbeatsAcked == 0 {
		h.report.Reason = fmt.Sprintf("no heartbeat acknowledged (0/%d)", h.report.HeartbeatsSent)
		return h.sm.transition(StateDegraded)
	}
	h.report.Reason = fmt.Sprintf("ready after %s, %d/%d heartbeats acknowledged",
		h.report.ReadyStep, h.report.HeartbeatsAcked, h.report.HeartbeatsSent)

	return nil
}

// drainStale reads once before the first send so leftovers from an earlier
// session are logged instead of being taken for a reply. A read error here is
// left for the first receive to report.
func (h *Handshake) drainStale() {
	b, err := h.port.ReadAvailable()
	if err != nil {
		h.logger.Debug("stale drain failed", "error", err)
		return
	}
	if len(b) == 0 {
		return
	}

	h.report.Stale = b
	h.log.Append(Record{Direction: Rx, Command: CmdStale, Bytes: b})
	h.logger.Info("stale bytes before first send", "count", len(b), "bytes", frame.FormatHex(b))
}

// fail moves the attempt to Failed and classifies err.
// Control lines are released on every path; a pulse may have been cut short.
func (h *Handshake) fail(err error) error {
	h.releaseLines()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		h.report.Reason = "aborted"
		err = fmt.Errorf("%w: %w", ErrAborted, err)
	} else {
		h.report.Reason = err.Error()
	}

	if canTransition(h.sm.state, StateFailed) {
		_ = h.sm.transition(StateFailed)
	}
	h.logger.Warn("handshake failed", "state", h.sm.state.String(), "error", err)

	return err
}

// releaseLines drives every supported control line inactive.
func (h *Handshake) releaseLines() {
	for _, line := range []transport.Line{transport.LineRTS, transport.LineDTR} {
		if !h.caps.Supports(line) {
			continue
		}
		if err := h.port.SetControlLine(line, false); err != nil {
			h.logger.Warn("failed to release control line", "line", line.String(), "error", err)
		}
	}
}

func (h *Handshake) sync(ctx context.Context) error {
	n := h.cfg.SyncAttempts()
	for i := 1; i <= n; i++ {
		h.report.SyncAttempts = i

		f, err := h.Exchange(ctx, frame.CmdSync, h.cfg.SyncTimeout(), SendOptions{})
		if err != nil {
			return err
		}
		if !f.Empty() {
			h.report.SyncAnswered = true
			h.logger.Info("sync answered", "attempt", i)

			return nil
		}

		if i < n {
			if err := pace.Sleep(ctx, h.cfg.SyncPause()); err != nil {
				return err
			}
		}
	}

	if n > 0 {
		h.logger.Info("sync unanswered, continuing with initialization", "attempts", n)
	}

	return nil
}

func (h *Handshake) initialize(ctx context.Context) (bool, error) {
	for _, name := range h.cfg.Steps() {
		step, ok := lookupStep(name)
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrUnknownStep, name)
		}

		h.logger.Info("trying initialization step", "step", name)
		h.emit(Event{Kind: EventStep, Step: name})

		f, err := step.Run(ctx, h)
		h.report.Steps = append(h.report.Steps, StepResult{Name: name, Responded: !f.Empty(), Frame: f})
		if err != nil {
			return false, err
		}
		if !f.Empty() {
			h.report.ReadyStep = name
			h.logger.Info("device responded", "step", name, "frame", f.String())

			return true, nil
		}
	}

	return false, nil
}

func (h *Handshake) heartbeat(ctx context.Context) error {
	n := h.cfg.HeartbeatCount()
	for i := 1; i <= n; i++ {
		h.report.HeartbeatsSent = i

		f, err := h.Exchange(ctx, frame.CmdHeartbeat, h.cfg.HeartbeatTimeout(), SendOptions{})
		if err != nil {
			return err
		}
		if f.Empty() {
			h.metrics.incHeartbeatMissCount()
			h.logger.Warn("missed heartbeat", "beat", i, "of", n)
		} else {
			h.report.HeartbeatsAcked++
		}

		if i < n {
			if err := pace.Sleep(ctx, h.cfg.HeartbeatInterval()); err != nil {
				return err
			}
		}
	}

	return nil
}

// Exchange sends the named command and receives its reply within timeout.
//
// If the command table has an expected response for the command, the reply is
// compared with it and the result recorded. The comparison never affects the
// returned frame or error.
func (h *Handshake) Exchange(ctx context.Context, command string, timeout time.Duration, opts SendOptions) (frame.Frame, error) {
	cmd, ok := h.cfg.Table().Command(command)
	if !ok {
		return frame.Frame{}, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	release := h.HoldReads()
	defer release()

	id := h.log.NextExchange()
	if err := h.sender.Send(ctx, id, cmd.Name, cmd.Wire, opts); err != nil {
		return frame.Frame{}, err
	}
	h.emit(Event{Kind: EventSent, Command: cmd.Name, Exchange: id, Bytes: cmd.Wire})

	return h.Listen(ctx, id, cmd.Name, timeout)
}

// HoldReads takes an exclusive read lease on a port that grants one and keeps
// it until the returned func is called. Listen reads through the held lease,
// so a reply to bytes sent while holding it cannot be drained by a concurrent
// monitor. Nested calls and ports without leases get a no-op release.
func (h *Handshake) HoldReads() (release func()) {
	if h.held != nil {
		return func() {}
	}
	leaser, ok := h.port.(transport.ReadLeaser)
	if !ok {
		return func() {}
	}

	lease := leaser.LeaseRead()
	h.held = lease

	return func() {
		if h.held == lease {
			h.held = nil
		}
		lease.Release()
	}
}

// Listen receives a reply for an exchange that was already sent.
func (h *Handshake) Listen(ctx context.Context, exchange int, command string, timeout time.Duration) (frame.Frame, error) {
	ropts := ReceiveOptions{
		Timeout:   timeout,
		ExpectEnd: true,
		Command:   command,
		Exchange:  exchange,
	}

	var (
		f   frame.Frame
		err error
	)
	if h.held != nil {
		f, err = h.receiver.ReceiveFrom(ctx, h.held, ropts)
	} else {
		f, err = h.receiver.Receive(ctx, ropts)
	}
	if err != nil {
		return f, err
	}

	if f.Empty() {
		h.emit(Event{Kind: EventNoResponse, Command: command, Exchange: exchange})
	} else {
		h.emit(Event{Kind: EventReceived, Command: command, Exchange: exchange, Frame: f})
	}

	if expected, ok := h.cfg.Table().Expected(command); ok {
		res := frame.Compare(f, expected)
		h.metrics.incMatch(res.Equal)
		h.report.Matches = append(h.report.Matches, MatchRecord{Command: command, Exchange: exchange, Result: res})
		h.emit(Event{Kind: EventMatch, Command: command, Exchange: exchange, Match: res})
		if !f.Empty() {
			h.logger.Debug("response compared", "command", command, "exchange", exchange, "result", res.String())
		}
	}

	return f, nil
}

// Send places the named command on the wire as a new exchange without receiving.
// It returns the exchange id for a later Listen. Call HoldReads before Send
// when a monitor shares the port.
func (h *Handshake) Send(ctx context.Context, command string, opts SendOptions) (int, error) {
	cmd, ok := h.cfg.Table().Command(command)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	id := h.log.NextExchange()
	if err := h.sender.Send(ctx, id, cmd.Name, cmd.Wire, opts); err != nil {
		return id, err
	}
	h.emit(Event{Kind: EventSent, Command: cmd.Name, Exchange: id, Bytes: cmd.Wire})

	return id, nil
}

// SendRaw writes b unpaced under the given exchange and label.
func (h *Handshake) SendRaw(exchange int, label string, b []byte) error {
	if err := h.sender.SendRaw(exchange, label, b); err != nil {
		return err
	}
	h.emit(Event{Kind: EventSent, Command: label, Exchange: exchange, Bytes: b})

	return nil
}

// PulseLines pulses RTS then DTR, each high, pause, low, pause.
// Lines the port does not support are skipped.
func (h *Handshake) PulseLines(ctx context.Context) error {
	pulsed := 0
	for _, line := range []transport.Line{transport.LineRTS, transport.LineDTR} {
		if !h.caps.Supports(line) {
			h.logger.Debug("control line not supported, skipping pulse", "line", line.String())
			continue
		}

		if err := h.port.SetControlLine(line, true); err != nil {
			return fmt.Errorf("probe: raise %s: %w", line, err)
		}
		if err := pace.Sleep(ctx, h.cfg.PulseDuration()); err != nil {
			return err
		}
		if err := h.port.SetControlLine(line, false); err != nil {
			return fmt.Errorf("probe: lower %s: %w", line, err)
		}
		if err := pace.Sleep(ctx, h.cfg.PulseDuration()); err != nil {
			return err
		}
		pulsed++
	}

	if pulsed == 0 {
		h.logger.Warn("no control lines available to pulse")
	}

	return nil
}

// NextExchange allocates an exchange id in the handshake's log.
func (h *Handshake) NextExchange() int { return h.log.NextExchange() }

func (h *Handshake) emit(ev Event) {
	if len(h.eventHandlers) == 0 {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, handler := range h.eventHandlers {
		handler(ev)
	}
}
