package probe

import (
	"context"
	"time"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/internal/pace"
	"github.com/arloliu/go-ptu/transport"
)

// Verification defaults.
const (
	DefaultVerifyListen  = 5 * time.Second
	DefaultVerifyWait    = time.Second
	DefaultVerifyByteGap = 100 * time.Millisecond
	verifyPoll           = 100 * time.Millisecond
)

// VerifyASCIIProbe is the plain-text probe sent by Verify.
var VerifyASCIIProbe = []byte("HELLO\r\n")

// verifyLeadBytes are the first bytes of the captured initialization frame.
var verifyLeadBytes = []byte{0x3C, 0x80, 0x5C, 0xC0, 0x5C}

// VerifyOptions tunes Verify. Zero fields use the defaults.
type VerifyOptions struct {
	Listen  time.Duration
	Wait    time.Duration
	ByteGap time.Duration
	// Progress, when set, is called after each check completes.
	Progress func(VerifyCheck)
}

// VerifyCheck is one hardware check and whatever came back.
type VerifyCheck struct {
	Name     string
	Sent     []byte
	Received []byte
}

// Answered reports whether any byte arrived during the check.
func (c VerifyCheck) Answered() bool { return len(c.Received) > 0 }

// VerifyReport is the result of Verify.
type VerifyReport struct {
	Checks  []VerifyCheck
	Records []Record
}

// AnyResponse reports whether any check saw bytes.
func (r *VerifyReport) AnyResponse() bool {
	for _, c := range r.Checks {
		if c.Answered() {
			return true
		}
	}

	return false
}

// Verify runs low-level hardware checks that do not depend on the framed protocol:
// passive listening, an ASCII probe, a bare start marker, and the leading bytes
// of the initialization frame sent one at a time.
//
// Control lines are driven inactive and buffers cleared first.
func Verify(ctx context.Context, port transport.Port, cfg *Config, opts VerifyOptions) (*VerifyReport, error) {
	if opts.Listen <= 0 {
		opts.Listen = DefaultVerifyListen
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultVerifyWait
	}
	if opts.ByteGap <= 0 {
		opts.ByteGap = DefaultVerifyByteGap
	}

	l := cfg.GetLogger()
	log := NewLog()
	sender := NewSender(port, cfg, log, nil)
	rep := &VerifyReport{}

	caps := port.Capabilities()
	for _, line := range []transport.Line{transport.LineDTR, transport.LineRTS} {
		if caps.Supports(line) {
			if err := port.SetControlLine(line, false); err != nil {
				l.Warn("failed to lower control line", "line", line.String(), "error", err)
			}
		}
	}
	if err := port.ClearBuffers(); err != nil {
		return rep, err
	}

	drain := func(exchange int, command string) ([]byte, error) {
		b, err := port.ReadAvailable()
		if err != nil {
			return nil, err
		}
		if len(b) > 0 {
			log.Append(Record{Direction: Rx, Command: command, Bytes: b, Exchange: exchange})
		}

		return b, nil
	}

	finish := func(c VerifyCheck) {
		rep.Checks = append(rep.Checks, c)
		l.Info("verify check finished", "check", c.Name, "received", frame.FormatHex(c.Received))
		if opts.Progress != nil {
			opts.Progress(c)
		}
	}

	defer func() { rep.Records = log.Records() }()

	// passive listen
	listen := VerifyCheck{Name: "passive-listen"}
	deadline := time.Now().Add(opts.Listen)
	for time.Now().Before(deadline) {
		b, err := drain(0, CmdUnsolicited)
		if err != nil {
			return rep, err
		}
		listen.Received = append(listen.Received, b...)
		if err := pace.Sleep(ctx, min(verifyPoll, time.Until(deadline))); err != nil {
			return rep, err
		}
	}
	finish(listen)

	probes := []struct {
		name string
		wire []byte
	}{
		{"ascii-probe", VerifyASCIIProbe},
		{"start-marker", []byte{frame.StartMarker}},
	}
	for _, p := range probes {
		id := log.NextExchange()
		if err := sender.SendRaw(id, p.name, p.wire); err != nil {
			return rep, err
		}
		if err := pace.Sleep(ctx, opts.Wait); err != nil {
			return rep, err
		}
		b, err := drain(id, p.name)
		if err != nil {
			return rep, err
		}
		finish(VerifyCheck{Name: p.name, Sent: append([]byte(nil), p.wire...), Received: b})
	}

	for _, v := range verifyLeadBytes {
		id := log.NextExchange()
		name := "lead-byte"
		if err := sender.SendRaw(id, name, []byte{v}); err != nil {
			return rep, err
		}
		if err := pace.Sleep(ctx, opts.ByteGap); err != nil {
			return rep, err
		}
		b, err := drain(id, name)
		if err != nil {
			return rep, err
		}
		finish(VerifyCheck{Name: name, Sent: []byte{v}, Received: b})
	}

	return rep, nil
}
