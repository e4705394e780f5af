package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/transport"
)

var (
	// ErrNoCandidates is returned when a sweep has nothing to try.
	ErrNoCandidates = errors.New("sweep: no candidates")
)

// Attempt records the verdict for one candidate.
type Attempt struct {
	Config  transport.Config
	Outcome probe.State
	Reason  string
	// Skipped is true when the candidate could not be applied to the port.
	Skipped bool
	// Err holds the transport error that skipped or ended the attempt.
	Err error
	// Report is the handshake report; nil for skipped candidates.
	Report   *probe.Report
	Duration time.Duration
}

// Succeeded reports whether the attempt reached Ready.
func (a Attempt) Succeeded() bool { return !a.Skipped && a.Outcome == probe.StateReady }

// Verdict returns a short classification: "ready", "degraded", "failed" or "skipped".
func (a Attempt) Verdict() string {
	if a.Skipped {
		return "skipped"
	}

	return a.Outcome.String()
}

// Result summarizes a sweep.
type Result struct {
	Attempts []Attempt
	// Winner is the index in Attempts of the Ready attempt, or -1.
	Winner int
	// Stopped is true when the gate ended the sweep early.
	Stopped bool
	// Remaining counts the candidates that were never tried.
	Remaining int
	Metrics   probe.MetricsSnapshot
	Started   time.Time
	Duration  time.Duration
}

// Found reports whether a candidate reached Ready.
func (r *Result) Found() bool { return r.Winner >= 0 }

// Best returns the winning attempt.
func (r *Result) Best() (Attempt, bool) {
	if !r.Found() {
		return Attempt{}, false
	}

	return r.Attempts[r.Winner], true
}

// Degraded returns the attempts that found a live device with no heartbeat acknowledgement.
func (r *Result) Degraded() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if !a.Skipped && a.Outcome == probe.StateDegraded {
			out = append(out, a)
		}
	}

	return out
}

// Sweep walks an ordered candidate list, running one handshake per candidate
// until one reaches Ready.
//
// The sweep is strictly sequential and owns the port while it runs.
type Sweep struct {
	port   transport.Port
	cfg    *Config
	logger logger.Logger
}

// New creates a Sweep over port.
func New(port transport.Port, cfg *Config) *Sweep {
	return &Sweep{port: port, cfg: cfg, logger: cfg.GetLogger()}
}

// Run tries every candidate in order. It stops on the first Ready outcome, when
// the gate declines the next baud group, or when ctx is cancelled.
//
// Candidates whose configuration cannot be applied are skipped with a reason.
// Cancellation returns the partial result with an error wrapping probe.ErrAborted.
func (s *Sweep) Run(ctx context.Context) (*Result, error) {
	groups := GroupByBaud(s.cfg.Candidates())
	if len(groups) == 0 {
		return nil, ErrNoCandidates
	}

	res := &Result{Winner: -1, Started: time.Now()}
	defer func() { res.Duration = time.Since(res.Started) }()

	total := len(s.cfg.candidates)
	tried := 0

	var finished []Attempt
	for gi, g := range groups {
		if err := ctx.Err(); err != nil {
			res.Remaining = total - tried
			return res, fmt.Errorf("%w: %w", probe.ErrAborted, err)
		}
		if gi > 0 && !s.cfg.Gate()(ctx, finished, g) {
			res.Stopped = true
			res.Remaining = total - tried
			s.logger.Info("sweep stopped by gate", "next_baud", g.Baud, "remaining", res.Remaining)

			return res, nil
		}

		s.logger.Info("sweeping baud group", "baud", g.Baud, "candidates", len(g.Candidates))
		finished = nil

		for _, c := range g.Candidates {
			if err := ctx.Err(); err != nil {
				res.Remaining = total - tried
				return res, fmt.Errorf("%w: %w", probe.ErrAborted, err)
			}

			a, err := s.try(ctx, c)
			tried++
			res.Attempts = append(res.Attempts, a)
			finished = append(finished, a)
			if a.Report != nil {
				res.Metrics = res.Metrics.Add(a.Report.Metrics)
			}
			if err != nil {
				res.Remaining = total - tried
				return res, err
			}

			if a.Succeeded() {
				res.Winner = len(res.Attempts) - 1
				res.Remaining = total - tried
				s.logger.Info("device answered", "config", c.String(), "reason", a.Reason)

				return res, nil
			}
		}
	}

	s.logger.Info("sweep exhausted", "candidates", total, "degraded", len(res.Degraded()))

	return res, nil
}

// try applies c and runs one handshake. The returned error is non-nil only when
// the sweep must stop.
func (s *Sweep) try(ctx context.Context, c transport.Config) (a Attempt, err error) {
	l := s.logger.With("config", c.String())
	a.Config = c
	begin := time.Now()
	defer func() { a.Duration = time.Since(begin) }()

	if err = s.apply(c); err != nil {
		if !errors.Is(err, transport.ErrTransportOpen) {
			return a, err
		}
		a.Skipped = true
		a.Outcome = probe.StateFailed
		a.Reason = "skipped: " + err.Error()
		a.Err = err
		l.Warn("candidate skipped", "error", err)

		return a, nil
	}

	h := probe.NewHandshake(s.port, c, s.cfg.ProbeConfig())
	if s.cfg.hook != nil {
		s.cfg.hook(c, h)
	}

	report, err := h.Run(ctx)
	a.Report = report
	if report != nil {
		a.Outcome = report.Outcome
		a.Reason = report.Reason
	}

	switch {
	case err == nil:
	case errors.Is(err, probe.ErrAborted):
		return a, err
	default:
		// a transport fault ends this attempt only; the next candidate reopens the line
		a.Err = err
		l.Warn("handshake ended by transport error", "error", err)
	}

	l.Info("candidate finished", "verdict", a.Verdict(), "reason", a.Reason)

	return a, nil
}

func (s *Sweep) apply(c transport.Config) error {
	if err := s.port.Reconfigure(c); err != nil {
		return err
	}

	return s.port.ClearBuffers()
}
