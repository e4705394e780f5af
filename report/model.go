package report

import (
	"time"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/sweep"
)

// Session is the serializable form of one handshake attempt.
type Session struct {
	Outcome string `json:"outcome" yaml:"outcome"`
	// Transport is set for Ready and Degraded outcomes.
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`
	Tried     string `json:"tried" yaml:"tried"`
	Reason    string `json:"reason" yaml:"reason"`

	Stale string `json:"stale,omitempty" yaml:"stale,omitempty"`

	SyncAttempts int  `json:"sync_attempts" yaml:"sync_attempts"`
	SyncAnswered bool `json:"sync_answered" yaml:"sync_answered"`

	Steps     []Step `json:"steps" yaml:"steps"`
	ReadyStep string `json:"ready_step,omitempty" yaml:"ready_step,omitempty"`

	HeartbeatsSent  int `json:"heartbeats_sent" yaml:"heartbeats_sent"`
	HeartbeatsAcked int `json:"heartbeats_acked" yaml:"heartbeats_acked"`

	Exchanges []Exchange            `json:"exchanges" yaml:"exchanges"`
	Records   []Record              `json:"records,omitempty" yaml:"records,omitempty"`
	Matches   []Match               `json:"matches" yaml:"matches"`
	Metrics   probe.MetricsSnapshot `json:"metrics" yaml:"metrics"`

	Started  time.Time `json:"started" yaml:"started"`
	Duration string    `json:"duration" yaml:"duration"`
}

// Step is one initialization step and what it got back.
type Step struct {
	Name      string `json:"name" yaml:"name"`
	Responded bool   `json:"responded" yaml:"responded"`
	Frame     string `json:"frame,omitempty" yaml:"frame,omitempty"`
}

// Exchange is one tx/rx pair.
type Exchange struct {
	ID      int    `json:"id" yaml:"id"`
	Command string `json:"command" yaml:"command"`
	Tx      string `json:"tx" yaml:"tx"`
	Rx      string `json:"rx,omitempty" yaml:"rx,omitempty"`
}

// Record is one transaction log entry.
type Record struct {
	Time      time.Time `json:"time" yaml:"time"`
	Direction string    `json:"dir" yaml:"dir"`
	Command   string    `json:"command" yaml:"command"`
	Exchange  int       `json:"exchange,omitempty" yaml:"exchange,omitempty"`
	Bytes     string    `json:"bytes" yaml:"bytes"`
}

// Match is the diagnostic comparison of one reply.
type Match struct {
	Command        string `json:"command" yaml:"command"`
	Exchange       int    `json:"exchange" yaml:"exchange"`
	Equal          bool   `json:"equal" yaml:"equal"`
	LengthActual   int    `json:"length_actual" yaml:"length_actual"`
	LengthExpected int    `json:"length_expected" yaml:"length_expected"`
	Diff           []int  `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Sweep is the serializable form of a configuration sweep.
type Sweep struct {
	Found     bool                  `json:"found" yaml:"found"`
	Winner    string                `json:"winner,omitempty" yaml:"winner,omitempty"`
	Stopped   bool                  `json:"stopped" yaml:"stopped"`
	Remaining int                   `json:"remaining" yaml:"remaining"`
	Attempts  []Attempt             `json:"attempts" yaml:"attempts"`
	Metrics   probe.MetricsSnapshot `json:"metrics" yaml:"metrics"`
	Started   time.Time             `json:"started" yaml:"started"`
	Duration  string                `json:"duration" yaml:"duration"`
}

// Attempt is one sweep candidate.
type Attempt struct {
	Config   string   `json:"config" yaml:"config"`
	Verdict  string   `json:"verdict" yaml:"verdict"`
	Reason   string   `json:"reason" yaml:"reason"`
	Duration string   `json:"duration" yaml:"duration"`
	Session  *Session `json:"session,omitempty" yaml:"session,omitempty"`
}

// Option tunes how models are built.
type Option func(*options)

type options struct {
	records bool
}

// WithRecords includes the per-byte transaction records, which are omitted by default.
func WithRecords() Option {
	return func(o *options) { o.records = true }
}

// FromSession builds a Session model from a handshake report.
func FromSession(r *probe.Report, opts ...Option) *Session {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		Outcome:         r.Outcome.String(),
		Tried:           r.Transport.String(),
		Reason:          r.Reason,
		Stale:           frame.FormatHex(r.Stale),
		SyncAttempts:    r.SyncAttempts,
		SyncAnswered:    r.SyncAnswered,
		ReadyStep:       r.ReadyStep,
		HeartbeatsSent:  r.HeartbeatsSent,
		HeartbeatsAcked: r.HeartbeatsAcked,
		Metrics:         r.Metrics,
		Started:         r.Started,
		Duration:        r.Duration.Round(time.Millisecond).String(),
		Steps:           make([]Step, 0, len(r.Steps)),
		Exchanges:       []Exchange{},
		Matches:         make([]Match, 0, len(r.Matches)),
	}
	if r.Outcome == probe.StateReady || r.Outcome == probe.StateDegraded {
		s.Transport = r.Transport.String()
	}

	for _, st := range r.Steps {
		step := Step{Name: st.Name, Responded: st.Responded}
		if st.Responded {
			step.Frame = frame.FormatHex(st.Frame.Captured())
		}
		s.Steps = append(s.Steps, step)
	}

	for _, g := range r.Exchanges() {
		s.Exchanges = append(s.Exchanges, Exchange{
			ID:      g.ID,
			Command: g.Command,
			Tx:      frame.FormatHex(g.Tx),
			Rx:      frame.FormatHex(g.Rx),
		})
	}

	if o.records {
		s.Records = FromRecords(r.Records)
	}

	for _, m := range r.Matches {
		s.Matches = append(s.Matches, Match{
			Command:        m.Command,
			Exchange:       m.Exchange,
			Equal:          m.Result.Equal,
			LengthActual:   m.Result.LengthActual,
			LengthExpected: m.Result.LengthExpected,
			Diff:           m.Result.DiffPositions,
		})
	}

	return s
}

// FromRecords converts transaction log entries, keeping their order.
func FromRecords(records []probe.Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, Record{
			Time:      rec.Timestamp,
			Direction: rec.Direction.String(),
			Command:   rec.Command,
			Exchange:  rec.Exchange,
			Bytes:     frame.FormatHex(rec.Bytes),
		})
	}

	return out
}

// FromSweep builds a Sweep model from a sweep result.
func FromSweep(res *sweep.Result, opts ...Option) *Sweep {
	s := &Sweep{
		Found:     res.Found(),
		Stopped:   res.Stopped,
		Remaining: res.Remaining,
		Metrics:   res.Metrics,
		Started:   res.Started,
		Duration:  res.Duration.Round(time.Millisecond).String(),
		Attempts:  make([]Attempt, 0, len(res.Attempts)),
	}
	if best, ok := res.Best(); ok {
		s.Winner = best.Config.String()
	}

	for _, a := range res.Attempts {
		m := Attempt{
			Config:   a.Config.String(),
			Verdict:  a.Verdict(),
			Reason:   a.Reason,
			Duration: a.Duration.Round(time.Millisecond).String(),
		}
		if a.Report != nil {
			m.Session = FromSession(a.Report, opts...)
		}
		s.Attempts = append(s.Attempts, m)
	}

	return s
}
