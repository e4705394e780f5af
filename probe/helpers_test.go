package probe

import (
	"bytes"
	"testing"
	"time"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/internal/porttest"
	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/transport"
)

var testTransport = transport.Config{Baud: 9600}

// newTestConfig creates a Config with pacing disabled and short timeouts suitable for tests.
func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	defaults := []Option{
		WithPostStartDelay(0),
		WithEscapeDelay(0),
		WithByteDelay(0),
		WithSettleDelay(0),
		WithSlowByteDelay(0),
		WithGraceInterval(2 * time.Millisecond),
		WithPollInterval(MinPollInterval),
		WithSyncTimeout(MinTimeout),
		WithSyncPause(0),
		WithInitTimeout(20 * time.Millisecond),
		WithPulseDuration(time.Millisecond),
		WithHeartbeatTimeout(20 * time.Millisecond),
		WithHeartbeatInterval(0),
		WithLogger(logger.Discard()),
	}

	cfg, err := NewConfig(append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestConfig: %v", err)
	}

	return cfg
}

// wire returns the default wire bytes of a command.
func wire(t *testing.T, name string) []byte {
	t.Helper()

	c, ok := frame.DefaultTable().Command(name)
	if !ok {
		t.Fatalf("wire: unknown command %q", name)
	}

	return c.Wire
}

// expected returns the default expected response of a command.
func expected(t *testing.T, name string) []byte {
	t.Helper()

	b, ok := frame.DefaultTable().Expected(name)
	if !ok {
		t.Fatalf("expected: no expected response for %q", name)
	}

	return b
}

// device scripts replies keyed by the exact bytes of an exchange.
type device struct {
	replies map[string][]byte
	seen    []string
}

func newDevice() *device {
	return &device{replies: make(map[string][]byte)}
}

func (d *device) on(tx, reply []byte) *device {
	d.replies[string(tx)] = reply
	return d
}

func (d *device) respond(ex porttest.Exchange) []byte {
	d.seen = append(d.seen, string(ex.Tx))
	return d.replies[string(ex.Tx)]
}

// txSequence returns the tx bytes of every exchange the port saw.
func txSequence(p *porttest.Port) [][]byte {
	var out [][]byte
	for _, ex := range p.Exchanges() {
		out = append(out, ex.Tx)
	}

	return out
}

// countTx counts exchanges whose tx bytes equal b.
func countTx(p *porttest.Port, b []byte) int {
	n := 0
	for _, ex := range p.Exchanges() {
		if bytes.Equal(ex.Tx, b) {
			n++
		}
	}

	return n
}

// stepNames returns the names of the steps in a report.
func stepNames(r *Report) []string {
	names := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}

	return names
}
