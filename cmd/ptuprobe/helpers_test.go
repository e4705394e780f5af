package main

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/probe"
)

// syncBuffer is a bytes.Buffer safe for one writer goroutine and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testProbeConfig(t *testing.T) *probe.Config {
	t.Helper()

	cfg, err := probe.NewConfig(
		probe.WithPostStartDelay(0),
		probe.WithEscapeDelay(0),
		probe.WithByteDelay(0),
		probe.WithSettleDelay(0),
		probe.WithSlowByteDelay(0),
		probe.WithMonitorInterval(probe.MinMonitorInterval),
		probe.WithLogger(logger.Discard()),
	)
	if err != nil {
		t.Fatalf("testProbeConfig: %v", err)
	}

	return cfg
}

const waitFor = 2 * time.Second
