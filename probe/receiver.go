package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/internal/pace"
	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/transport"
)

// ReceiveOptions controls one receive attempt.
type ReceiveOptions struct {
	// Timeout is the wall-clock bound of the attempt.
	Timeout time.Duration
	// MinBytes is the minimum accumulated length for an early exit. Zero uses the configured default.
	MinBytes int
	// ExpectEnd enables the early exit once an end marker has been seen.
	ExpectEnd bool
	// Command and Exchange tag the rx records.
	Command  string
	Exchange int
}

// Receiver accumulates bytes from a port into a frame.
type Receiver struct {
	port    transport.Reader
	cfg     *Config
	log     *Log
	metrics *Metrics
	logger  logger.Logger
}

// NewReceiver creates a Receiver. metrics may be nil.
//
// When port implements transport.ReadLeaser the Receiver holds an exclusive
// read lease for the whole of each receive.
func NewReceiver(port transport.Reader, cfg *Config, log *Log, metrics *Metrics) *Receiver {
	if metrics == nil {
		metrics = &Metrics{}
	}

	return &Receiver{
		port:    port,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		logger:  cfg.GetLogger(),
	}
}

// Receive polls the port until the deadline or an early exit and decodes what arrived.
//
// Each poll drains every available byte. With ExpectEnd set, once an end
// marker is buffered and at least MinBytes have arrived, the Receiver waits
// one grace interval, drains once more and stops.
//
// An empty buffer yields an empty, incomplete Frame and a nil error: no
// response is an expected outcome. A read failure returns the frame
// accumulated so far and an error wrapping transport.ErrTransportRead.
// Cancellation returns the accumulated frame and ctx.Err().
func (r *Receiver) Receive(ctx context.Context, opts ReceiveOptions) (frame.Frame, error) {
	src := r.port
	if leaser, ok := r.port.(transport.ReadLeaser); ok {
		lease := leaser.LeaseRead()
		defer lease.Release()
		src = lease
	}

	return r.ReceiveFrom(ctx, src, opts)
}

// ReceiveFrom is Receive reading from src, typically a ReadLease the caller
// took before sending so that no other reader can drain the reply.
func (r *Receiver) ReceiveFrom(ctx context.Context, src transport.Reader, opts ReceiveOptions) (frame.Frame, error) {
	minBytes := opts.MinBytes
	if minBytes <= 0 {
		minBytes = r.cfg.MinBytes()
	}

	deadline := time.Now().Add(opts.Timeout)
	var buf []byte

	for {
		var err error
		if buf, err = r.drain(src, buf, opts); err != nil {
			return r.finish(buf, opts), err
		}

		if opts.ExpectEnd && len(buf) >= minBytes && bytes.IndexByte(buf, frame.EndMarker) >= 0 {
			if err := pace.Sleep(ctx, r.cfg.GraceInterval()); err != nil {
				return r.finish(buf, opts), err
			}
			buf, err = r.drain(src, buf, opts)

			return r.finish(buf, opts), err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return r.finish(buf, opts), nil
		}
		if err := pace.Sleep(ctx, min(r.cfg.PollInterval(), remaining)); err != nil {
			return r.finish(buf, opts), err
		}
	}
}

// drain reads once from src and appends the chunk to buf, logging it as an rx record.
func (r *Receiver) drain(src transport.Reader, buf []byte, opts ReceiveOptions) ([]byte, error) {
	chunk, err := src.ReadAvailable()
	if len(chunk) > 0 {
		r.log.Append(Record{Direction: Rx, Command: opts.Command, Bytes: chunk, Exchange: opts.Exchange})
		buf = append(buf, chunk...)
	}
	if err != nil {
		if !errors.Is(err, transport.ErrTransportRead) {
			err = fmt.Errorf("%w: %w", transport.ErrTransportRead, err)
		}
		r.logger.Error("read failed", "command", opts.Command, "exchange", opts.Exchange, "error", err)

		return buf, err
	}

	return buf, nil
}

func (r *Receiver) finish(buf []byte, opts ReceiveOptions) frame.Frame {
	f := frame.Decode(buf)
	if f.Empty() {
		r.metrics.incNoResponseCount()
		r.logger.Debug("no response", "command", opts.Command, "exchange", opts.Exchange)

		return f
	}

	r.metrics.incFramesReceived(f.Complete)
	r.logger.Debug("frame received", "command", opts.Command, "exchange", opts.Exchange,
		"complete", f.Complete, "bytes", frame.FormatHex(f.Captured()))

	return f
}
