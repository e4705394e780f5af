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

// SendOptions adjusts pacing for a single send.
type SendOptions struct {
	// Block writes the frame in one write regardless of the configured pacing mode.
	Block bool
	// ByteDelay overrides the uniform inter-byte delay when positive. The
	// post-start and escape delays are raised to at least this value.
	ByteDelay time.Duration
}

// Sender places command bytes on the wire with the segmented delay policy.
//
// It does not retry. Retrying is the handshake's job.
type Sender struct {
	port    transport.Port
	cfg     *Config
	log     *Log
	metrics *Metrics
	logger  logger.Logger
}

// NewSender creates a Sender. metrics may be nil.
func NewSender(port transport.Port, cfg *Config, log *Log, metrics *Metrics) *Sender {
	if metrics == nil {
		metrics = &Metrics{}
	}

	return &Sender{
		port:    port,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		logger:  cfg.GetLogger(),
	}
}

// Send writes wire as command name, tagging every tx record with exchange.
//
// In bytewise mode a leading start marker is flushed alone and followed by the
// post-start delay. Each following byte is flushed individually: a structural
// marker is followed by the escape delay, any other byte by the inter-byte
// delay. The settle delay follows the last byte. Each byte is written, then
// logged, then delayed.
//
// A failed write returns an error wrapping transport.ErrTransportWrite; only the
// bytes actually written are logged.
func (s *Sender) Send(ctx context.Context, exchange int, name string, wire []byte, opts SendOptions) error {
	if len(wire) == 0 {
		return nil
	}

	if opts.Block || s.cfg.Pacing() == PaceBlock {
		return s.sendBlock(ctx, exchange, name, wire)
	}

	byteDelay := s.cfg.ByteDelay()
	escapeDelay := s.cfg.EscapeDelay()
	postStart := s.cfg.PostStartDelay()
	if opts.ByteDelay > 0 {
		byteDelay = opts.ByteDelay
		escapeDelay = max(escapeDelay, opts.ByteDelay)
		postStart = max(postStart, opts.ByteDelay)
	}

	for i, b := range wire {
		if err := s.write(exchange, name, []byte{b}); err != nil {
			s.metrics.incBytesSent(i)
			s.logger.Error("write failed", "command", name, "exchange", exchange, "offset", i, "error", err)

			return fmt.Errorf("probe: send %s byte %d: %w", name, i, err)
		}

		var d time.Duration
		switch {
		case i == 0 && b == frame.StartMarker:
			d = postStart
		case b == frame.StructMarker:
			d = escapeDelay
		default:
			d = byteDelay
		}
		if err := pace.Sleep(ctx, d); err != nil {
			s.metrics.incBytesSent(i + 1)
			return err
		}
	}
	s.metrics.incFramesSent(len(wire))
	s.logger.Debug("frame sent", "command", name, "exchange", exchange, "bytes", frame.FormatHex(wire))

	return pace.Sleep(ctx, s.cfg.SettleDelay())
}

func (s *Sender) sendBlock(ctx context.Context, exchange int, name string, wire []byte) error {
	if err := s.write(exchange, name, wire); err != nil {
		s.logger.Error("block write failed", "command", name, "exchange", exchange, "error", err)
		return fmt.Errorf("probe: send %s: %w", name, err)
	}
	s.metrics.incFramesSent(len(wire))
	s.logger.Debug("frame sent as block", "command", name, "exchange", exchange, "bytes", frame.FormatHex(wire))

	return pace.Sleep(ctx, s.cfg.SettleDelay())
}

// SendRaw writes b in one write without any delay. Wake-up bytes use it.
func (s *Sender) SendRaw(exchange int, name string, b []byte) error {
	if err := s.write(exchange, name, b); err != nil {
		return fmt.Errorf("probe: send %s: %w", name, err)
	}
	s.metrics.incBytesSent(len(b))

	return nil
}

// write writes b and logs it as one tx record.
func (s *Sender) write(exchange int, name string, b []byte) error {
	n, err := s.port.Write(b)
	if n > 0 {
		s.log.Append(Record{Direction: Tx, Command: name, Bytes: b[:n], Exchange: exchange})
	}
	if err != nil {
		if !errors.Is(err, transport.ErrTransportWrite) {
			err = fmt.Errorf("%w: %w", transport.ErrTransportWrite, err)
		}

		return err
	}
	if n < len(b) {
		return fmt.Errorf("%w: short write %d/%d", transport.ErrTransportWrite, n, len(b))
	}

	return nil
}
