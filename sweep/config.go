package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/transport"
)

// Gate is asked before each baud group after the first whether the sweep
// should continue. finished holds the attempts of the group that just ended.
// Returning false stops the sweep.
type Gate func(ctx context.Context, finished []Attempt, next Group) bool

// AlwaysContinue is a Gate that never stops the sweep.
func AlwaysContinue(context.Context, []Attempt, Group) bool { return true }

// HandshakeHook is called with each handshake before it runs, to attach
// state or event handlers.
type HandshakeHook func(cfg transport.Config, h *probe.Handshake)

// Config holds sweep configuration.
type Config struct {
	candidates []transport.Config
	gate       Gate
	probeCfg   *probe.Config
	hook       HandshakeHook
	logger     logger.Logger
}

// NewConfig creates a sweep configuration. Without WithCandidates or
// WithBauds/WithVariants, the default bauds and variants are used.
func NewConfig(opts ...Option) (*Config, error) {
	s := &settings{
		bauds:    DefaultBauds(),
		variants: DefaultVariants(),
	}
	cfg := &Config{
		gate:   AlwaysContinue,
		logger: logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg, s); err != nil {
			return nil, err
		}
	}

	if cfg.candidates == nil {
		candidates, err := Candidates(s.bauds, s.variants)
		if err != nil {
			return nil, err
		}
		cfg.candidates = candidates
	}
	if len(cfg.candidates) == 0 {
		return nil, ErrNoCandidates
	}

	if cfg.probeCfg == nil {
		pc, err := probe.NewConfig(probe.WithLogger(cfg.logger))
		if err != nil {
			return nil, err
		}
		cfg.probeCfg = pc
	}

	return cfg, nil
}

// --- Getters ---

// Candidates returns a copy of the ordered candidate list.
func (cfg *Config) Candidates() []transport.Config {
	return append([]transport.Config(nil), cfg.candidates...)
}

// Gate returns the operator gate.
func (cfg *Config) Gate() Gate { return cfg.gate }

// ProbeConfig returns the engine configuration used for every handshake.
func (cfg *Config) ProbeConfig() *probe.Config { return cfg.probeCfg }

// GetLogger returns the logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// settings collects list options that are expanded once all options are applied.
type settings struct {
	bauds    []int
	variants []string
}

// Option is a functional option for configuring a sweep.
type Option interface {
	apply(*Config, *settings) error
}

type optFunc func(*Config, *settings) error

func (f optFunc) apply(cfg *Config, s *settings) error { return f(cfg, s) }

// WithBauds sets the baud rates to try, in order.
func WithBauds(bauds ...int) Option {
	return optFunc(func(_ *Config, s *settings) error {
		if len(bauds) == 0 {
			return errors.New("sweep: at least one baud rate is required")
		}
		for _, b := range bauds {
			if b < transport.MinBaud || b > transport.MaxBaud {
				return fmt.Errorf("sweep: baud %d out of range [%d, %d]", b, transport.MinBaud, transport.MaxBaud)
			}
		}
		s.bauds = append([]int(nil), bauds...)

		return nil
	})
}

// WithVariants sets the variants tried at each baud rate, in notation like "8N1+rtscts".
func WithVariants(variants ...string) Option {
	return optFunc(func(_ *Config, s *settings) error {
		if len(variants) == 0 {
			return errors.New("sweep: at least one variant is required")
		}
		for _, v := range variants {
			if _, err := transport.ParseVariant(transport.MinBaud, v); err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
		}
		s.variants = append([]string(nil), variants...)

		return nil
	})
}

// WithCandidates sets an explicit candidate list, overriding bauds and variants.
func WithCandidates(candidates ...transport.Config) Option {
	return optFunc(func(cfg *Config, _ *settings) error {
		for _, c := range candidates {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("sweep: candidate %s: %w", c, err)
			}
		}
		cfg.candidates = append([]transport.Config{}, candidates...)

		return nil
	})
}

// WithGate sets the operator gate consulted between baud groups.
func WithGate(gate Gate) Option {
	return optFunc(func(cfg *Config, _ *settings) error {
		if gate == nil {
			return errors.New("sweep: gate must not be nil")
		}
		cfg.gate = gate

		return nil
	})
}

// WithProbeConfig sets the engine configuration used for every handshake.
func WithProbeConfig(pc *probe.Config) Option {
	return optFunc(func(cfg *Config, _ *settings) error {
		if pc == nil {
			return errors.New("sweep: probe config must not be nil")
		}
		cfg.probeCfg = pc

		return nil
	})
}

// WithHandshakeHook sets a function called with each handshake before it runs.
func WithHandshakeHook(hook HandshakeHook) Option {
	return optFunc(func(cfg *Config, _ *settings) error {
		cfg.hook = hook
		return nil
	})
}

// WithLogger sets the sweep logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config, _ *settings) error {
		if l == nil {
			return errors.New("sweep: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
