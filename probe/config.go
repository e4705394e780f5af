package probe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/logger"
)

// Default pacing delays.
const (
	DefaultPostStartDelay = 20 * time.Millisecond // after the leading start marker
	DefaultEscapeDelay    = 10 * time.Millisecond // after each structural 0x5C byte
	DefaultByteDelay      = 5 * time.Millisecond  // after every other byte
	DefaultSettleDelay    = 20 * time.Millisecond // after the last byte
	DefaultSlowByteDelay  = 50 * time.Millisecond // per byte in the slow-init step
)

// Default receive policy.
const (
	DefaultGraceInterval = 50 * time.Millisecond
	DefaultPollInterval  = 10 * time.Millisecond
	DefaultMinBytes      = 1
)

// Default handshake policy.
const (
	DefaultSyncAttempts      = 5
	DefaultSyncTimeout       = 1 * time.Second
	DefaultSyncPause         = 500 * time.Millisecond
	DefaultInitTimeout       = 2 * time.Second
	DefaultPulseDuration     = 200 * time.Millisecond
	DefaultHeartbeatCount    = 3
	DefaultHeartbeatTimeout  = 2 * time.Second
	DefaultHeartbeatInterval = 1 * time.Second
	DefaultMonitorInterval   = 50 * time.Millisecond
)

// Range limits.
const (
	MaxPacingDelay = 1 * time.Second

	MinPollInterval = 1 * time.Millisecond
	MaxPollInterval = 10 * time.Millisecond

	MinTimeout = 10 * time.Millisecond
	MaxTimeout = 60 * time.Second

	MaxSyncAttempts   = 100
	MaxHeartbeatCount = 100

	MinMonitorInterval = 5 * time.Millisecond
	MaxMonitorInterval = 5 * time.Second
)

// PacingMode selects how the Sender places a frame on the wire.
type PacingMode uint8

const (
	// PaceBytewise flushes one byte at a time with the segmented delay policy.
	PaceBytewise PacingMode = iota
	// PaceBlock writes the whole frame in a single write.
	PaceBlock
)

// String returns "bytewise" or "block".
func (m PacingMode) String() string {
	if m == PaceBlock {
		return "block"
	}

	return "bytewise"
}

// ParsePacingMode converts "bytewise" or "block" into a PacingMode.
func ParsePacingMode(s string) (PacingMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bytewise", "":
		return PaceBytewise, true
	case "block":
		return PaceBlock, true
	default:
		return PaceBytewise, false
	}
}

// Config holds the engine's timing and strategy configuration.
type Config struct {
	postStartDelay time.Duration
	escapeDelay    time.Duration
	byteDelay      time.Duration
	settleDelay    time.Duration
	slowByteDelay  time.Duration
	pacing         PacingMode

	graceInterval time.Duration
	pollInterval  time.Duration
	minBytes      int

	syncAttempts      int
	syncTimeout       time.Duration
	syncPause         time.Duration
	initTimeout       time.Duration
	pulseDuration     time.Duration
	heartbeatCount    int
	heartbeatTimeout  time.Duration
	heartbeatInterval time.Duration
	monitorInterval   time.Duration

	steps []string
	table *frame.Table

	logger logger.Logger
}

// NewConfig creates an engine configuration with defaults, then applies opts in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		postStartDelay:    DefaultPostStartDelay,
		escapeDelay:       DefaultEscapeDelay,
		byteDelay:         DefaultByteDelay,
		settleDelay:       DefaultSettleDelay,
		slowByteDelay:     DefaultSlowByteDelay,
		pacing:            PaceBytewise,
		graceInterval:     DefaultGraceInterval,
		pollInterval:      DefaultPollInterval,
		minBytes:          DefaultMinBytes,
		syncAttempts:      DefaultSyncAttempts,
		syncTimeout:       DefaultSyncTimeout,
		syncPause:         DefaultSyncPause,
		initTimeout:       DefaultInitTimeout,
		pulseDuration:     DefaultPulseDuration,
		heartbeatCount:    DefaultHeartbeatCount,
		heartbeatTimeout:  DefaultHeartbeatTimeout,
		heartbeatInterval: DefaultHeartbeatInterval,
		monitorInterval:   DefaultMonitorInterval,
		steps:             DefaultSteps(),
		table:             frame.DefaultTable(),
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{frame.CmdSync, frame.CmdInit, frame.CmdAltInit, frame.CmdHeartbeat} {
		if _, ok := cfg.table.Command(name); !ok {
			return nil, fmt.Errorf("%w: command table lacks %q", ErrUnknownCommand, name)
		}
	}

	return cfg, nil
}

// --- Getters ---

// PostStartDelay returns the delay after the leading start marker.
func (cfg *Config) PostStartDelay() time.Duration { return cfg.postStartDelay }

// EscapeDelay returns the delay after each structural marker byte.
func (cfg *Config) EscapeDelay() time.Duration { return cfg.escapeDelay }

// ByteDelay returns the uniform inter-byte delay.
func (cfg *Config) ByteDelay() time.Duration { return cfg.byteDelay }

// SettleDelay returns the delay after the last byte of a frame.
func (cfg *Config) SettleDelay() time.Duration { return cfg.settleDelay }

// SlowByteDelay returns the per-byte delay used by the slow-init step.
func (cfg *Config) SlowByteDelay() time.Duration { return cfg.slowByteDelay }

// Pacing returns the default pacing mode.
func (cfg *Config) Pacing() PacingMode { return cfg.pacing }

// GraceInterval returns the wait after an end marker is seen.
func (cfg *Config) GraceInterval() time.Duration { return cfg.graceInterval }

// PollInterval returns the idle delay between receive polls.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// MinBytes returns the minimum frame length for an early receive exit.
func (cfg *Config) MinBytes() int { return cfg.minBytes }

// SyncAttempts returns the number of sync sends.
func (cfg *Config) SyncAttempts() int { return cfg.syncAttempts }

// SyncTimeout returns the per-attempt sync receive timeout.
func (cfg *Config) SyncTimeout() time.Duration { return cfg.syncTimeout }

// SyncPause returns the pause between sync attempts.
func (cfg *Config) SyncPause() time.Duration { return cfg.syncPause }

// InitTimeout returns the receive timeout for each initialization step.
func (cfg *Config) InitTimeout() time.Duration { return cfg.initTimeout }

// PulseDuration returns the high and low time of a control-line pulse.
func (cfg *Config) PulseDuration() time.Duration { return cfg.pulseDuration }

// HeartbeatCount returns the number of beats in a heartbeat cycle.
func (cfg *Config) HeartbeatCount() int { return cfg.heartbeatCount }

// HeartbeatTimeout returns the receive timeout for each beat.
func (cfg *Config) HeartbeatTimeout() time.Duration { return cfg.heartbeatTimeout }

// HeartbeatInterval returns the pause between beats.
func (cfg *Config) HeartbeatInterval() time.Duration { return cfg.heartbeatInterval }

// MonitorInterval returns the passive monitor's poll cadence.
func (cfg *Config) MonitorInterval() time.Duration { return cfg.monitorInterval }

// Steps returns the initialization step names in the order they are tried.
func (cfg *Config) Steps() []string { return append([]string(nil), cfg.steps...) }

// Table returns the command table.
func (cfg *Config) Table() *frame.Table { return cfg.table }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

func checkPacing(name string, d time.Duration) error {
	if d < 0 || d > MaxPacingDelay {
		return fmt.Errorf("probe: %s %v out of range [0, %v]", name, d, MaxPacingDelay)
	}

	return nil
}

func checkTimeout(name string, d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("probe: %s %v out of range [%v, %v]", name, d, MinTimeout, MaxTimeout)
	}

	return nil
}

// WithPostStartDelay sets the delay after the leading start marker.
func WithPostStartDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkPacing("post-start delay", d); err != nil {
			return err
		}
		cfg.postStartDelay = d

		return nil
	})
}

// WithEscapeDelay sets the delay after each structural marker byte.
func WithEscapeDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkPacing("escape delay", d); err != nil {
			return err
		}
		cfg.escapeDelay = d

		return nil
	})
}

// WithByteDelay sets the uniform inter-byte delay.
func WithByteDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkPacing("byte delay", d); err != nil {
			return err
		}
		cfg.byteDelay = d

		return nil
	})
}

// WithSettleDelay sets the delay after the last byte of a frame.
func WithSettleDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkPacing("settle delay", d); err != nil {
			return err
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithSlowByteDelay sets the per-byte delay of the slow-init step.
func WithSlowByteDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkPacing("slow byte delay", d); err != nil {
			return err
		}
		cfg.slowByteDelay = d

		return nil
	})
}

// WithPacing sets the default pacing mode for every send.
func WithPacing(mode PacingMode) Option {
	return optFunc(func(cfg *Config) error {
		if mode != PaceBytewise && mode != PaceBlock {
			return fmt.Errorf("probe: unknown pacing mode %d", mode)
		}
		cfg.pacing = mode

		return nil
	})
}

// WithGraceInterval sets the wait after an end marker before the final drain.
func WithGraceInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkPacing("grace interval", d); err != nil {
			return err
		}
		cfg.graceInterval = d

		return nil
	})
}

// WithPollInterval sets the idle delay between receive polls. Range: 1ms–10ms.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("probe: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithMinBytes sets the minimum frame length for an early receive exit.
func WithMinBytes(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 {
			return fmt.Errorf("probe: min bytes %d must be positive", n)
		}
		cfg.minBytes = n

		return nil
	})
}

// WithSyncAttempts sets the number of sync sends. Zero skips straight to initialization.
func WithSyncAttempts(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxSyncAttempts {
			return fmt.Errorf("probe: sync attempts %d out of range [0, %d]", n, MaxSyncAttempts)
		}
		cfg.syncAttempts = n

		return nil
	})
}

// WithSyncTimeout sets the receive timeout of each sync attempt.
func WithSyncTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("sync timeout", d); err != nil {
			return err
		}
		cfg.syncTimeout = d

		return nil
	})
}

// WithSyncPause sets the pause between sync attempts.
func WithSyncPause(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxTimeout {
			return fmt.Errorf("probe: sync pause %v out of range [0, %v]", d, MaxTimeout)
		}
		cfg.syncPause = d

		return nil
	})
}

// WithInitTimeout sets the receive timeout of each initialization step.
func WithInitTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("init timeout", d); err != nil {
			return err
		}
		cfg.initTimeout = d

		return nil
	})
}

// WithPulseDuration sets the high and low time of a control-line pulse.
func WithPulseDuration(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 || d > MaxTimeout {
			return fmt.Errorf("probe: pulse duration %v out of range (0, %v]", d, MaxTimeout)
		}
		cfg.pulseDuration = d

		return nil
	})
}

// WithHeartbeatCount sets the number of beats in a heartbeat cycle.
func WithHeartbeatCount(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxHeartbeatCount {
			return fmt.Errorf("probe: heartbeat count %d out of range [1, %d]", n, MaxHeartbeatCount)
		}
		cfg.heartbeatCount = n

		return nil
	})
}

// WithHeartbeatTimeout sets the receive timeout of each beat.
func WithHeartbeatTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("heartbeat timeout", d); err != nil {
			return err
		}
		cfg.heartbeatTimeout = d

		return nil
	})
}

// WithHeartbeatInterval sets the pause between beats.
func WithHeartbeatInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxTimeout {
			return fmt.Errorf("probe: heartbeat interval %v out of range [0, %v]", d, MaxTimeout)
		}
		cfg.heartbeatInterval = d

		return nil
	})
}

// WithMonitorInterval sets the passive monitor's poll cadence.
func WithMonitorInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinMonitorInterval || d > MaxMonitorInterval {
			return fmt.Errorf("probe: monitor interval %v out of range [%v, %v]", d, MinMonitorInterval, MaxMonitorInterval)
		}
		cfg.monitorInterval = d

		return nil
	})
}

// WithSteps sets the initialization ladder. Names must be registered steps.
func WithSteps(names ...string) Option {
	return optFunc(func(cfg *Config) error {
		if len(names) == 0 {
			return errors.New("probe: at least one initialization step is required")
		}
		for _, name := range names {
			if _, ok := lookupStep(name); !ok {
				return fmt.Errorf("%w: %q", ErrUnknownStep, name)
			}
		}
		cfg.steps = append([]string(nil), names...)

		return nil
	})
}

// WithTable replaces the command table.
func WithTable(t *frame.Table) Option {
	return optFunc(func(cfg *Config) error {
		if t == nil {
			return errors.New("probe: command table must not be nil")
		}
		cfg.table = t

		return nil
	})
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("probe: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
