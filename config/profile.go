package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/sweep"
	"github.com/arloliu/go-ptu/transport"
)

var (
	// ErrUnsupportedFormat is returned for profile files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("config: unsupported profile format")

	// ErrInvalidProfile is returned when a profile fails validation.
	ErrInvalidProfile = errors.New("config: invalid profile")
)

// Format is a profile file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf selects the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Profile is a probing profile loaded from a YAML or TOML file.
//
// Every field is optional. Unset fields keep the engine defaults.
type Profile struct {
	Name string `yaml:"name,omitempty" toml:"name,omitempty"`
	Port string `yaml:"port,omitempty" toml:"port,omitempty"`
	// Transport is the configuration used by single-shot commands, in notation like "9600 8N1".
	Transport string `yaml:"transport,omitempty" toml:"transport,omitempty"`

	Pacing    Pacing                 `yaml:"pacing,omitempty" toml:"pacing,omitempty"`
	Receive   Receive                `yaml:"receive,omitempty" toml:"receive,omitempty"`
	Handshake Handshake              `yaml:"handshake,omitempty" toml:"handshake,omitempty"`
	Monitor   Monitor                `yaml:"monitor,omitempty" toml:"monitor,omitempty"`
	Sweep     Sweep                  `yaml:"sweep,omitempty" toml:"sweep,omitempty"`
	Commands  map[string]CommandSpec `yaml:"commands,omitempty" toml:"commands,omitempty"`
	Log       Log                    `yaml:"log,omitempty" toml:"log,omitempty"`
}

// Pacing configures the paced sender.
type Pacing struct {
	Mode      string    `yaml:"mode,omitempty" toml:"mode,omitempty"`
	PostStart *Duration `yaml:"post_start,omitempty" toml:"post_start,omitempty"`
	Escape    *Duration `yaml:"escape,omitempty" toml:"escape,omitempty"`
	Byte      *Duration `yaml:"byte,omitempty" toml:"byte,omitempty"`
	Settle    *Duration `yaml:"settle,omitempty" toml:"settle,omitempty"`
	SlowByte  *Duration `yaml:"slow_byte,omitempty" toml:"slow_byte,omitempty"`
}

// Receive configures the frame receiver.
type Receive struct {
	Grace    *Duration `yaml:"grace,omitempty" toml:"grace,omitempty"`
	Poll     *Duration `yaml:"poll,omitempty" toml:"poll,omitempty"`
	MinBytes *int      `yaml:"min_bytes,omitempty" toml:"min_bytes,omitempty"`
}

// Handshake configures the handshake state machine.
type Handshake struct {
	SyncAttempts      *int      `yaml:"sync_attempts,omitempty" toml:"sync_attempts,omitempty"`
	SyncTimeout       *Duration `yaml:"sync_timeout,omitempty" toml:"sync_timeout,omitempty"`
	SyncPause         *Duration `yaml:"sync_pause,omitempty" toml:"sync_pause,omitempty"`
	InitTimeout       *Duration `yaml:"init_timeout,omitempty" toml:"init_timeout,omitempty"`
	Pulse             *Duration `yaml:"pulse,omitempty" toml:"pulse,omitempty"`
	HeartbeatCount    *int      `yaml:"heartbeat_count,omitempty" toml:"heartbeat_count,omitempty"`
	HeartbeatTimeout  *Duration `yaml:"heartbeat_timeout,omitempty" toml:"heartbeat_timeout,omitempty"`
	HeartbeatInterval *Duration `yaml:"heartbeat_interval,omitempty" toml:"heartbeat_interval,omitempty"`
	Steps             []string  `yaml:"steps,omitempty" toml:"steps,omitempty"`
}

// Monitor configures the passive monitor.
type Monitor struct {
	Interval *Duration `yaml:"interval,omitempty" toml:"interval,omitempty"`
}

// Sweep configures the candidate list. Candidates, when set, replace Bauds and Variants.
type Sweep struct {
	Bauds      []int    `yaml:"bauds,omitempty" toml:"bauds,omitempty"`
	Variants   []string `yaml:"variants,omitempty" toml:"variants,omitempty"`
	Candidates []string `yaml:"candidates,omitempty" toml:"candidates,omitempty"`
}

// CommandSpec overrides or adds a command. Wire and Expected are hex strings
// such as "3C 80 7C" or "0x3C,0x80,0x7C".
type CommandSpec struct {
	Kind     string `yaml:"kind,omitempty" toml:"kind,omitempty"`
	Wire     string `yaml:"wire,omitempty" toml:"wire,omitempty"`
	Expected string `yaml:"expected,omitempty" toml:"expected,omitempty"`
}

// Log configures the session log sink.
type Log struct {
	Level  string `yaml:"level,omitempty" toml:"level,omitempty"`
	Format string `yaml:"format,omitempty" toml:"format,omitempty"`
	File   string `yaml:"file,omitempty" toml:"file,omitempty"`
}

// Load reads, decodes, and validates a profile file.
func Load(path string) (*Profile, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile: %w", err)
	}

	p, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return p, nil
}

// Parse decodes and validates profile data.
func Parse(data []byte, format Format) (*Profile, error) {
	var p Profile

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse yaml profile: %w", err)
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), &p)
		if err != nil {
			return nil, fmt.Errorf("parse toml profile: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidProfile, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Validate checks every set field by building the options it maps to.
func (p *Profile) Validate() error {
	if _, err := p.ProbeConfig(logger.Discard()); err != nil {
		return err
	}
	sopts, err := p.SweepOptions()
	if err != nil {
		return err
	}
	if _, err := sweep.NewConfig(append(sopts, sweep.WithLogger(logger.Discard()))...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if p.Transport != "" {
		if _, err := transport.ParseConfig(p.Transport); err != nil {
			return fmt.Errorf("%w: transport: %w", ErrInvalidProfile, err)
		}
	}
	if p.Log.Level != "" {
		if _, ok := logger.ParseLevel(p.Log.Level); !ok {
			return fmt.Errorf("%w: log level %q", ErrInvalidProfile, p.Log.Level)
		}
	}
	if p.Log.Format != "" {
		if _, ok := logger.ParseFormat(p.Log.Format); !ok {
			return fmt.Errorf("%w: log format %q", ErrInvalidProfile, p.Log.Format)
		}
	}

	return nil
}

// TransportConfig returns the profile's transport configuration, or fallback when unset.
func (p *Profile) TransportConfig(fallback transport.Config) (transport.Config, error) {
	if p.Transport == "" {
		return fallback, nil
	}

	return transport.ParseConfig(p.Transport)
}

// Table returns the default command table with the profile's overrides applied.
func (p *Profile) Table() (*frame.Table, error) {
	if len(p.Commands) == 0 {
		return frame.DefaultTable(), nil
	}

	base := frame.DefaultTable()
	var commands []frame.Command
	expected := make(map[string][]byte)

	for name, cs := range p.Commands {
		if cs.Wire != "" {
			kind, ok := frame.ParseKind(cs.Kind)
			if !ok {
				return nil, fmt.Errorf("%w: command %q kind %q", ErrInvalidProfile, name, cs.Kind)
			}
			b, err := frame.ParseHex(cs.Wire)
			if err != nil {
				return nil, fmt.Errorf("%w: command %q wire: %w", ErrInvalidProfile, name, err)
			}
			commands = append(commands, frame.Command{Name: name, Kind: kind, Wire: b})
		} else if _, ok := base.Command(name); !ok {
			return nil, fmt.Errorf("%w: command %q has no wire bytes", ErrInvalidProfile, name)
		}

		if cs.Expected != "" {
			b, err := frame.ParseHex(cs.Expected)
			if err != nil {
				return nil, fmt.Errorf("%w: command %q expected: %w", ErrInvalidProfile, name, err)
			}
			expected[name] = b
		}
	}

	t, err := base.With(commands, expected)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}

	return t, nil
}

// ProbeOptions maps the profile onto engine options. Unset fields produce no option.
func (p *Profile) ProbeOptions() ([]probe.Option, error) {
	var opts []probe.Option

	durations := []struct {
		d   *Duration
		opt func(time.Duration) probe.Option
	}{
		{p.Pacing.PostStart, probe.WithPostStartDelay},
		{p.Pacing.Escape, probe.WithEscapeDelay},
		{p.Pacing.Byte, probe.WithByteDelay},
		{p.Pacing.Settle, probe.WithSettleDelay},
		{p.Pacing.SlowByte, probe.WithSlowByteDelay},
		{p.Receive.Grace, probe.WithGraceInterval},
		{p.Receive.Poll, probe.WithPollInterval},
		{p.Handshake.SyncTimeout, probe.WithSyncTimeout},
		{p.Handshake.SyncPause, probe.WithSyncPause},
		{p.Handshake.InitTimeout, probe.WithInitTimeout},
		{p.Handshake.Pulse, probe.WithPulseDuration},
		{p.Handshake.HeartbeatTimeout, probe.WithHeartbeatTimeout},
		{p.Handshake.HeartbeatInterval, probe.WithHeartbeatInterval},
		{p.Monitor.Interval, probe.WithMonitorInterval},
	}
	for _, e := range durations {
		if e.d != nil {
			opts = append(opts, e.opt(e.d.Std()))
		}
	}

	if p.Pacing.Mode != "" {
		mode, ok := probe.ParsePacingMode(p.Pacing.Mode)
		if !ok {
			return nil, fmt.Errorf("%w: pacing mode %q", ErrInvalidProfile, p.Pacing.Mode)
		}
		opts = append(opts, probe.WithPacing(mode))
	}
	if p.Receive.MinBytes != nil {
		opts = append(opts, probe.WithMinBytes(*p.Receive.MinBytes))
	}
	if p.Handshake.SyncAttempts != nil {
		opts = append(opts, probe.WithSyncAttempts(*p.Handshake.SyncAttempts))
	}
	if p.Handshake.HeartbeatCount != nil {
		opts = append(opts, probe.WithHeartbeatCount(*p.Handshake.HeartbeatCount))
	}
	if len(p.Handshake.Steps) > 0 {
		opts = append(opts, probe.WithSteps(p.Handshake.Steps...))
	}

	if len(p.Commands) > 0 {
		t, err := p.Table()
		if err != nil {
			return nil, err
		}
		opts = append(opts, probe.WithTable(t))
	}

	return opts, nil
}

// ProbeConfig builds the engine configuration: defaults, then the profile, then extra.
func (p *Profile) ProbeConfig(l logger.Logger, extra ...probe.Option) (*probe.Config, error) {
	opts, err := p.ProbeOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)
	opts = append(opts, probe.WithLogger(l))

	cfg, err := probe.NewConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}

	return cfg, nil
}

// SweepOptions maps the profile's sweep section onto sweep options.
func (p *Profile) SweepOptions() ([]sweep.Option, error) {
	var opts []sweep.Option

	if len(p.Sweep.Candidates) > 0 {
		candidates := make([]transport.Config, 0, len(p.Sweep.Candidates))
		for _, s := range p.Sweep.Candidates {
			c, err := transport.ParseConfig(s)
			if err != nil {
				return nil, fmt.Errorf("%w: sweep candidate: %w", ErrInvalidProfile, err)
			}
			candidates = append(candidates, c)
		}

		return append(opts, sweep.WithCandidates(candidates...)), nil
	}

	if len(p.Sweep.Bauds) > 0 {
		opts = append(opts, sweep.WithBauds(p.Sweep.Bauds...))
	}
	if len(p.Sweep.Variants) > 0 {
		for _, v := range p.Sweep.Variants {
			if _, err := transport.ParseVariant(transport.MinBaud, v); err != nil {
				return nil, fmt.Errorf("%w: sweep variant: %w", ErrInvalidProfile, err)
			}
		}
		opts = append(opts, sweep.WithVariants(p.Sweep.Variants...))
	}

	return opts, nil
}

// Write encodes p in format to path's file, creating or truncating it.
func (p *Profile) Write(path string) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("config: encode yaml profile: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("config: encode yaml profile: %w", err)
		}
	case FormatTOML:
		if err := toml.NewEncoder(&buf).Encode(p); err != nil {
			return fmt.Errorf("config: encode toml profile: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write profile: %w", err)
	}

	return nil
}
