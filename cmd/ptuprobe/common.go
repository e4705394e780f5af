package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ptu/config"
	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/transport"
)

type globalFlags struct {
	logLevel  string
	logFormat string
	logFile   string

	logger logger.Logger
	file   *os.File
}

// setup builds the session logger from the global flags.
func (g *globalFlags) setup(cmd *cobra.Command) error {
	level, ok := logger.ParseLevel(g.logLevel)
	if !ok {
		return fmt.Errorf("invalid --log-level %q", g.logLevel)
	}
	format, ok := logger.ParseFormat(g.logFormat)
	if !ok {
		return fmt.Errorf("invalid --log-format %q", g.logFormat)
	}

	var w io.Writer = cmd.ErrOrStderr()
	noColor := false
	if g.logFile != "" {
		f, err := os.OpenFile(g.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		g.file = f
		w = f
		noColor = true
	}

	g.logger = logger.New(w, logger.WithLevel(level), logger.WithFormat(format), logger.WithNoColor(noColor))
	logger.SetDefault(g.logger)

	return nil
}

func (g *globalFlags) teardown() {
	if g.file != nil {
		_ = g.file.Close()
		g.file = nil
	}
}

// applyProfileLog lets a profile's log section fill in flags the user did not set.
func (g *globalFlags) applyProfileLog(cmd *cobra.Command, p *config.Profile) error {
	changed := false
	root := cmd.Root().PersistentFlags()
	if p.Log.Level != "" && !root.Changed("log-level") {
		g.logLevel = p.Log.Level
		changed = true
	}
	if p.Log.Format != "" && !root.Changed("log-format") {
		g.logFormat = p.Log.Format
		changed = true
	}
	if p.Log.File != "" && !root.Changed("log-file") {
		g.logFile = p.Log.File
		changed = true
	}
	if !changed {
		return nil
	}

	g.teardown()

	return g.setup(cmd)
}

// portFlags are shared by every command that opens a serial device.
type portFlags struct {
	port     string
	baud     int
	parity   string
	stopBits string
	rtscts   bool
	dsrdtr   bool
	profile  string
}

func (f *portFlags) register(cmd *cobra.Command, withFraming bool) {
	cmd.Flags().StringVar(&f.port, "port", "", "Serial device, e.g. /dev/ttyUSB0 or COM3 (required unless set in the profile)")
	cmd.Flags().StringVar(&f.profile, "profile", "", "Profile file (.yaml, .yml or .toml)")
	cmd.Flags().IntVar(&f.baud, "baud", 9600, "Baud rate")
	if withFraming {
		cmd.Flags().StringVar(&f.parity, "parity", "N", "Parity: N, E or O")
		cmd.Flags().StringVar(&f.stopBits, "stop-bits", "1", "Stop bits: 1, 1.5 or 2")
		cmd.Flags().BoolVar(&f.rtscts, "rtscts", false, "Wait for CTS before each write")
		cmd.Flags().BoolVar(&f.dsrdtr, "dsrdtr", false, "Wait for DSR before each write")
	}
}

// load reads the profile, if any, and applies its log settings.
func (f *portFlags) load(cmd *cobra.Command, g *globalFlags) (*config.Profile, error) {
	p := &config.Profile{}
	if f.profile != "" {
		var err error
		if p, err = config.Load(f.profile); err != nil {
			return nil, err
		}
		if err := g.applyProfileLog(cmd, p); err != nil {
			return nil, err
		}
	}

	if f.port == "" {
		f.port = p.Port
	}
	if f.port == "" {
		return nil, fmt.Errorf("--port is required")
	}

	return p, nil
}

// transportConfig resolves the transport configuration. Explicit flags win over
// the profile's transport entry, which wins over the flag defaults.
func (f *portFlags) transportConfig(cmd *cobra.Command, p *config.Profile) (transport.Config, error) {
	fromFlags := func() (transport.Config, error) {
		cfg := transport.Config{Baud: f.baud, RTSCTS: f.rtscts, DSRDTR: f.dsrdtr}
		var err error
		if f.parity != "" {
			if cfg.Parity, err = transport.ParseParity(f.parity); err != nil {
				return cfg, err
			}
		}
		if f.stopBits != "" {
			if cfg.StopBits, err = transport.ParseStopBits(f.stopBits); err != nil {
				return cfg, err
			}
		}

		return cfg, cfg.Validate()
	}

	flags := cmd.Flags()
	explicit := flags.Changed("baud") || flags.Changed("parity") || flags.Changed("stop-bits") ||
		flags.Changed("rtscts") || flags.Changed("dsrdtr")
	if explicit || p.Transport == "" {
		return fromFlags()
	}

	return p.TransportConfig(transport.Config{})
}

// openSerial opens the device at cfg.
func openSerial(name string, cfg transport.Config, l logger.Logger) (*transport.Serial, error) {
	s, err := transport.NewSerial(name, cfg, transport.WithLogger(l))
	if err != nil {
		return nil, err
	}
	if err := s.Open(); err != nil {
		return nil, err
	}

	return s, nil
}
