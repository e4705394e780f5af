package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/report"
)

type handshakeFlags struct {
	portFlags
	pacing  string
	steps   []string
	quiet   bool
	report  string
	records bool
}

func newHandshakeCmd(g *globalFlags) *cobra.Command {
	f := &handshakeFlags{}

	cmd := &cobra.Command{
		Use:   "handshake",
		Short: "Run one sync, initialize and heartbeat attempt at a fixed configuration",
		Example: `  ptuprobe handshake --port /dev/ttyUSB0 --baud 9600
  ptuprobe handshake --port COM3 --parity E --rtscts --report session.yaml
  ptuprobe handshake --profile ptu.yaml --step plain-init --step slow-init`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHandshake(cmd, g, f)
		},
	}

	f.register(cmd, true)
	cmd.Flags().StringVar(&f.pacing, "pacing", "", "Pacing mode: bytewise or block (default from profile, else bytewise)")
	cmd.Flags().StringSliceVar(&f.steps, "step", nil, "Initialization steps to try in order (repeatable)")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Only print the summary")
	cmd.Flags().StringVar(&f.report, "report", "", "Write the session report to this file (.json, .yaml, .txt)")
	cmd.Flags().BoolVar(&f.records, "records", false, "Include per-byte transaction records in the report")

	return cmd
}

func runHandshake(cmd *cobra.Command, g *globalFlags, f *handshakeFlags) error {
	p, err := f.load(cmd, g)
	if err != nil {
		return err
	}
	tc, err := f.transportConfig(cmd, p)
	if err != nil {
		return err
	}
	l := g.logger.With("port", f.port)

	var extra []probe.Option
	if f.pacing != "" {
		mode, ok := probe.ParsePacingMode(f.pacing)
		if !ok {
			return fmt.Errorf("invalid --pacing %q", f.pacing)
		}
		extra = append(extra, probe.WithPacing(mode))
	}
	if len(f.steps) > 0 {
		extra = append(extra, probe.WithSteps(f.steps...))
	}
	probeCfg, err := p.ProbeConfig(l, extra...)
	if err != nil {
		return err
	}

	port, err := openSerial(f.port, tc, l)
	if err != nil {
		return err
	}
	defer func() { _ = port.Close() }()

	out := cmd.OutOrStdout()
	h := probe.NewHandshake(port, tc, probeCfg)
	if !f.quiet {
		h.OnEvent(func(ev probe.Event) {
			if line := renderEvent(ev); line != "" {
				fmt.Fprintln(out, line)
			}
		})
	}

	rep, runErr := h.Run(cmd.Context())
	if rep == nil {
		return runErr
	}
	fmt.Fprint(out, renderSession(rep))

	if f.report != "" {
		var ropts []report.Option
		if f.records {
			ropts = append(ropts, report.WithRecords())
		}
		if err := report.WriteFile(f.report, report.FromSession(rep, ropts...)); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", f.report)
	}

	return runErr
}
