package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ptu/logger"
	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/report"
	"github.com/arloliu/go-ptu/sweep"
	"github.com/arloliu/go-ptu/transport"
)

type sweepFlags struct {
	portFlags
	bauds    []int
	variants []string
	yes      bool
	verbose  bool
	report   string
	records  bool
}

func newSweepCmd(g *globalFlags) *cobra.Command {
	f := &sweepFlags{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Try baud rates and framing variants until the device answers",
		Long: `Sweep walks baud rates in order and, for each, the framing and flow-control
variants 8N1, 8N1+rtscts, 8E1 and 8O1. Every candidate gets one full handshake.
The sweep stops at the first candidate that reaches ready. Between baud rates
you are asked whether to continue unless --yes is given.`,
		Example: `  ptuprobe sweep --port /dev/ttyUSB0
  ptuprobe sweep --port COM3 --bauds 9600,19200 --variant 8N1 --yes --report sweep.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, g, f)
		},
	}

	f.register(cmd, false)
	cmd.Flags().IntSliceVar(&f.bauds, "bauds", nil, "Baud rates to try in order (default 9600,4800,2400,19200,38400,57600,115200)")
	cmd.Flags().StringSliceVar(&f.variants, "variant", nil, "Variants to try at each baud rate, e.g. 8N1+rtscts (repeatable)")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Do not ask before moving to the next baud rate")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Print every frame sent and received")
	cmd.Flags().StringVar(&f.report, "report", "", "Write the sweep report to this file (.json, .yaml, .txt)")
	cmd.Flags().BoolVar(&f.records, "records", false, "Include per-byte transaction records in the report")

	return cmd
}

func runSweep(cmd *cobra.Command, g *globalFlags, f *sweepFlags) error {
	p, err := f.load(cmd, g)
	if err != nil {
		return err
	}
	l := g.logger.With("port", f.port)

	probeCfg, err := p.ProbeConfig(l)
	if err != nil {
		return err
	}

	opts, err := p.SweepOptions()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("baud") {
		opts = append(opts, sweep.WithBauds(f.baud))
	}
	if len(f.bauds) > 0 {
		opts = append(opts, sweep.WithBauds(f.bauds...))
	}
	if len(f.variants) > 0 {
		opts = append(opts, sweep.WithVariants(f.variants...))
	}

	out := cmd.OutOrStdout()
	gate := sweep.AlwaysContinue
	if !f.yes {
		gate = promptGate(cmd.InOrStdin(), out)
	}
	opts = append(opts, sweep.WithProbeConfig(probeCfg), sweep.WithLogger(l), sweep.WithGate(gate))

	if f.verbose {
		opts = append(opts, sweep.WithHandshakeHook(func(c transport.Config, h *probe.Handshake) {
			fmt.Fprintln(out, titleStyle.Render("== "+c.String()))
			h.OnEvent(func(ev probe.Event) {
				if line := renderEvent(ev); line != "" {
					fmt.Fprintln(out, line)
				}
			})
		}))
	}

	cfg, err := sweep.NewConfig(opts...)
	if err != nil {
		return err
	}

	candidates := cfg.Candidates()
	port, err := newSweepPort(f.port, candidates[0], l)
	if err != nil {
		return err
	}
	defer func() { _ = port.Close() }()

	fmt.Fprintf(out, "Sweeping %d candidate(s) on %s\n", len(candidates), f.port)
	res, runErr := sweep.New(port, cfg).Run(cmd.Context())
	if res != nil {
		fmt.Fprint(out, renderSweepSummary(res))

		if f.report != "" {
			var ropts []report.Option
			if f.records {
				ropts = append(ropts, report.WithRecords())
			}
			if err := report.WriteFile(f.report, report.FromSweep(res, ropts...)); err != nil {
				return err
			}
			fmt.Fprintf(out, "Report written to %s\n", f.report)
		}
	}

	return runErr
}

// newSweepPort builds the serial port without opening it. The sweep opens it
// when it applies the first candidate, so a mode the driver rejects is skipped
// like any other candidate.
func newSweepPort(name string, first transport.Config, l logger.Logger, opts ...transport.SerialOption) (*transport.Serial, error) {
	return transport.NewSerial(name, first, append([]transport.SerialOption{transport.WithLogger(l)}, opts...)...)
}

// promptGate asks on out and reads a y/n answer from in before each new baud group.
// Anything other than y or yes stops the sweep, as does end of input.
func promptGate(in io.Reader, out io.Writer) sweep.Gate {
	reader := bufio.NewReader(in)

	return func(ctx context.Context, finished []sweep.Attempt, next sweep.Group) bool {
		if ctx.Err() != nil {
			return false
		}

		degraded := 0
		for _, a := range finished {
			if a.Outcome == probe.StateDegraded && !a.Skipped {
				degraded++
			}
		}
		if degraded > 0 {
			fmt.Fprintf(out, "%d configuration(s) at the last baud rate produced frames without heartbeat acknowledgement.\n", degraded)
		}

		fmt.Fprintf(out, "Continue with %d baud (%d candidate(s))? [y/N] ", next.Baud, len(next.Candidates))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(out)
			return false
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
