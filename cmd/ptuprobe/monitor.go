package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/report"
)

type monitorFlags struct {
	portFlags
	interval time.Duration
	seqGap   time.Duration
	report   string
}

func newMonitorCmd(g *globalFlags) *cobra.Command {
	f := &monitorFlags{}

	cmd := &cobra.Command{
		Use:     "monitor",
		Aliases: []string{"term"},
		Short:   "Open an interactive hex terminal that prints every received byte",
		Long: `Monitor opens the port, polls it in the background and prints every byte that
arrives. Lines typed at the prompt send captured commands with paced timing or
raw hex bytes in a single write. Type help for the command list.`,
		Example: `  ptuprobe monitor --port /dev/ttyUSB0 --baud 9600
  ptuprobe monitor --profile ptu.toml --report monitor.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, g, f)
		},
	}

	f.register(cmd, true)
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "Poll interval (default from profile, else 50ms)")
	cmd.Flags().DurationVar(&f.seqGap, "seq-gap", defaultSeqGap, "Pause between init and heartbeat for the seq command")
	cmd.Flags().StringVar(&f.report, "report", "", "Write every transaction record to this file (.json, .yaml, .txt) on exit")

	return cmd
}

func runMonitor(cmd *cobra.Command, g *globalFlags, f *monitorFlags) error {
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
	if f.interval > 0 {
		extra = append(extra, probe.WithMonitorInterval(f.interval))
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
	fmt.Fprintln(out, titleStyle.Render("Monitoring "+f.port+" at "+tc.String()))

	term := newTerminal(port, probeCfg, out)
	term.seqGap = f.seqGap
	runErr := term.Run(cmd.Context(), cmd.InOrStdin())

	if f.report != "" {
		records := report.FromRecords(term.log.Records())
		if err := report.WriteFile(f.report, records); err != nil {
			return err
		}
		fmt.Fprintf(out, "Records written to %s\n", f.report)
	}

	return runErr
}
