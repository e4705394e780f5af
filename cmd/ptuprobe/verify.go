package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/probe"
)

type verifyFlags struct {
	portFlags
	listen  time.Duration
	wait    time.Duration
	byteGap time.Duration
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	f := &verifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the wiring with probes that do not depend on the framed protocol",
		Long: `Verify listens passively, then sends an ASCII probe, a bare start marker and
the leading bytes of the initialization frame one at a time, reporting whatever
comes back. Silence everywhere usually means wiring, power or the wrong port.`,
		Example: `  ptuprobe verify --port /dev/ttyUSB0
  ptuprobe verify --port COM3 --baud 19200 --listen 10s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, g, f)
		},
	}

	f.register(cmd, true)
	cmd.Flags().DurationVar(&f.listen, "listen", probe.DefaultVerifyListen, "Passive listen time before anything is sent")
	cmd.Flags().DurationVar(&f.wait, "wait", probe.DefaultVerifyWait, "Wait after the ASCII probe and the start marker")
	cmd.Flags().DurationVar(&f.byteGap, "byte-gap", probe.DefaultVerifyByteGap, "Wait after each lead byte")

	return cmd
}

func runVerify(cmd *cobra.Command, g *globalFlags, f *verifyFlags) error {
	p, err := f.load(cmd, g)
	if err != nil {
		return err
	}
	tc, err := f.transportConfig(cmd, p)
	if err != nil {
		return err
	}
	l := g.logger.With("port", f.port)

	probeCfg, err := p.ProbeConfig(l)
	if err != nil {
		return err
	}

	port, err := openSerial(f.port, tc, l)
	if err != nil {
		return err
	}
	defer func() { _ = port.Close() }()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Verifying "+f.port+" at "+tc.String()))

	opts := probe.VerifyOptions{
		Listen:  f.listen,
		Wait:    f.wait,
		ByteGap: f.byteGap,
		Progress: func(c probe.VerifyCheck) {
			fmt.Fprintln(out, renderVerifyCheck(c))
		},
	}

	rep, err := probe.Verify(cmd.Context(), port, probeCfg, opts)
	if err != nil {
		return err
	}

	if rep.AnyResponse() {
		fmt.Fprintln(out, boxStyle.Render(rxStyle.Render("The device produced bytes. The port and wiring are live.")))
	} else {
		fmt.Fprintln(out, boxStyle.Render(errorStyle.Render("No bytes received. Check power, wiring, the port name and the baud rate.")))
	}

	return nil
}

func renderVerifyCheck(c probe.VerifyCheck) string {
	sent := "-"
	if len(c.Sent) > 0 {
		sent = frame.FormatHex(c.Sent)
	}
	got := dimStyle.Render("no response")
	if c.Answered() {
		got = rxStyle.Render(frame.FormatHex(c.Received))
	}

	return configStyle.Render(c.Name) + txStyle.Render(sent) + "  " + got
}
