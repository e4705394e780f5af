// Command ptuprobe probes a pan-tilt unit's serial control protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := &globalFlags{}
	err := newRootCmd(g).ExecuteContext(ctx)
	g.teardown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(g *globalFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ptuprobe",
		Short: "Serial handshake prober for pan-tilt units",
		Long: `ptuprobe sends hand-captured byte sequences to a pan-tilt unit over RS-232,
measures what comes back, and sweeps baud rate, framing and flow control looking
for a configuration the device answers on.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "auto", "Log format: console, json, auto (PTU_LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Write the session log to this file instead of stderr")

	rootCmd.AddCommand(newSweepCmd(g))
	rootCmd.AddCommand(newHandshakeCmd(g))
	rootCmd.AddCommand(newMonitorCmd(g))
	rootCmd.AddCommand(newVerifyCmd(g))
	rootCmd.AddCommand(newPortsCmd())

	return rootCmd
}
