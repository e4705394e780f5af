package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-ptu/transport"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial devices on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := transport.ListPorts()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, dimStyle.Render("No serial ports found."))
				return nil
			}

			for _, p := range ports {
				fmt.Fprintln(out, renderPort(p))
			}

			return nil
		},
	}
}

func renderPort(p transport.PortInfo) string {
	line := configStyle.Render(p.Name)
	if !p.IsUSB {
		return line
	}

	usb := fmt.Sprintf("USB %s:%s", p.VID, p.PID)
	if p.Product != "" {
		usb += " " + p.Product
	}
	if p.SerialNumber != "" {
		usb += " (" + p.SerialNumber + ")"
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, line, dimStyle.Render(usb))
}
