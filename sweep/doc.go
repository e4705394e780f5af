// Package sweep searches transport parameter space for a configuration the
// pan-tilt unit answers on.
//
// Candidates are tried in order, grouped by baud rate. For each candidate the
// port is reconfigured, its buffers cleared, and one probe.Handshake run. The
// sweep stops at the first Ready outcome. A Degraded outcome is recorded
// distinctly but does not stop the sweep.
//
// Between baud groups the sweep asks a Gate whether to continue; the CLI uses
// it for an operator prompt.
//
//	cfg, err := sweep.NewConfig(sweep.WithBauds(9600, 19200), sweep.WithGate(prompt))
//	if err != nil {
//		return err
//	}
//	res, err := sweep.New(port, cfg).Run(ctx)
package sweep
