package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned by WriteFile for unknown extensions and by
// WriteText for values it cannot render.
var ErrUnsupportedFormat = errors.New("report: unsupported format")

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}

	return nil
}

// WriteYAML writes v as YAML.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode yaml: %w", err)
	}

	return enc.Close()
}

// WriteText renders a *Session, *Sweep or []Record as plain text.
func WriteText(w io.Writer, v any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	switch m := v.(type) {
	case *Session:
		writeSession(tw, m, "")
	case *Sweep:
		writeSweep(tw, m)
	case []Record:
		writeRecords(tw, m)
	default:
		return fmt.Errorf("%w: cannot render %T as text", ErrUnsupportedFormat, v)
	}

	return tw.Flush()
}

// WriteFile writes v to path in the format named by its extension:
// .json, .yaml/.yml, or .txt/.log for text.
func WriteFile(path string, v any) (err error) {
	var write func(io.Writer, any) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		write = WriteJSON
	case ".yaml", ".yml":
		write = WriteYAML
	case ".txt", ".log":
		write = WriteText
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("report: close %s: %w", path, cerr)
		}
	}()

	return write(f, v)
}

func writeSession(w io.Writer, s *Session, indent string) {
	fmt.Fprintf(w, "%soutcome:\t%s\n", indent, s.Outcome)
	fmt.Fprintf(w, "%sconfig:\t%s\n", indent, s.Tried)
	fmt.Fprintf(w, "%sreason:\t%s\n", indent, s.Reason)
	fmt.Fprintf(w, "%ssync:\t%d attempt(s), answered=%t\n", indent, s.SyncAttempts, s.SyncAnswered)

	for _, st := range s.Steps {
		reply := "no response"
		if st.Responded {
			reply = st.Frame
		}
		fmt.Fprintf(w, "%sstep %s:\t%s\n", indent, st.Name, reply)
	}

	if s.HeartbeatsSent > 0 {
		fmt.Fprintf(w, "%sheartbeats:\t%d/%d acknowledged\n", indent, s.HeartbeatsAcked, s.HeartbeatsSent)
	}

	for _, m := range s.Matches {
		if m.LengthActual == 0 {
			continue
		}
		verdict := "match"
		if !m.Equal {
			verdict = fmt.Sprintf("mismatch len %d/%d diff %v", m.LengthActual, m.LengthExpected, m.Diff)
		}
		fmt.Fprintf(w, "%scompare #%d %s:\t%s\n", indent, m.Exchange, m.Command, verdict)
	}

	fmt.Fprintf(w, "%sduration:\t%s\n", indent, s.Duration)
}

func writeSweep(w io.Writer, s *Sweep) {
	for _, a := range s.Attempts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Config, a.Verdict, a.Duration, a.Reason)
	}
	fmt.Fprintln(w)

	switch {
	case s.Found:
		fmt.Fprintf(w, "result:\tdevice answered at %s\n", s.Winner)
	case s.Stopped:
		fmt.Fprintf(w, "result:\tstopped by operator, %d candidate(s) untried\n", s.Remaining)
	default:
		fmt.Fprintf(w, "result:\tno configuration reached ready\n")
	}
	fmt.Fprintf(w, "frames:\t%d sent, %d received, %d without response\n",
		s.Metrics.FramesSent, s.Metrics.FramesReceived, s.Metrics.NoResponseCount)
	fmt.Fprintf(w, "duration:\t%s\n", s.Duration)
}

func writeRecords(w io.Writer, records []Record) {
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t#%d\t%s\t%s\n", r.Time.Format("15:04:05.000000"), r.Direction, r.Exchange, r.Command, r.Bytes)
	}
}
