package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/probe"
	"github.com/arloliu/go-ptu/sweep"
)

var (
	colorAccent  = lipgloss.Color("#7aa2f7")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorError   = lipgloss.Color("#f7768e")
	colorDim     = lipgloss.Color("#565f89")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	txStyle      = lipgloss.NewStyle().Foreground(colorAccent)
	rxStyle      = lipgloss.NewStyle().Foreground(colorSuccess)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
	configStyle  = lipgloss.NewStyle().Width(20)
	verdictStyle = lipgloss.NewStyle().Width(10).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
)

func verdictColor(verdict string) lipgloss.Color {
	switch verdict {
	case probe.StateReady.String():
		return colorSuccess
	case probe.StateDegraded.String():
		return colorWarning
	case "skipped":
		return colorDim
	default:
		return colorError
	}
}

func styledVerdict(verdict string) string {
	return verdictStyle.Foreground(verdictColor(verdict)).Render(verdict)
}

// renderSweepSummary renders one line per attempt and a verdict box.
func renderSweepSummary(res *sweep.Result) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Sweep summary"))
	sb.WriteString("\n")

	for _, a := range res.Attempts {
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			configStyle.Render(a.Config.String()),
			styledVerdict(a.Verdict()),
			dimStyle.Render(a.Reason),
		))
		sb.WriteString("\n")
	}

	var verdict string
	switch best, ok := res.Best(); {
	case ok:
		verdict = lipgloss.NewStyle().Foreground(colorSuccess).Render("Device answered at " + best.Config.String())
	case res.Stopped:
		verdict = lipgloss.NewStyle().Foreground(colorWarning).
			Render(fmt.Sprintf("Stopped by operator, %d candidate(s) untried", res.Remaining))
	default:
		verdict = lipgloss.NewStyle().Foreground(colorError).Render("No configuration reached ready")
	}
	if n := len(res.Degraded()); n > 0 && !res.Found() {
		verdict += "\n" + lipgloss.NewStyle().Foreground(colorWarning).
			Render(fmt.Sprintf("%d configuration(s) got a frame but no heartbeat acknowledgement", n))
	}
	verdict += "\n" + dimStyle.Render(fmt.Sprintf("%d frames sent, %d received, %s",
		res.Metrics.FramesSent, res.Metrics.FramesReceived, res.Duration.Round(time.Millisecond)))

	sb.WriteString(boxStyle.Render(verdict))
	sb.WriteString("\n")

	return sb.String()
}

// renderSession renders a single handshake report.
func renderSession(r *probe.Report) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Handshake " + r.Transport.String()))
	sb.WriteString("\n")

	for _, st := range r.Steps {
		reply := dimStyle.Render("no response")
		if st.Responded {
			reply = rxStyle.Render(st.Frame.String())
		}
		sb.WriteString(configStyle.Render(st.Name) + reply + "\n")
	}

	body := styledVerdict(r.Outcome.String()) + " " + r.Reason
	if r.HeartbeatsSent > 0 {
		body += "\n" + dimStyle.Render(fmt.Sprintf("heartbeats %d/%d, %s",
			r.HeartbeatsAcked, r.HeartbeatsSent, r.Duration.Round(time.Millisecond)))
	}
	sb.WriteString(boxStyle.Render(body))
	sb.WriteString("\n")

	return sb.String()
}

// renderEvent renders one handshake event as a terminal line, or "" to skip it.
func renderEvent(ev probe.Event) string {
	switch ev.Kind {
	case probe.EventStep:
		return titleStyle.Render("step " + ev.Step)
	case probe.EventSent:
		return txStyle.Render(fmt.Sprintf("TX #%d %s: %s", ev.Exchange, ev.Command, frame.FormatHex(ev.Bytes)))
	case probe.EventReceived:
		return rxStyle.Render(fmt.Sprintf("RX #%d %s: %s", ev.Exchange, ev.Command, ev.Frame.String()))
	case probe.EventNoResponse:
		return dimStyle.Render(fmt.Sprintf("RX #%d %s: no response", ev.Exchange, ev.Command))
	case probe.EventMatch:
		if ev.Match.LengthActual == 0 {
			return ""
		}
		return dimStyle.Render(fmt.Sprintf("   compare %s: %s", ev.Command, ev.Match.String()))
	default:
		return ""
	}
}
