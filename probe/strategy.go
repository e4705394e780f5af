package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arloliu/go-ptu/frame"
	"github.com/arloliu/go-ptu/internal/pace"
)

// Initialization step names.
const (
	StepPlainInit       = "plain-init"
	StepAltInit         = "alternate-init"
	StepLineToggleInit  = "line-toggle-init"
	StepDirectHeartbeat = "direct-heartbeat"
	StepWakeNulInit     = "wake-nul-init"
	StepSlowInit        = "slow-init"
	StepBlockInit       = "block-init"
	StepStartMarkerInit = "start-marker-init"
	StepSyncFlood       = "sync-flood"
)

const (
	wakeNulCount      = 3
	wakeNulInterval   = 100 * time.Millisecond
	syncFloodCount    = 10
	syncFloodInterval = 200 * time.Millisecond
)

// StepFunc performs one initialization strategy and returns whatever arrived.
// Any non-empty frame moves the handshake to Ready.
type StepFunc func(ctx context.Context, h *Handshake) (frame.Frame, error)

// Step is a named initialization strategy.
type Step struct {
	Name        string
	Description string
	Run         StepFunc
}

var (
	stepMu   sync.RWMutex
	stepRegs = map[string]Step{
		StepPlainInit: {
			Name:        StepPlainInit,
			Description: "paced initialization",
			Run:         exchangeStep(frame.CmdInit, SendOptions{}),
		},
		StepAltInit: {
			Name:        StepAltInit,
			Description: "paced alternate-initialization",
			Run:         exchangeStep(frame.CmdAltInit, SendOptions{}),
		},
		StepLineToggleInit: {
			Name:        StepLineToggleInit,
			Description: "pulse RTS then DTR, then resend initialization",
			Run:         lineToggleInit,
		},
		StepDirectHeartbeat: {
			Name:        StepDirectHeartbeat,
			Description: "send heartbeat as a last probe",
			Run:         exchangeStep(frame.CmdHeartbeat, SendOptions{}),
		},
		StepWakeNulInit: {
			Name:        StepWakeNulInit,
			Description: "three NUL wake-up bytes 100ms apart, then initialization",
			Run:         wakeNulInit,
		},
		StepSlowInit: {
			Name:        StepSlowInit,
			Description: "initialization at the slow per-byte delay",
			Run:         slowInit,
		},
		StepBlockInit: {
			Name:        StepBlockInit,
			Description: "initialization in a single unpaced write",
			Run:         exchangeStep(frame.CmdInit, SendOptions{Block: true}),
		},
		StepStartMarkerInit: {
			Name:        StepStartMarkerInit,
			Description: "pulse lines, bare start marker, then initialization",
			Run:         startMarkerInit,
		},
		StepSyncFlood: {
			Name:        StepSyncFlood,
			Description: "ten start markers 200ms apart, any reply counts",
			Run:         syncFlood,
		},
	}
)

// DefaultSteps returns the default initialization ladder.
func DefaultSteps() []string {
	return []string{StepPlainInit, StepAltInit, StepLineToggleInit, StepDirectHeartbeat}
}

// RegisterStep adds a named step that WithSteps can select.
func RegisterStep(step Step) error {
	if step.Name == "" || step.Run == nil {
		return errors.New("probe: step needs a name and a run function")
	}

	stepMu.Lock()
	defer stepMu.Unlock()

	if _, dup := stepRegs[step.Name]; dup {
		return fmt.Errorf("probe: step %q already registered", step.Name)
	}
	stepRegs[step.Name] = step

	return nil
}

// LookupStep returns the registered step called name.
func LookupStep(name string) (Step, bool) {
	return lookupStep(name)
}

func lookupStep(name string) (Step, bool) {
	stepMu.RLock()
	defer stepMu.RUnlock()
	s, ok := stepRegs[name]

	return s, ok
}

// StepNames returns every registered step name, sorted.
func StepNames() []string {
	stepMu.RLock()
	defer stepMu.RUnlock()

	names := make([]string, 0, len(stepRegs))
	for name := range stepRegs {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func exchangeStep(command string, opts SendOptions) StepFunc {
	return func(ctx context.Context, h *Handshake) (frame.Frame, error) {
		return h.Exchange(ctx, command, h.cfg.InitTimeout(), opts)
	}
}

func lineToggleInit(ctx context.Context, h *Handshake) (frame.Frame, error) {
	if err := h.PulseLines(ctx); err != nil {
		return frame.Frame{}, err
	}

	return h.Exchange(ctx, frame.CmdInit, h.cfg.InitTimeout(), SendOptions{})
}

func slowInit(ctx context.Context, h *Handshake) (frame.Frame, error) {
	return h.Exchange(ctx, frame.CmdInit, h.cfg.InitTimeout(), SendOptions{ByteDelay: h.cfg.SlowByteDelay()})
}

func wakeNulInit(ctx context.Context, h *Handshake) (frame.Frame, error) {
	release := h.HoldReads()
	defer release()

	id := h.NextExchange()
	for i := 0; i < wakeNulCount; i++ {
		if err := h.SendRaw(id, "wake-nul", []byte{0x00}); err != nil {
			return frame.Frame{}, err
		}
		if err := pace.Sleep(ctx, wakeNulInterval); err != nil {
			return frame.Frame{}, err
		}
	}

	// a device that wakes on NUL may already have spoken
	f, err := h.Listen(ctx, id, "wake-nul", h.cfg.PollInterval())
	if err != nil || !f.Empty() {
		return f, err
	}

	return h.Exchange(ctx, frame.CmdInit, h.cfg.InitTimeout(), SendOptions{})
}

func startMarkerInit(ctx context.Context, h *Handshake) (frame.Frame, error) {
	if err := h.PulseLines(ctx); err != nil {
		return frame.Frame{}, err
	}

	f, err := h.Exchange(ctx, frame.CmdSync, h.cfg.SyncTimeout(), SendOptions{})
	if err != nil || !f.Empty() {
		return f, err
	}

	return h.Exchange(ctx, frame.CmdInit, h.cfg.InitTimeout(), SendOptions{})
}

func syncFlood(ctx context.Context, h *Handshake) (frame.Frame, error) {
	cmd, ok := h.cfg.Table().Command(frame.CmdSync)
	if !ok {
		return frame.Frame{}, fmt.Errorf("%w: %q", ErrUnknownCommand, frame.CmdSync)
	}

	release := h.HoldReads()
	defer release()

	id := h.NextExchange()
	for i := 0; i < syncFloodCount; i++ {
		if err := h.SendRaw(id, cmd.Name, cmd.Wire); err != nil {
			return frame.Frame{}, err
		}
		if err := pace.Sleep(ctx, syncFloodInterval); err != nil {
			return frame.Frame{}, err
		}
	}

	return h.Listen(ctx, id, cmd.Name, h.cfg.InitTimeout())
}
