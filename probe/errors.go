package probe

import "errors"

var (
	// ErrUnknownCommand is returned when a command name is not in the command table.
	ErrUnknownCommand = errors.New("probe: unknown command")

	// ErrUnknownStep is returned when an initialization step name is not registered.
	ErrUnknownStep = errors.New("probe: unknown initialization step")

	// ErrInvalidTransition is returned when the handshake attempts a transition
	// that the state table does not allow. It indicates a programming error.
	ErrInvalidTransition = errors.New("probe: invalid state transition")

	// ErrAborted is returned together with the context error when a handshake is cancelled.
	ErrAborted = errors.New("probe: aborted")

	// ErrHandshakeUsed is returned when Run is called more than once on a Handshake.
	ErrHandshakeUsed = errors.New("probe: handshake already run")
)
