package frame

import (
	"fmt"
	"sort"
)

// Well-known command names.
const (
	CmdSync      = "sync"
	CmdInit      = "initialization"
	CmdAltInit   = "alternate-initialization"
	CmdHeartbeat = "heartbeat"
)

// Kind distinguishes framed commands from bare marker probes.
type Kind uint8

const (
	// Framed commands carry both markers and pass Encode.
	Framed Kind = iota
	// MarkerProbe commands are bare marker bytes, such as the single start
	// marker sent while syncing. They only need to begin with StartMarker.
	MarkerProbe
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Framed:
		return "framed"
	case MarkerProbe:
		return "marker-probe"
	default:
		return "unknown"
	}
}

// ParseKind converts a kind name into a Kind. An empty name means Framed.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "framed", "":
		return Framed, true
	case "marker-probe", "marker":
		return MarkerProbe, true
	default:
		return Framed, false
	}
}

// Command is a named, pre-encoded outbound byte sequence.
type Command struct {
	Name string
	Kind Kind
	Wire []byte
}

// Validate checks the marker invariant for the command's kind.
func (c Command) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: command has no name", ErrMalformedTemplate)
	}

	switch c.Kind {
	case Framed:
		if _, err := Encode(c.Wire); err != nil {
			return fmt.Errorf("command %q: %w", c.Name, err)
		}
	case MarkerProbe:
		if len(c.Wire) == 0 || c.Wire[0] != StartMarker {
			return fmt.Errorf("%w: command %q must begin with 0x%02X", ErrMalformedTemplate, c.Name, StartMarker)
		}
	default:
		return fmt.Errorf("%w: command %q has unknown kind %d", ErrMalformedTemplate, c.Name, c.Kind)
	}

	return nil
}

// Table holds the immutable set of known commands and their diagnostic
// expected responses.
type Table struct {
	commands map[string]Command
	expected map[string][]byte
}

// NewTable validates commands and builds a Table.
//
// Expected responses are optional; an entry whose name has no command is rejected.
func NewTable(commands []Command, expected map[string][]byte) (*Table, error) {
	t := &Table{
		commands: make(map[string]Command, len(commands)),
		expected: make(map[string][]byte, len(expected)),
	}

	for _, c := range commands {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.commands[c.Name]; dup {
			return nil, fmt.Errorf("frame: duplicate command %q", c.Name)
		}
		c.Wire = cloneBytes(c.Wire)
		t.commands[c.Name] = c
	}

	for name, b := range expected {
		if _, ok := t.commands[name]; !ok {
			return nil, fmt.Errorf("frame: expected response for unknown command %q", name)
		}
		if len(b) == 0 {
			continue
		}
		t.expected[name] = cloneBytes(b)
	}

	return t, nil
}

// MustTable is like NewTable but panics on error.
// A malformed built-in table is a programming error.
func MustTable(commands []Command, expected map[string][]byte) *Table {
	t, err := NewTable(commands, expected)
	if err != nil {
		panic(err)
	}

	return t
}

// Command returns the command registered under name.
func (t *Table) Command(name string) (Command, bool) {
	c, ok := t.commands[name]
	if !ok {
		return Command{}, false
	}
	c.Wire = cloneBytes(c.Wire)

	return c, true
}

// Expected returns the diagnostic expected response for name.
func (t *Table) Expected(name string) ([]byte, bool) {
	b, ok := t.expected[name]
	if !ok {
		return nil, false
	}

	return cloneBytes(b), true
}

// Names returns the registered command names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.commands))
	for name := range t.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// With returns a copy of t with the given commands and expected responses
// added or replaced.
func (t *Table) With(commands []Command, expected map[string][]byte) (*Table, error) {
	merged := make([]Command, 0, len(t.commands)+len(commands))
	override := make(map[string]bool, len(commands))
	for _, c := range commands {
		override[c.Name] = true
	}
	for _, name := range t.Names() {
		if !override[name] {
			merged = append(merged, t.commands[name])
		}
	}
	merged = append(merged, commands...)

	exp := make(map[string][]byte, len(t.expected)+len(expected))
	for name, b := range t.expected {
		exp[name] = b
	}
	for name, b := range expected {
		exp[name] = b
	}

	return NewTable(merged, exp)
}

var defaultTable = MustTable(
	[]Command{
		{Name: CmdSync, Kind: MarkerProbe, Wire: []byte{StartMarker}},
		{Name: CmdInit, Kind: Framed, Wire: MustParseHex(
			"3C 80 5C C0 5C 70 5C 60 5C 82 CA F8 F8 0C 0C 9C CC AC 9C 8C 8C 5C 78 5C E2 7C")},
		{Name: CmdAltInit, Kind: Framed, Wire: MustParseHex(
			"3C C0 5C 80 5C C0 5C 82 CA 5C 5C C8 5C E2 7C")},
		{Name: CmdHeartbeat, Kind: Framed, Wire: MustParseHex(
			"3C 80 5C C0 5C B0 5C 60 5C CA 2A 18 00 00 0C 0C 9C CC AC 9C 5C 08 5C E2 7C")},
	},
	map[string][]byte{
		CmdSync:      {StartMarker},
		CmdInit:      MustParseHex("3C C0 5C 80 5C C0 5C 82 CA 5C 5C C8 5C E2 7C"),
		CmdHeartbeat: MustParseHex("3C C0 5C 80 5C C0 5C CA 2A 5C 5C 60 5C E2 7C"),
	},
)

// DefaultTable returns the table of hand-captured commands.
//
// The expected responses differ slightly between captures and are used for
// diagnostics only.
func DefaultTable() *Table {
	return defaultTable
}
