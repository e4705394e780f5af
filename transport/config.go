package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DataBits is fixed for every configuration the prober uses.
const DataBits = 8

// Baud rate limits accepted by Validate.
const (
	MinBaud = 50
	MaxBaud = 4_000_000
)

// ErrInvalidConfig is returned for transport configurations that cannot be applied.
var ErrInvalidConfig = errors.New("transport: invalid config")

// Parity is the serial parity mode.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// String returns the single-letter notation: N, E or O.
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityEven:
		return "E"
	case ParityOdd:
		return "O"
	default:
		return "?"
	}
}

// ParseParity accepts "N", "E", "O" and the words "none", "even", "odd".
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "none":
		return ParityNone, nil
	case "e", "even":
		return ParityEven, nil
	case "o", "odd":
		return ParityOdd, nil
	default:
		return ParityNone, fmt.Errorf("%w: parity %q", ErrInvalidConfig, s)
	}
}

// StopBits is the number of stop bits.
type StopBits uint8

const (
	StopBits1 StopBits = iota
	StopBits1Half
	StopBits2
)

// String returns "1", "1.5" or "2".
func (s StopBits) String() string {
	switch s {
	case StopBits1:
		return "1"
	case StopBits1Half:
		return "1.5"
	case StopBits2:
		return "2"
	default:
		return "?"
	}
}

// ParseStopBits accepts "1", "1.5" and "2".
func ParseStopBits(s string) (StopBits, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return StopBits1, nil
	case "1.5":
		return StopBits1Half, nil
	case "2":
		return StopBits2, nil
	default:
		return StopBits1, fmt.Errorf("%w: stop bits %q", ErrInvalidConfig, s)
	}
}

// Config is an immutable set of transport parameters.
type Config struct {
	Baud     int
	Parity   Parity
	StopBits StopBits
	RTSCTS   bool
	DSRDTR   bool
}

// Validate checks that every field holds a supported value.
func (c Config) Validate() error {
	if c.Baud < MinBaud || c.Baud > MaxBaud {
		return fmt.Errorf("%w: baud %d out of range [%d, %d]", ErrInvalidConfig, c.Baud, MinBaud, MaxBaud)
	}
	if c.Parity > ParityOdd {
		return fmt.Errorf("%w: parity %d", ErrInvalidConfig, c.Parity)
	}
	if c.StopBits > StopBits2 {
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, c.StopBits)
	}

	return nil
}

// Variant returns the compact framing notation without the baud rate,
// for example "8N1" or "8E1+rtscts".
func (c Config) Variant() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(DataBits))
	sb.WriteString(c.Parity.String())
	sb.WriteString(c.StopBits.String())
	if c.RTSCTS {
		sb.WriteString("+rtscts")
	}
	if c.DSRDTR {
		sb.WriteString("+dsrdtr")
	}

	return sb.String()
}

// String returns the full notation, for example "9600 8N1+rtscts".
func (c Config) String() string {
	return strconv.Itoa(c.Baud) + " " + c.Variant()
}

// WithBaud returns a copy of c using baud.
func (c Config) WithBaud(baud int) Config {
	c.Baud = baud
	return c
}

// ParseVariant parses framing notation such as "8N1", "8O2", "8N1.5+dsrdtr" or
// "8N1+rtscts+dsrdtr" and combines it with baud.
func ParseVariant(baud int, variant string) (Config, error) {
	parts := strings.Split(strings.TrimSpace(variant), "+")
	head := parts[0]
	if len(head) < 3 || head[0] != '8' {
		return Config{}, fmt.Errorf("%w: variant %q, want 8<parity><stop>", ErrInvalidConfig, variant)
	}

	parity, err := ParseParity(head[1:2])
	if err != nil {
		return Config{}, err
	}
	stop, err := ParseStopBits(head[2:])
	if err != nil {
		return Config{}, err
	}

	cfg := Config{Baud: baud, Parity: parity, StopBits: stop}
	for _, flag := range parts[1:] {
		switch strings.ToLower(strings.TrimSpace(flag)) {
		case "rtscts":
			cfg.RTSCTS = true
		case "dsrdtr":
			cfg.DSRDTR = true
		default:
			return Config{}, fmt.Errorf("%w: flow control %q", ErrInvalidConfig, flag)
		}
	}

	return cfg, cfg.Validate()
}

// ParseConfig parses the full notation produced by Config.String, for example
// "9600 8N1" or "19200 8E1+rtscts".
func ParseConfig(s string) (Config, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Config{}, fmt.Errorf("%w: %q, want \"<baud> <variant>\"", ErrInvalidConfig, s)
	}

	baud, err := strconv.Atoi(fields[0])
	if err != nil {
		return Config{}, fmt.Errorf("%w: baud %q", ErrInvalidConfig, fields[0])
	}

	return ParseVariant(baud, fields[1])
}
