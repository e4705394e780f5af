package probe

import (
	"sync"
	"time"
)

// Direction tells whether a record was sent or received.
type Direction uint8

const (
	Tx Direction = iota
	Rx
)

// String returns "tx" or "rx".
func (d Direction) String() string {
	if d == Rx {
		return "rx"
	}

	return "tx"
}

// Command labels for rx records that belong to no exchange.
const (
	CmdUnsolicited = "unsolicited"
	CmdStale       = "stale"
)

// Record is one append-only transaction log entry.
//
// Tx records of one send and the Rx records of the receive that follows share
// an Exchange id.
type Record struct {
	Timestamp time.Time
	Direction Direction
	Command   string
	Bytes     []byte
	Exchange  int
}

// ExchangeGroup is one send and the bytes received in reply.
type ExchangeGroup struct {
	ID      int
	Command string
	Tx      []byte
	Rx      []byte
}

// Answered reports whether any byte was received for the exchange.
func (g ExchangeGroup) Answered() bool { return len(g.Rx) > 0 }

// Log is an append-only transaction log, safe for concurrent use.
// It is for post-hoc inspection only; no control decision reads it.
type Log struct {
	mu       sync.Mutex
	records  []Record
	exchange int
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{}
}

// NextExchange allocates a new exchange id.
func (l *Log) NextExchange() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exchange++

	return l.exchange
}

// Append adds r. The byte slice is copied.
func (l *Log) Append(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.Bytes = append([]byte(nil), r.Bytes...)

	l.mu.Lock()
	l.records = append(l.records, r)
	l.mu.Unlock()
}

// Records returns a copy of every record in append order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]Record(nil), l.records...)
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.records)
}

// Exchanges groups the log by exchange id.
func (l *Log) Exchanges() []ExchangeGroup {
	return GroupExchanges(l.Records())
}

// GroupExchanges groups records by exchange id in order of first appearance.
// Records with a zero exchange id are skipped.
func GroupExchanges(records []Record) []ExchangeGroup {
	var groups []ExchangeGroup
	index := make(map[int]int)

	for _, r := range records {
		if r.Exchange == 0 {
			continue
		}
		i, ok := index[r.Exchange]
		if !ok {
			i = len(groups)
			index[r.Exchange] = i
			groups = append(groups, ExchangeGroup{ID: r.Exchange})
		}

		g := &groups[i]
		if r.Direction == Tx {
			if g.Command == "" {
				g.Command = r.Command
			}
			g.Tx = append(g.Tx, r.Bytes...)
		} else {
			g.Rx = append(g.Rx, r.Bytes...)
		}
	}

	return groups
}

// CountAnswered returns how many exchanges of command received a reply.
func CountAnswered(groups []ExchangeGroup, command string) int {
	n := 0
	for _, g := range groups {
		if g.Command == command && g.Answered() {
			n++
		}
	}

	return n
}
