package sweep

import (
	"fmt"

	"github.com/arloliu/go-ptu/transport"
)

// DefaultBauds returns the default baud order. The device's documented rate comes first.
func DefaultBauds() []int {
	return []int{9600, 4800, 2400, 19200, 38400, 57600, 115200}
}

// DefaultVariants returns the curated framing and flow-control variants tried at each baud rate.
func DefaultVariants() []string {
	return []string{"8N1", "8N1+rtscts", "8E1", "8O1"}
}

// Candidates expands bauds and variants into an ordered candidate list,
// every variant for the first baud rate, then every variant for the next.
func Candidates(bauds []int, variants []string) ([]transport.Config, error) {
	out := make([]transport.Config, 0, len(bauds)*len(variants))
	for _, baud := range bauds {
		for _, v := range variants {
			cfg, err := transport.ParseVariant(baud, v)
			if err != nil {
				return nil, fmt.Errorf("sweep: candidate %d %s: %w", baud, v, err)
			}
			out = append(out, cfg)
		}
	}

	return out, nil
}

// Group is a run of consecutive candidates sharing one baud rate.
type Group struct {
	Baud       int
	Candidates []transport.Config
}

// GroupByBaud splits candidates into consecutive same-baud groups, keeping order.
func GroupByBaud(candidates []transport.Config) []Group {
	var groups []Group
	for _, c := range candidates {
		if n := len(groups); n > 0 && groups[n-1].Baud == c.Baud {
			groups[n-1].Candidates = append(groups[n-1].Candidates, c)
			continue
		}
		groups = append(groups, Group{Baud: c.Baud, Candidates: []transport.Config{c}})
	}

	return groups
}
