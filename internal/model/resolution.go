package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution maps a human label to a bucket width in seconds.
// Seconds == 0 disables aggregation.
type Resolution struct {
	Label   string `json:"label"`
	Seconds int64  `json:"seconds"`
}

// PassThrough reports whether the resolution mirrors ticks 1:1.
func (r Resolution) PassThrough() bool { return r.Seconds == 0 }

func (r Resolution) String() string { return r.Label }

var unitSeconds = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 24 * 3600,
	'w': 7 * 24 * 3600,
}

// ParseResolution converts labels like "30m", "1h", "2h" or "0"/"tick" into a Resolution.
func ParseResolution(label string) (Resolution, error) {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return Resolution{}, fmt.Errorf("empty resolution label")
	}
	if label == "0" || label == "tick" {
		return Resolution{Label: "tick", Seconds: 0}, nil
	}

	mult, ok := unitSeconds[label[len(label)-1]]
	num := label[:len(label)-1]
	if !ok {
		// bare number means seconds
		mult, num = 1, label
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q", label)
	}
	return Resolution{Label: label, Seconds: n * mult}, nil
}

// ParseResolutions parses a comma-separated list, preserving order and skipping duplicates.
func ParseResolutions(s string) ([]Resolution, error) {
	var out []Resolution
	seen := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		r, err := ParseResolution(part)
		if err != nil {
			return nil, err
		}
		if seen[r.Seconds] {
			continue
		}
		seen[r.Seconds] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no resolutions in %q", s)
	}
	return out, nil
}
