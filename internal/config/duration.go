package config

import (
	"fmt"
	"strings"
	"time"

	"rosterbot/internal/pacing"
)

// ParseDurationField parses a Go duration string, allowing empty
// (which means "use the default").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseRange converts a RangeConfig into a pacing.Range.
func ParseRange(path string, rc RangeConfig) (pacing.Range, error) {
	min, err := ParseDurationField(path+".min", rc.Min)
	if err != nil {
		return pacing.Range{}, err
	}
	max, err := ParseDurationField(path+".max", rc.Max)
	if err != nil {
		return pacing.Range{}, err
	}
	if max > 0 && max < min {
		return pacing.Range{}, fmt.Errorf("%s: max %s is below min %s", path, rc.Max, rc.Min)
	}
	return pacing.Range{Min: min, Max: max}.Normalize(), nil
}

// ParseDelayTable parses a list of duration strings, skipping empties.
func ParseDelayTable(path string, raw []string) ([]time.Duration, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]time.Duration, 0, len(raw))
	for i, s := range raw {
		d, err := ParseDurationField(fmt.Sprintf("%s[%d]", path, i), s)
		if err != nil {
			return nil, err
		}
		if d > 0 {
			out = append(out, d)
		}
	}
	return out, nil
}
