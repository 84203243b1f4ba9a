package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RuleKind tags the normalized alert rule variant.
type RuleKind string

const (
	RuleThreshold RuleKind = "threshold"
	RuleBitmask   RuleKind = "bitmask"
)

// SensorRule is a widget's alert configuration, normalized once at load time.
// At most one non-deleted rule exists per sensor line.
type SensorRule struct {
	Kind RuleKind

	// Threshold rules. Low exists in the stored shape but is not evaluated.
	Low    float64
	Normal float64
	Danger float64

	// Bitmask rules: bit position -> expected state (0/1).
	Positions map[int]int
}

// ParseBitmaskRule normalizes the stored bitmask mapping, which historically
// arrived either as a JSON object or as a string-encoded JSON object.
func ParseBitmaskRule(raw []byte) (*SensorRule, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty bitmask rule")
	}
	// Unwrap a string-encoded object first.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = []byte(s)
	}
	var m map[string]int
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse bitmask rule: %w", err)
	}
	positions := make(map[int]int, len(m))
	for k, v := range m {
		pos, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("bitmask rule position %q: %w", k, err)
		}
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("bitmask rule position %d: state %d out of range", pos, v)
		}
		positions[pos] = v
	}
	return &SensorRule{Kind: RuleBitmask, Positions: positions}, nil
}
