package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is the escalation level assigned to a question. Tiers are ordered by
// generation cost: a SIMPLE question is answered from a template, MEDIUM and
// COMPLEX questions are sent to progressively more capable backends.
type Tier int

const (
	TierSimple Tier = iota
	TierMedium
	TierComplex
)

var tierNames = [...]string{"simple", "medium", "complex"}

// String returns the lower-case tier name used in logs, metrics and API responses.
func (t Tier) String() string {
	if t >= 0 && int(t) < len(tierNames) {
		return tierNames[t]
	}
	return "unknown"
}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return TierSimple, true
	case "medium":
		return TierMedium, true
	case "complex":
		return TierComplex, true
	}
	return TierSimple, false
}

// MarshalJSON implements json.Marshaler.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("tier must be a string: %w", err)
	}
	parsed, ok := ParseTier(s)
	if !ok {
		return fmt.Errorf("unknown tier %q", s)
	}
	*t = parsed
	return nil
}
