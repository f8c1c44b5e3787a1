package domain

import (
	"fmt"
	"strings"
)

// Severity is the CAP <severity> value. The zero value is invalid so a
// missing element is distinguishable from Minor.
type Severity int

const (
	SeverityMinor Severity = iota + 1
	SeverityModerate
	SeveritySevere
	SeverityExtreme
)

var severityNames = map[Severity]string{
	SeverityMinor:    "Minor",
	SeverityModerate: "Moderate",
	SeveritySevere:   "Severe",
	SeverityExtreme:  "Extreme",
}

// ParseSeverity maps a CAP severity string, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minor":
		return SeverityMinor, nil
	case "moderate":
		return SeverityModerate, nil
	case "severe":
		return SeveritySevere, nil
	case "extreme":
		return SeverityExtreme, nil
	default:
		return 0, fmt.Errorf("invalid severity: %q", s)
	}
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity: %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
