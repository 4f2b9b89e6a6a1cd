package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownWorker     = errors.New("unknown worker")
	ErrInvalidSkillValue = errors.New("invalid skill value")
	ErrInvalidEntry      = errors.New("invalid roster entry")
)

// SkillValue is a worker's standing for one skill in one modality.
type SkillValue int8

const (
	Excluded SkillValue = -1
	Passive  SkillValue = 0
	Active   SkillValue = 1
	// Weighted is active and additionally counted on the assisted track.
	// It is written as "w" and never collapses to a plain integer.
	Weighted SkillValue = 2
)

// ParseSkillValue accepts -1, 0, 1, w (and 2 as an alias for w).
// Empty input is Passive.
func ParseSkillValue(raw string) (SkillValue, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "0":
		return Passive, nil
	case "1":
		return Active, nil
	case "-1":
		return Excluded, nil
	case "w", "2":
		return Weighted, nil
	}
	return Passive, fmt.Errorf("%w: %q", ErrInvalidSkillValue, raw)
}

func (v SkillValue) Valid() bool {
	return v >= Excluded && v <= Weighted
}

// Eligible reports whether the worker may receive the skill at all.
func (v SkillValue) Eligible() bool {
	return v.Valid() && v != Excluded
}

// IsActive is true for Active and Weighted.
func (v SkillValue) IsActive() bool {
	return v == Active || v == Weighted
}

func (v SkillValue) String() string {
	if v == Weighted {
		return "w"
	}
	return strconv.Itoa(int(v))
}

func (v SkillValue) MarshalJSON() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSkillValue, v)
	}
	if v == Weighted {
		return []byte(`"w"`), nil
	}
	return []byte(strconv.Itoa(int(v))), nil
}

func (v *SkillValue) UnmarshalJSON(data []byte) error {
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	parsed, err := ParseSkillValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v SkillValue) MarshalYAML() (interface{}, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSkillValue, v)
	}
	if v == Weighted {
		return "w", nil
	}
	return int(v), nil
}

func (v *SkillValue) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseSkillValue(node.Value)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Kind tags a roster entry as working time or as a gap (meeting,
// teaching, leave) during which the worker takes no studies.
type Kind string

const (
	KindShift Kind = "shift"
	KindGap   Kind = "gap"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindShift:
		return KindShift, nil
	case KindGap:
		return KindGap, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, raw)
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		*k = ""
		return nil
	}
	parsed, err := ParseKind(raw)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseKind(node.Value)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
