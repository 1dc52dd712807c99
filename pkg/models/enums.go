package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Level is a learner's or a topic's difficulty level
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Levels lists every valid level from easiest to hardest
var Levels = []Level{LevelBeginner, LevelIntermediate, LevelAdvanced}

// ParseLevel converts free-form text into a Level
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", InvalidArgument("ParseLevel", fmt.Sprintf("unknown level %q", s))
	}
	return l, nil
}

// Valid reports whether l is one of the known levels
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

func (l Level) String() string { return string(l) }

// Value implements driver.Valuer
func (l Level) Value() (driver.Value, error) {
	if !l.Valid() {
		return nil, InvalidArgument("Level.Value", fmt.Sprintf("unknown level %q", string(l)))
	}
	return string(l), nil
}

// Scan implements sql.Scanner
func (l *Level) Scan(src interface{}) error {
	s, err := scanText(src)
	if err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Frequency is how many lesson notifications a user receives per day
type Frequency string

const (
	FrequencyOnce  Frequency = "once"
	FrequencyTwice Frequency = "twice"
	FrequencyThree Frequency = "three"
)

// DefaultFrequency is assigned to users on first contact
const DefaultFrequency = FrequencyOnce

// Hours of day, in the scheduler's reference timezone, at which each
// frequency is considered for dispatch.
var triggerHours = map[Frequency][]int{
	FrequencyOnce:  {9},
	FrequencyTwice: {9, 17},
	FrequencyThree: {9, 13, 17},
}

// ParseFrequency converts free-form text into a Frequency
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", InvalidArgument("ParseFrequency", fmt.Sprintf("unknown frequency %q", s))
	}
	return f, nil
}

// Valid reports whether f is one of the known frequencies
func (f Frequency) Valid() bool {
	_, ok := triggerHours[f]
	return ok
}

// TriggerHours returns a copy of the hours of day f is dispatched at
func (f Frequency) TriggerHours() []int {
	hours := triggerHours[f]
	out := make([]int, len(hours))
	copy(out, hours)
	return out
}

// Triggers reports whether hour is one of f's trigger points
func (f Frequency) Triggers(hour int) bool {
	for _, h := range triggerHours[f] {
		if h == hour {
			return true
		}
	}
	return false
}

func (f Frequency) String() string { return string(f) }

// Value implements driver.Valuer
func (f Frequency) Value() (driver.Value, error) {
	if !f.Valid() {
		return nil, InvalidArgument("Frequency.Value", fmt.Sprintf("unknown frequency %q", string(f)))
	}
	return string(f), nil
}

// Scan implements sql.Scanner
func (f *Frequency) Scan(src interface{}) error {
	s, err := scanText(src)
	if err != nil {
		return err
	}
	parsed, err := ParseFrequency(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func scanText(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("cannot scan NULL into enum")
	default:
		return "", fmt.Errorf("cannot scan %T into enum", src)
	}
}
