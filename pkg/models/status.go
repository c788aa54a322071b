package models

import (
	"encoding"
	"fmt"
)

// Status is the mastery tier of a word for one student
type Status string

const (
	// StatusPending is a word seen in a session but not yet accepted
	StatusPending Status = "pending"
	// StatusYellow is a word in scheduled review
	StatusYellow Status = "yellow"
	// StatusGreen is a permanently mastered word
	StatusGreen Status = "green"
	// StatusRed is a lapsed word awaiting remediation
	StatusRed Status = "red"
)

var (
	_ fmt.Stringer             = Status("")
	_ encoding.TextMarshaler   = Status("")
	_ encoding.TextUnmarshaler = (*Status)(nil)
)

// Valid reports whether s is one of the known tiers
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusYellow, StatusGreen, StatusRed:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status: %q", string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	v := Status(text)
	if !v.Valid() {
		return fmt.Errorf("invalid status: %q", text)
	}
	*s = v
	return nil
}
