package session

import (
	"encoding"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSession is returned before InitSession has succeeded
	ErrNoSession = errors.New("session: not initialized")
	// ErrPhaseIncomplete is returned by a non-forced advance before the phase is done
	ErrPhaseIncomplete = errors.New("session: phase incomplete")
	// ErrWrongPhase is returned when an operation does not belong to the current phase
	ErrWrongPhase = errors.New("session: wrong phase")
	// ErrSessionOver is returned when advancing past the summary
	ErrSessionOver = errors.New("session: already at summary")
	// ErrUnknownWord is returned for a word id outside the session
	ErrUnknownWord = errors.New("session: unknown word")
	// ErrAlreadyGraded is returned when an intake word is recorded twice
	ErrAlreadyGraded = errors.New("session: word already graded")
	// ErrNotRoutable is returned when routing a word that did not fail acceptance
	ErrNotRoutable = errors.New("session: word did not fail acceptance")
	// ErrNoItem is returned when there is nothing to answer
	ErrNoItem = errors.New("session: no current item")
	// ErrWrongKind is returned when an answer does not match the question kind
	ErrWrongKind = errors.New("session: answer kind does not match question")
	// ErrInvalidMode is returned for an unknown classroom mode
	ErrInvalidMode = errors.New("session: invalid mode")
	// ErrUnknownCommand is returned for an unknown teacher command
	ErrUnknownCommand = errors.New("session: unknown command")
)

// Mode is the classroom mode chosen at session start
type Mode string

const (
	ModeStandard    Mode = "standard"
	ModeRemediation Mode = "remediation"
)

// ParseMode converts user input to a Mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStandard, ModeRemediation:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Phases returns the phase sequence of the mode
func (m Mode) Phases() []Phase {
	if m == ModeRemediation {
		return []Phase{PhaseWarmup, PhaseRedBox, PhaseIntake, PhasePronunciation, PhaseDrill, PhaseAcceptance, PhaseSummary}
	}
	return []Phase{PhaseWarmup, PhaseIntake, PhasePronunciation, PhaseDrill, PhaseAcceptance, PhaseSummary}
}

// Phase is a state of the session machine
type Phase int

const (
	PhaseWarmup Phase = iota
	PhaseRedBox
	PhaseIntake
	PhasePronunciation
	PhaseDrill
	PhaseAcceptance
	PhaseSummary
)

var phaseNames = [...]string{
	PhaseWarmup:        "warmup",
	PhaseRedBox:        "red_box",
	PhaseIntake:        "intake",
	PhasePronunciation: "pronunciation",
	PhaseDrill:         "drill",
	PhaseAcceptance:    "acceptance",
	PhaseSummary:       "summary",
}

var (
	_ fmt.Stringer           = Phase(0)
	_ encoding.TextMarshaler = Phase(0)
)

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("invalid phase: %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// next returns the phase after p in mode m
func (m Mode) next(p Phase) Phase {
	seq := m.Phases()
	for i, q := range seq {
		if q == p && i+1 < len(seq) {
			return seq[i+1]
		}
	}
	return PhaseSummary
}
