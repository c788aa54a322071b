// Package grading implements the tolerance funnel used to grade typed answers.
package grading

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Tier is the severity of a graded answer
type Tier int

const (
	// TierSlip is at least 80% of characters correct
	TierSlip Tier = iota + 1
	// TierDegrade is 50% up to 80% correct
	TierDegrade
	// TierCircuitBreak is below 50% correct
	TierCircuitBreak
)

// Tier thresholds, inclusive on the higher side
const (
	SlipThreshold    = 0.8
	DegradeThreshold = 0.5
)

func (t Tier) String() string {
	switch t {
	case TierSlip:
		return "slip"
	case TierDegrade:
		return "degrade"
	case TierCircuitBreak:
		return "circuit-break"
	}
	return "unknown"
}

// Action is what the caller should do with a graded answer
type Action int

const (
	// ActionAccept means the answer matched exactly
	ActionAccept Action = iota
	// ActionCorrectInPlace lets the learner fix a slip without any state change
	ActionCorrectInPlace
	// ActionRevealSkeleton shows first and last letters before a retry
	ActionRevealSkeleton
	// ActionRevealAnswer shows the answer; a yellow word lapses to red
	ActionRevealAnswer
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionCorrectInPlace:
		return "correct-in-place"
	case ActionRevealSkeleton:
		return "reveal-skeleton"
	case ActionRevealAnswer:
		return "reveal-answer"
	}
	return "unknown"
}

// Result is the outcome of grading one submission
type Result struct {
	Tier       Tier
	Action     Action
	Similarity float64 // Proportion of correct characters, 0..1
	Exact      bool
}

// Grade classifies submitted against expected.
func Grade(expected, submitted string) Result {
	sim := Similarity(expected, submitted)
	res := Result{Similarity: sim, Exact: Normalize(expected) == Normalize(submitted)}

	switch {
	case sim >= SlipThreshold:
		res.Tier = TierSlip
		res.Action = ActionCorrectInPlace
		if res.Exact {
			res.Action = ActionAccept
		}
	case sim >= DegradeThreshold:
		res.Tier = TierDegrade
		res.Action = ActionRevealSkeleton
	default:
		res.Tier = TierCircuitBreak
		res.Action = ActionRevealAnswer
	}
	return res
}

// GradeStrict grades without slip leniency: anything but an exact match is a miss
// and keeps the tier it would have had.
func GradeStrict(expected, submitted string) Result {
	res := Grade(expected, submitted)
	if res.Exact {
		return res
	}
	if res.Tier == TierSlip {
		res.Tier = TierDegrade
		res.Action = ActionRevealSkeleton
	}
	return res
}

// Similarity returns 1 - edit distance / longest length over normalized runes.
func Similarity(expected, submitted string) float64 {
	a, b := Normalize(expected), Normalize(submitted)
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// Normalize lower-cases, trims and collapses inner whitespace
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Skeleton returns a hint keeping the first and last letters, e.g. "b _ _ _ k".
// Words of two letters or fewer are fully masked except the first letter.
func Skeleton(word string) string {
	runes := []rune(strings.TrimSpace(word))
	if len(runes) == 0 {
		return ""
	}
	parts := make([]string, len(runes))
	for i, r := range runes {
		switch {
		case r == ' ' || r == '-':
			parts[i] = string(r)
		case i == 0, i == len(runes)-1 && len(runes) > 2:
			parts[i] = string(r)
		default:
			parts[i] = "_"
		}
	}
	return strings.Join(parts, " ")
}
