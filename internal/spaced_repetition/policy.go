package spaced_repetition

import (
	"time"

	"github.com/example/engclass/pkg/models"
)

// Policy holds the review intervals and the mastery thresholds
type Policy struct {
	// Intervals in days keyed by review count; the last entry repeats
	Intervals []int
	// Reviews needed before a word can turn green
	MasteryReviews int
	// Minimum time since the first acceptance before a word can turn green
	MasteryAge time.Duration
	// Minimum rolling accuracy before a word can turn green
	MasteryAccuracy float64
}

// DefaultPolicy returns the 3 -> 7 -> 30 day cycle
func DefaultPolicy() *Policy {
	return &Policy{
		Intervals:       []int{3, 3, 7, 30}, // fresh, 1st review, 2nd review, 3rd and later
		MasteryReviews:  5,
		MasteryAge:      30 * 24 * time.Hour,
		MasteryAccuracy: 0.9,
	}
}

// Interval returns the delay until the next review for the given review count
func (p *Policy) Interval(reviewCount int) time.Duration {
	if reviewCount < 0 {
		reviewCount = 0
	}
	if reviewCount >= len(p.Intervals) {
		reviewCount = len(p.Intervals) - 1
	}
	return time.Duration(p.Intervals[reviewCount]) * 24 * time.Hour
}

// IsMastered determines if a yellow word is ready to turn green:
// 1. It has been reviewed at least MasteryReviews times
// 2. Its first acceptance is at least MasteryAge old
// 3. The rolling accuracy is at least MasteryAccuracy
func (p *Policy) IsMastered(rec *models.MasteryRecord, now time.Time) bool {
	if rec.FirstAcceptedAt == nil {
		return false
	}
	return rec.ReviewCount >= p.MasteryReviews &&
		now.Sub(*rec.FirstAcceptedAt) >= p.MasteryAge &&
		rec.Accuracy() >= p.MasteryAccuracy
}
