package models

import "time"

// RecentWindow is the number of review outcomes kept for the rolling accuracy
const RecentWindow = 10

// MasteryRecord tracks one student's lifecycle with one word
type MasteryRecord struct {
	StudentID       string     `json:"student_id"`
	WordID          string     `json:"word_id"`
	Status          Status     `json:"status"`
	ReviewCount     int        `json:"review_count"`
	ErrorCount      int        `json:"error_count"`
	ErrorPatterns   []string   `json:"error_patterns,omitempty"`  // Observed wrong submissions
	RecentOutcomes  []bool     `json:"recent_outcomes,omitempty"` // Last RecentWindow review results, oldest first
	FirstAcceptedAt *time.Time `json:"first_accepted_at,omitempty"`
	LastReviewedAt  *time.Time `json:"last_reviewed_at,omitempty"`
	NextDueAt       *time.Time `json:"next_due_at,omitempty"`
	RetrainQueued   bool       `json:"retrain_queued"` // Failed acceptance, goes to the next session's drill
}

// Accuracy returns the share of successful outcomes in the rolling window.
// An empty window counts as fully accurate.
func (r *MasteryRecord) Accuracy() float64 {
	if len(r.RecentOutcomes) == 0 {
		return 1
	}
	ok := 0
	for _, o := range r.RecentOutcomes {
		if o {
			ok++
		}
	}
	return float64(ok) / float64(len(r.RecentOutcomes))
}

// PushOutcome appends a review result, trimming the window
func (r *MasteryRecord) PushOutcome(ok bool) {
	r.RecentOutcomes = append(r.RecentOutcomes, ok)
	if n := len(r.RecentOutcomes); n > RecentWindow {
		r.RecentOutcomes = append([]bool(nil), r.RecentOutcomes[n-RecentWindow:]...)
	}
}

// IsDue reports whether a scheduled review is due at now
func (r *MasteryRecord) IsDue(now time.Time) bool {
	return r.Status == StatusYellow && r.NextDueAt != nil && !r.NextDueAt.After(now)
}

// Clone returns a deep copy of the record
func (r MasteryRecord) Clone() MasteryRecord {
	c := r
	c.ErrorPatterns = append([]string(nil), r.ErrorPatterns...)
	c.RecentOutcomes = append([]bool(nil), r.RecentOutcomes...)
	c.FirstAcceptedAt = cloneTime(r.FirstAcceptedAt)
	c.LastReviewedAt = cloneTime(r.LastReviewedAt)
	c.NextDueAt = cloneTime(r.NextDueAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
