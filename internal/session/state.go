package session

import (
	"time"

	"github.com/example/engclass/internal/drill"
	"github.com/example/engclass/internal/grading"
	"github.com/example/engclass/internal/remediation"
)

// Source tags how a word reached the acceptance gate
type Source string

const (
	SourceP1Skip    Source = "p1-skip"
	SourceP2Trained Source = "p2-trained"
)

// WordResult is the per-session outcome of one intake or carry-over word
type WordResult struct {
	WordID        string `json:"word_id"`
	P1Result      *bool  `json:"p1_result,omitempty"`
	P1Skipped     bool   `json:"p1_skipped,omitempty"`
	NeedsTraining bool   `json:"needs_training"`
	P15Done       bool   `json:"p15_done,omitempty"`
	CarryOver     bool   `json:"carry_over,omitempty"`
	Source        Source `json:"source,omitempty"`
	P3Passed      *bool  `json:"p3_passed,omitempty"`
	P3Attempts    int    `json:"p3_attempts,omitempty"`
	P3Degraded    bool   `json:"p3_degraded,omitempty"`
	P3Skipped     bool   `json:"p3_skipped,omitempty"`
}

func (r *WordResult) acceptanceOpen() bool {
	return r.P3Passed == nil && !r.P3Skipped
}

// ReviewOutcome is how a due word left the warm-up
type ReviewOutcome string

const (
	ReviewOpen     ReviewOutcome = ""
	ReviewPassed   ReviewOutcome = "passed"
	ReviewDegraded ReviewOutcome = "degraded"
	ReviewFailed   ReviewOutcome = "failed"
	ReviewSkipped  ReviewOutcome = "skipped"
)

// State is a copy of the session state
type State struct {
	ID               string                 `json:"id"`
	Mode             Mode                   `json:"mode"`
	Phase            Phase                  `json:"phase"`
	CompletedPhases  []Phase                `json:"completed_phases"`
	IntakeWordList   []string               `json:"intake_word_list"`
	LegacyWordList   []string               `json:"legacy_word_list"`
	CarryOverList    []string               `json:"carry_over_list"`
	WarmupWordList   []string               `json:"warmup_word_list"`
	CurrentWordIndex int                    `json:"current_word_index"`
	WordResults      map[string]*WordResult `json:"word_results"`
	StartedAt        time.Time              `json:"started_at"`
}

// Item is the question awaiting an answer in the current phase
type Item struct {
	Phase    Phase          `json:"phase"`
	WordID   string         `json:"word_id"`
	Question drill.Question `json:"question"`
	Modality drill.Modality `json:"modality,omitempty"`
	Attempt  int            `json:"attempt,omitempty"` // 1-based attempt of a gated check
	Hint     string         `json:"hint,omitempty"`
	Revealed bool           `json:"revealed,omitempty"` // Teacher showed the answer

	// Key changes whenever a new question is put to the student: next word,
	// next drill pass or next attempt of a gated check
	Key string `json:"key"`

	// Red Box only
	Step        remediation.Step         `json:"step,omitempty"`
	Weapon      remediation.Weapon       `json:"weapon,omitempty"`
	WeaponText  string                   `json:"weapon_text,omitempty"`
	Orientation map[string]string        `json:"orientation,omitempty"`
	Weapons     []remediation.Weapon     `json:"weapons,omitempty"`
	Items       []remediation.OrientItem `json:"items,omitempty"`
}

// Feedback is the verdict on a submitted answer
type Feedback struct {
	Phase    Phase           `json:"phase"`
	WordID   string          `json:"word_id"`
	Correct  bool            `json:"correct"`
	Grade    *grading.Result `json:"grade,omitempty"`
	Hint     string          `json:"hint,omitempty"`
	Answer   string          `json:"answer,omitempty"` // Revealed correct answer
	Retry    bool            `json:"retry,omitempty"`  // The same item stays open
	Resolved bool            `json:"resolved"`         // The item is finished
}

// PhaseProgress counts finished items of the current phase
type PhaseProgress struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

func newProgress(completed, total int) PhaseProgress {
	p := PhaseProgress{Completed: completed, Total: total}
	if total > 0 {
		p.Percentage = float64(completed) * 100 / float64(total)
	}
	return p
}
