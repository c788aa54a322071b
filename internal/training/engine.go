// Package training runs the three-modality drill over the words that need training.
//
// Each modality is a round. A round starts with the full working set; a pass
// over the set collects misses and, while any remain, the same modality is
// retried with only the missed words. The next modality starts once a pass ends
// with no misses. The drill is done after modality 3 clears or on Abort.
package training

import (
	"github.com/example/engclass/internal/drill"
)

// RoundState is the live position of the engine
type RoundState struct {
	RoundNumber     drill.Modality `json:"round_number"`
	IsRetryRound    bool           `json:"is_retry_round"`
	FixedWordSet    []string       `json:"fixed_word_set"`
	Cursor          int            `json:"cursor"`
	MissedThisRound []string       `json:"missed_this_round"`
	Pass            int            `json:"pass"`
}

// PassRecord is a finished pass over a frozen word set
type PassRecord struct {
	Modality drill.Modality
	Retry    bool
	Words    []string
	Missed   []string
	Skipped  []string
}

// Engine is the drill state machine; it is not safe for concurrent use
type Engine struct {
	original []string
	state    RoundState
	missed   map[string]bool
	skipped  []string
	history  []PassRecord
	done     bool
	aborted  bool
}

// New freezes the working set and starts modality 1. Duplicate ids are dropped.
func New(words []string) *Engine {
	seen := make(map[string]bool, len(words))
	original := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		original = append(original, w)
	}

	e := &Engine{original: original}
	if len(original) == 0 {
		e.done = true
		return e
	}
	e.startPass(drill.ModalityAudioToForm, original, false)
	return e
}

// Current returns the word and modality awaiting an answer
func (e *Engine) Current() (string, drill.Modality, bool) {
	if e.done || e.state.Cursor >= len(e.state.FixedWordSet) {
		return "", 0, false
	}
	return e.state.FixedWordSet[e.state.Cursor], e.state.RoundNumber, true
}

// Report grades the current word and moves the cursor
func (e *Engine) Report(correct bool) {
	word, _, ok := e.Current()
	if !ok {
		return
	}
	if !correct && !e.missed[word] {
		e.missed[word] = true
		e.state.MissedThisRound = append(e.state.MissedThisRound, word)
	}
	e.step()
}

// Skip moves past the current word without scoring it; it is not retried in this modality
func (e *Engine) Skip() {
	word, _, ok := e.Current()
	if !ok {
		return
	}
	e.skipped = append(e.skipped, word)
	e.step()
}

// Abort ends the drill regardless of outstanding misses
func (e *Engine) Abort() {
	if e.done {
		return
	}
	e.closePass()
	e.done = true
	e.aborted = true
}

// Done reports whether the drill has finished
func (e *Engine) Done() bool {
	return e.done
}

// Aborted reports whether the drill was ended early
func (e *Engine) Aborted() bool {
	return e.aborted
}

// State returns a copy of the round state
func (e *Engine) State() RoundState {
	s := e.state
	s.FixedWordSet = append([]string(nil), e.state.FixedWordSet...)
	s.MissedThisRound = append([]string(nil), e.state.MissedThisRound...)
	return s
}

// Words returns the original working set
func (e *Engine) Words() []string {
	return append([]string(nil), e.original...)
}

// History returns every finished pass in order
func (e *Engine) History() []PassRecord {
	return append([]PassRecord(nil), e.history...)
}

// Progress counts answered items of the current pass
func (e *Engine) Progress() (completed, total int) {
	if e.done {
		return len(e.original), len(e.original)
	}
	return e.state.Cursor, len(e.state.FixedWordSet)
}

func (e *Engine) step() {
	e.state.Cursor++
	if e.state.Cursor < len(e.state.FixedWordSet) {
		return
	}

	missed := append([]string(nil), e.state.MissedThisRound...)
	modality := e.state.RoundNumber
	e.closePass()

	switch {
	case len(missed) > 0:
		e.startPass(modality, missed, true)
	case modality < drill.Modalities:
		e.startPass(modality+1, e.original, false)
	default:
		e.done = true
	}
}

func (e *Engine) closePass() {
	e.history = append(e.history, PassRecord{
		Modality: e.state.RoundNumber,
		Retry:    e.state.IsRetryRound,
		Words:    append([]string(nil), e.state.FixedWordSet...),
		Missed:   append([]string(nil), e.state.MissedThisRound...),
		Skipped:  e.skipped,
	})
	e.skipped = nil
}

func (e *Engine) startPass(m drill.Modality, words []string, retry bool) {
	e.state = RoundState{
		RoundNumber:  m,
		IsRetryRound: retry,
		FixedWordSet: append([]string(nil), words...),
		Pass:         e.state.Pass + 1,
	}
	e.missed = make(map[string]bool, len(words))
}
