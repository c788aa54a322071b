// Package remediation implements the Red Box: a teacher-paced three step
// pipeline that walks each lapsed word through orientation, a mnemonic and a
// strict final spelling check.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/engclass/internal/drill"
	"github.com/example/engclass/internal/grading"
	"github.com/example/engclass/pkg/models"
)

// MaxAttempts is the number of spelling attempts in the final check
const MaxAttempts = 2

var (
	// ErrUnavailable is returned when the word has no data for an orientation item or weapon
	ErrUnavailable = errors.New("remediation: resource unavailable")
	// ErrNoWeapon is returned when leaving the mnemonic step without a weapon
	ErrNoWeapon = errors.New("remediation: no weapon selected")
	// ErrUnknownWeapon is returned for a weapon id that does not exist
	ErrUnknownWeapon = errors.New("remediation: unknown weapon")
	// ErrWrongStep is returned when an action does not belong to the current step
	ErrWrongStep = errors.New("remediation: wrong step")
	// ErrDone is returned once every word has been resolved
	ErrDone = errors.New("remediation: no word in progress")
)

// Step is the position of a word in the pipeline
type Step int

const (
	StepOrient Step = iota
	StepMnemonic
	StepAccept
)

func (s Step) String() string {
	switch s {
	case StepOrient:
		return "orient"
	case StepMnemonic:
		return "mnemonic"
	case StepAccept:
		return "accept"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// OrientItem is a piece of sound data revealed during orientation
type OrientItem string

const (
	ItemAudio     OrientItem = "audio"
	ItemSyllables OrientItem = "syllables"
	ItemPhonetic  OrientItem = "phonetic"
)

// Weapon is a mnemonic aid the teacher chooses for the student
type Weapon string

const (
	WeaponSyllables  Weapon = "syllables"
	WeaponContext    Weapon = "context"
	WeaponMnemonic   Weapon = "mnemonic"
	WeaponComparison Weapon = "comparison"
)

// Weapons lists every weapon in display order
var Weapons = []Weapon{WeaponSyllables, WeaponContext, WeaponMnemonic, WeaponComparison}

// ParseWeapon converts a command argument to a weapon
func ParseWeapon(s string) (Weapon, error) {
	w := Weapon(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Weapons {
		if w == known {
			return w, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWeapon, s)
}

// Outcome is how a word left the Red Box
type Outcome string

const (
	OutcomeOpen       Outcome = ""
	OutcomeCleared    Outcome = "cleared"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeSkipped    Outcome = "skipped"
)

// Mastery receives the final check verdicts
type Mastery interface {
	RemediationPassed(ctx context.Context, wordID string, now time.Time) error
	RemediationFailed(ctx context.Context, wordID string, submitted []string, now time.Time) error
}

// WordState is the per-word progress through the pipeline
type WordState struct {
	WordID      string              `json:"word_id"`
	Step        Step                `json:"step"`
	Revealed    map[OrientItem]bool `json:"revealed,omitempty"`
	Weapon      Weapon              `json:"weapon,omitempty"`
	Attempts    int                 `json:"attempts"`
	Submissions []string            `json:"submissions,omitempty"`
	Outcome     Outcome             `json:"outcome,omitempty"`
}

// Progress is the clearance statistic of the Red Box
type Progress struct {
	Completed int     `json:"completed"`
	Cleared   int     `json:"cleared"`
	Total     int     `json:"total"`
	ClearRate float64 `json:"clear_rate"`
}

// Result is the verdict of one final check submission
type Result struct {
	Grade    grading.Result
	Attempt  int
	Correct  bool
	Outcome  Outcome
	Hint     string // skeleton shown after a near miss
	Answer   string // revealed once attempts run out
	Resolved bool
}

// Flow runs the Red Box over the session's legacy words
type Flow struct {
	words   []*models.Word
	states  []*WordState
	cursor  int
	mastery Mastery
	builder *drill.Builder
	logger  *zap.Logger
}

// Option configures a Flow
type Option func(*Flow)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(f *Flow) { f.logger = l }
}

// WithBuilder sets the question builder used for the final check
func WithBuilder(b *drill.Builder) Option {
	return func(f *Flow) { f.builder = b }
}

// NewFlow creates a flow over the legacy words
func NewFlow(words []*models.Word, mastery Mastery, opts ...Option) *Flow {
	f := &Flow{
		words:   words,
		states:  make([]*WordState, len(words)),
		mastery: mastery,
		logger:  zap.NewNop(),
	}
	for i, w := range words {
		f.states[i] = &WordState{WordID: w.ID, Revealed: map[OrientItem]bool{}}
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.builder == nil {
		f.builder = drill.NewBuilder(nil, nil)
	}
	return f
}

// Done reports whether every word has an outcome
func (f *Flow) Done() bool {
	return f.cursor >= len(f.words)
}

// Current returns the word being remediated
func (f *Flow) Current() (*models.Word, *WordState, bool) {
	if f.Done() {
		return nil, nil, false
	}
	return f.words[f.cursor], f.states[f.cursor], true
}

// States returns the per-word states in order
func (f *Flow) States() []WordState {
	out := make([]WordState, len(f.states))
	for i, s := range f.states {
		out[i] = *s
	}
	return out
}

// AvailableItems lists the orientation items the word has data for
func AvailableItems(w *models.Word) []OrientItem {
	var items []OrientItem
	if w.HasAudio() {
		items = append(items, ItemAudio)
	}
	if w.HasSyllables() {
		items = append(items, ItemSyllables)
	}
	if w.HasPhonetic() {
		items = append(items, ItemPhonetic)
	}
	return items
}

// AvailableWeapons lists the weapons the word has data for
func AvailableWeapons(w *models.Word) []Weapon {
	var out []Weapon
	for _, wp := range Weapons {
		if _, err := WeaponContent(w, wp); err == nil {
			out = append(out, wp)
		}
	}
	return out
}

// ItemContent returns what the student sees for a revealed orientation item
func ItemContent(w *models.Word, item OrientItem) (string, error) {
	switch {
	case item == ItemAudio && w.HasAudio():
		return w.Sound.AudioURL, nil
	case item == ItemSyllables && w.HasSyllables():
		return strings.Join(w.Sound.Syllables, "-"), nil
	case item == ItemPhonetic && w.HasPhonetic():
		return w.Sound.Phonetic, nil
	}
	return "", fmt.Errorf("%w: %s for %s", ErrUnavailable, item, w.ID)
}

// WeaponContent returns the text broadcast to the student for a weapon
func WeaponContent(w *models.Word, wp Weapon) (string, error) {
	switch {
	case wp == WeaponSyllables && w.HasSyllables():
		return strings.Join(w.Sound.Syllables, " · "), nil
	case wp == WeaponContext && w.Context() != "":
		return w.Context(), nil
	case wp == WeaponMnemonic && w.HasMnemonic():
		if m := strings.TrimSpace(w.Logic.Mnemonic); m != "" {
			return m, nil
		}
		return strings.TrimSpace(w.Logic.Analogy), nil
	case wp == WeaponComparison && w.HasConfusables():
		return w.Form + " vs " + strings.Join(w.Logic.Confusables, ", "), nil
	}
	return "", fmt.Errorf("%w: %s for %s", ErrUnavailable, wp, w.ID)
}

// Reveal shows one orientation item; items may be revealed in any order
func (f *Flow) Reveal(item OrientItem) error {
	w, st, ok := f.Current()
	if !ok {
		return ErrDone
	}
	if st.Step != StepOrient {
		return fmt.Errorf("%w: reveal during %s", ErrWrongStep, st.Step)
	}
	if _, err := ItemContent(w, item); err != nil {
		return err
	}
	st.Revealed[item] = true
	return nil
}

// SelectWeapon chooses the mnemonic aid; a later selection replaces an earlier one
func (f *Flow) SelectWeapon(wp Weapon) error {
	w, st, ok := f.Current()
	if !ok {
		return ErrDone
	}
	if st.Step != StepMnemonic {
		return fmt.Errorf("%w: weapon during %s", ErrWrongStep, st.Step)
	}
	if _, err := WeaponContent(w, wp); err != nil {
		return err
	}
	st.Weapon = wp
	return nil
}

// Next moves the current word to its next step. Leaving the mnemonic step
// needs a weapon unless forced or the word has none available.
func (f *Flow) Next(force bool) error {
	w, st, ok := f.Current()
	if !ok {
		return ErrDone
	}
	switch st.Step {
	case StepOrient:
		st.Step = StepMnemonic
	case StepMnemonic:
		if st.Weapon == "" && !force && len(AvailableWeapons(w)) > 0 {
			return ErrNoWeapon
		}
		st.Step = StepAccept
	default:
		return fmt.Errorf("%w: next during %s", ErrWrongStep, st.Step)
	}
	f.logger.Debug("red box step", zap.String("word_id", w.ID), zap.Stringer("step", st.Step))
	return nil
}

// Question returns the final check prompt for the current word
func (f *Flow) Question() (drill.Question, error) {
	w, st, ok := f.Current()
	if !ok {
		return drill.Question{}, ErrDone
	}
	if st.Step != StepAccept {
		return drill.Question{}, fmt.Errorf("%w: question during %s", ErrWrongStep, st.Step)
	}
	return f.builder.ContextSpelling(w), nil
}

// Submit grades a final check attempt. Only an exact answer passes; anything
// else consumes an attempt. The word resolves on a pass or when attempts run out.
func (f *Flow) Submit(ctx context.Context, text string, now time.Time) (Result, error) {
	w, st, ok := f.Current()
	if !ok {
		return Result{}, ErrDone
	}
	if st.Step != StepAccept {
		return Result{}, fmt.Errorf("%w: submit during %s", ErrWrongStep, st.Step)
	}

	g := grading.GradeStrict(w.Form, text)
	st.Attempts++
	res := Result{Grade: g, Attempt: st.Attempts}

	if g.Exact {
		if err := f.mastery.RemediationPassed(ctx, w.ID, now); err != nil {
			st.Attempts--
			return Result{}, fmt.Errorf("failed to record remediation pass: %w", err)
		}
		st.Outcome = OutcomeCleared
		res.Correct = true
		res.Outcome = OutcomeCleared
		res.Resolved = true
		f.resolve(w, st)
		return res, nil
	}

	st.Submissions = append(st.Submissions, text)
	if g.Tier == grading.TierDegrade {
		res.Hint = grading.Skeleton(w.Form)
	}
	if st.Attempts < MaxAttempts {
		return res, nil
	}

	if err := f.mastery.RemediationFailed(ctx, w.ID, st.Submissions, now); err != nil {
		st.Attempts--
		st.Submissions = st.Submissions[:len(st.Submissions)-1]
		return Result{}, fmt.Errorf("failed to record remediation failure: %w", err)
	}
	st.Outcome = OutcomeUnresolved
	res.Outcome = OutcomeUnresolved
	res.Answer = w.Form
	res.Resolved = true
	f.resolve(w, st)
	return res, nil
}

// Skip leaves the current word red without scoring it
func (f *Flow) Skip() error {
	w, st, ok := f.Current()
	if !ok {
		return ErrDone
	}
	st.Outcome = OutcomeSkipped
	f.resolve(w, st)
	return nil
}

// SkipRemaining marks every open word skipped
func (f *Flow) SkipRemaining() int {
	n := 0
	for !f.Done() {
		_ = f.Skip()
		n++
	}
	return n
}

// Progress reports how many words are resolved and how many were cleared
func (f *Flow) Progress() Progress {
	p := Progress{Total: len(f.states)}
	for _, st := range f.states {
		if st.Outcome != OutcomeOpen {
			p.Completed++
		}
		if st.Outcome == OutcomeCleared {
			p.Cleared++
		}
	}
	if p.Total > 0 {
		p.ClearRate = float64(p.Cleared) / float64(p.Total)
	}
	return p
}

func (f *Flow) resolve(w *models.Word, st *WordState) {
	f.logger.Info("red box word resolved",
		zap.String("word_id", w.ID),
		zap.String("outcome", string(st.Outcome)),
		zap.Int("attempts", st.Attempts))
	f.cursor++
}
