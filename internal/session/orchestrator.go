// Package session sequences a classroom session through its phases and keeps
// the per-session outcome of every word.
//
// An Orchestrator is not safe for concurrent use; the classroom actor owns it
// and serializes every call.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/engclass/internal/catalog"
	"github.com/example/engclass/internal/drill"
	"github.com/example/engclass/internal/grading"
	"github.com/example/engclass/internal/remediation"
	"github.com/example/engclass/internal/spaced_repetition"
	"github.com/example/engclass/internal/training"
	"github.com/example/engclass/pkg/models"
)

// intakeOverfetch is how many candidates are drawn per intake slot so that
// words the student already knows can be dropped
const intakeOverfetch = 4

// Mastery is the long-lived word state the session reports into
type Mastery interface {
	remediation.Mastery
	Record(ctx context.Context, wordID string) (*models.MasteryRecord, error)
	Track(ctx context.Context, wordID string) error
	Accept(ctx context.Context, wordID string, now time.Time) error
	QueueRetrain(ctx context.Context, wordID string, submitted []string, now time.Time) error
	ReviewPassed(ctx context.Context, wordID string, now time.Time) error
	ReviewDegraded(ctx context.Context, wordID, submitted string, now time.Time) error
	ReviewFailed(ctx context.Context, wordID, submitted string, now time.Time) error
	DueWords(ctx context.Context, now time.Time) ([]models.MasteryRecord, error)
	RetrainQueue(ctx context.Context) ([]models.MasteryRecord, error)
	Stats(ctx context.Context) (spaced_repetition.Stats, error)
}

// PhaseHook observes every phase transition
type PhaseHook func(from, to Phase, forced bool)

// GradeHook observes every typed answer run through the tolerance funnel
type GradeHook func(phase Phase, r grading.Result)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRand sets the source used to shuffle options
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rnd = r }
}

// WithPhaseHook registers a phase transition hook
func WithPhaseHook(h PhaseHook) Option {
	return func(o *Orchestrator) { o.phaseHooks = append(o.phaseHooks, h) }
}

// WithGradeHook registers a grading hook
func WithGradeHook(h GradeHook) Option {
	return func(o *Orchestrator) { o.gradeHooks = append(o.gradeHooks, h) }
}

type warmupItem struct {
	wordID    string
	hinted    bool
	firstMiss string
	outcome   ReviewOutcome
}

type acceptanceItem struct {
	attempts    int
	submissions []string
	hint        string
	degraded    bool
}

// Orchestrator is the session phase machine
type Orchestrator struct {
	catalog    catalog.Catalog
	mastery    Mastery
	logger     *zap.Logger
	now        func() time.Time
	rnd        *rand.Rand
	phaseHooks []PhaseHook
	gradeHooks []GradeHook

	ready   bool
	state   State
	words   map[string]*models.Word
	builder *drill.Builder

	warmup       []*warmupItem
	warmupCursor int
	redBox       *remediation.Flow
	engine       *training.Engine
	routed       []string
	accepting    map[string]*acceptanceItem

	question    *drill.Question
	questionKey string
	revealedKey string
}

// New creates an orchestrator; call InitSession before anything else
func New(c catalog.Catalog, m Mastery, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog: c,
		mastery: m,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rnd == nil {
		o.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// InitSession loads the session's word lists and resets the phase to warm-up.
// Phases without work are passed through immediately.
func (o *Orchestrator) InitSession(ctx context.Context, mode Mode, intakeSize int) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	if intakeSize < 0 {
		return fmt.Errorf("session: invalid intake size %d", intakeSize)
	}
	now := o.now()
	words := make(map[string]*models.Word)

	carry, err := o.loadCarryOver(ctx, words)
	if err != nil {
		return err
	}
	warm, err := o.loadDue(ctx, now, words)
	if err != nil {
		return err
	}
	var legacy []*models.Word
	if mode == ModeRemediation {
		red, err := o.catalog.GetRedWords(ctx)
		if err != nil {
			return fmt.Errorf("failed to get red words: %w", err)
		}
		for i := range red {
			w := &red[i]
			words[w.ID] = w
			legacy = append(legacy, w)
		}
	}
	intake, err := o.pickIntake(ctx, intakeSize, words)
	if err != nil {
		return err
	}

	st := State{
		ID:          uuid.NewString(),
		Mode:        mode,
		Phase:       PhaseWarmup,
		WordResults: make(map[string]*WordResult, len(intake)+len(carry)),
		StartedAt:   now,
	}
	for _, w := range intake {
		if err := o.mastery.Track(ctx, w.ID); err != nil {
			return fmt.Errorf("failed to track intake word: %w", err)
		}
		st.IntakeWordList = append(st.IntakeWordList, w.ID)
		st.WordResults[w.ID] = &WordResult{WordID: w.ID}
	}
	for _, w := range carry {
		st.CarryOverList = append(st.CarryOverList, w.ID)
		st.WordResults[w.ID] = &WordResult{WordID: w.ID, CarryOver: true, NeedsTraining: true, Source: SourceP2Trained}
	}
	for _, w := range legacy {
		st.LegacyWordList = append(st.LegacyWordList, w.ID)
	}

	pool := o.decoyPool(ctx, words)

	o.state = st
	o.words = words
	o.builder = drill.NewBuilder(pool, o.rnd)
	o.warmup = make([]*warmupItem, 0, len(warm))
	for _, w := range warm {
		o.warmup = append(o.warmup, &warmupItem{wordID: w.ID})
		o.state.WarmupWordList = append(o.state.WarmupWordList, w.ID)
	}
	o.warmupCursor = 0
	o.redBox = nil
	if mode == ModeRemediation {
		o.redBox = remediation.NewFlow(legacy, o.mastery, remediation.WithLogger(o.logger), remediation.WithBuilder(o.builder))
	}
	o.engine = nil
	o.routed = nil
	o.accepting = make(map[string]*acceptanceItem)
	o.resetItem()
	o.ready = true

	o.logger.Info("session initialized",
		zap.String("session_id", st.ID),
		zap.String("mode", string(mode)),
		zap.Int("intake", len(st.IntakeWordList)),
		zap.Int("carry_over", len(st.CarryOverList)),
		zap.Int("legacy", len(st.LegacyWordList)),
		zap.Int("due", len(o.warmup)))

	o.settle()
	return nil
}

// decoyPool holds the session's words plus a few extra catalog words, so
// meaning questions have wrong meanings to offer even in a one-word session
func (o *Orchestrator) decoyPool(ctx context.Context, words map[string]*models.Word) []models.Word {
	pool := make([]models.Word, 0, len(words)+drill.MinDistractors+1)
	for _, w := range words {
		pool = append(pool, *w)
	}
	extra, err := o.catalog.GetRandomWords(ctx, drill.MinDistractors+1)
	if err != nil {
		o.logger.Warn("failed to get decoy words", zap.Error(err))
		return pool
	}
	for _, w := range extra {
		if _, ok := words[w.ID]; !ok {
			pool = append(pool, w)
		}
	}
	return pool
}

func (o *Orchestrator) loadCarryOver(ctx context.Context, words map[string]*models.Word) ([]*models.Word, error) {
	queue, err := o.mastery.RetrainQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get retrain queue: %w", err)
	}
	return o.resolveWords(ctx, queue, words)
}

func (o *Orchestrator) loadDue(ctx context.Context, now time.Time, words map[string]*models.Word) ([]*models.Word, error) {
	due, err := o.mastery.DueWords(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get due words: %w", err)
	}
	return o.resolveWords(ctx, due, words)
}

func (o *Orchestrator) resolveWords(ctx context.Context, recs []models.MasteryRecord, words map[string]*models.Word) ([]*models.Word, error) {
	out := make([]*models.Word, 0, len(recs))
	for _, r := range recs {
		w, err := o.catalog.GetWordByID(ctx, r.WordID)
		if err != nil {
			return nil, fmt.Errorf("failed to get word: %w", err)
		}
		if w == nil {
			o.logger.Warn("word missing from catalog", zap.String("word_id", r.WordID))
			continue
		}
		words[w.ID] = w
		out = append(out, w)
	}
	return out, nil
}

// pickIntake draws new words the student has no record of
func (o *Orchestrator) pickIntake(ctx context.Context, n int, taken map[string]*models.Word) ([]*models.Word, error) {
	if n == 0 {
		return nil, nil
	}
	candidates, err := o.catalog.GetRandomWords(ctx, n*intakeOverfetch)
	if err != nil {
		return nil, fmt.Errorf("failed to get random words: %w", err)
	}
	out := make([]*models.Word, 0, n)
	for i := range candidates {
		w := &candidates[i]
		if len(out) == n {
			break
		}
		if _, ok := taken[w.ID]; ok {
			continue
		}
		rec, err := o.mastery.Record(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get mastery record: %w", err)
		}
		if rec != nil {
			continue
		}
		taken[w.ID] = w
		out = append(out, w)
	}
	return out, nil
}

// AdvancePhase moves to the next phase of the mode. Without explicit the
// current phase must be complete; an explicit advance marks every untested
// word of the phase skipped and never fails.
func (o *Orchestrator) AdvancePhase(ctx context.Context, explicit bool) error {
	if !o.ready {
		return ErrNoSession
	}
	if o.state.Phase == PhaseSummary {
		if explicit {
			return nil
		}
		return ErrSessionOver
	}
	forced := false
	if !o.phaseComplete() {
		if !explicit {
			return fmt.Errorf("%w: %s", ErrPhaseIncomplete, o.state.Phase)
		}
		o.skipRemaining(ctx)
		forced = true
	}
	o.transition(o.state.Mode.next(o.state.Phase), forced)
	o.settle()
	return nil
}

// RecordIntakeResult stores the intake verdict of a word. A miss flags it for the drill.
func (o *Orchestrator) RecordIntakeResult(wordID string, correct bool) error {
	if !o.ready {
		return ErrNoSession
	}
	if o.state.Phase != PhaseIntake {
		return fmt.Errorf("%w: intake result during %s", ErrWrongPhase, o.state.Phase)
	}
	r, ok := o.state.WordResults[wordID]
	if !ok || r.CarryOver {
		return fmt.Errorf("%w: %s", ErrUnknownWord, wordID)
	}
	if r.P1Result != nil || r.P1Skipped {
		return fmt.Errorf("%w: %s", ErrAlreadyGraded, wordID)
	}
	r.P1Result = &correct
	if correct {
		r.Source = SourceP1Skip
	} else {
		r.NeedsTraining = true
		r.Source = SourceP2Trained
	}
	o.resetItem()
	o.settle()
	return nil
}

// RouteToDrill sends words that failed acceptance back into a drill over
// exactly those words. It is the only backward transition.
func (o *Orchestrator) RouteToDrill(wordIDs []string) error {
	if !o.ready {
		return ErrNoSession
	}
	if o.state.Phase != PhaseAcceptance && o.state.Phase != PhaseSummary {
		return fmt.Errorf("%w: route to drill during %s", ErrWrongPhase, o.state.Phase)
	}
	if len(wordIDs) == 0 {
		return fmt.Errorf("%w: no words", ErrNotRoutable)
	}
	seen := make(map[string]bool, len(wordIDs))
	ids := make([]string, 0, len(wordIDs))
	for _, id := range wordIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		r, ok := o.state.WordResults[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownWord, id)
		}
		if r.P3Passed == nil || *r.P3Passed {
			return fmt.Errorf("%w: %s", ErrNotRoutable, id)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		r := o.state.WordResults[id]
		r.P3Passed = nil
		r.P3Attempts = 0
		r.P3Degraded = false
		r.NeedsTraining = true
		r.Source = SourceP2Trained
		delete(o.accepting, id)
	}
	o.routed = ids
	o.logger.Info("words routed to drill", zap.Strings("word_ids", ids))
	o.transition(PhaseDrill, false)
	o.settle()
	return nil
}

// Phase returns the current phase
func (o *Orchestrator) Phase() Phase {
	return o.state.Phase
}

// Ready reports whether a session has been initialized
func (o *Orchestrator) Ready() bool {
	return o.ready
}

// Word returns a session word by id
func (o *Orchestrator) Word(id string) (*models.Word, bool) {
	w, ok := o.words[id]
	return w, ok
}

// CurrentWord returns the word of the current item
func (o *Orchestrator) CurrentWord() (*models.Word, bool) {
	item, ok := o.CurrentItem()
	if !ok {
		return nil, false
	}
	return o.Word(item.WordID)
}

// State returns a deep copy of the session state
func (o *Orchestrator) State() State {
	s := o.state
	s.CompletedPhases = append([]Phase(nil), o.state.CompletedPhases...)
	s.IntakeWordList = append([]string(nil), o.state.IntakeWordList...)
	s.LegacyWordList = append([]string(nil), o.state.LegacyWordList...)
	s.CarryOverList = append([]string(nil), o.state.CarryOverList...)
	s.WarmupWordList = append([]string(nil), o.state.WarmupWordList...)
	s.WordResults = make(map[string]*WordResult, len(o.state.WordResults))
	for id, r := range o.state.WordResults {
		c := *r
		if r.P1Result != nil {
			v := *r.P1Result
			c.P1Result = &v
		}
		if r.P3Passed != nil {
			v := *r.P3Passed
			c.P3Passed = &v
		}
		s.WordResults[id] = &c
	}
	s.CurrentWordIndex = o.currentIndex()
	return s
}

// Progress counts finished items of the current phase
func (o *Orchestrator) Progress() PhaseProgress {
	if !o.ready {
		return PhaseProgress{}
	}
	switch o.state.Phase {
	case PhaseWarmup:
		return newProgress(o.warmupCursor, len(o.warmup))
	case PhaseRedBox:
		p := o.redBox.Progress()
		return newProgress(p.Completed, p.Total)
	case PhaseIntake:
		done := 0
		for _, id := range o.state.IntakeWordList {
			if r := o.state.WordResults[id]; r.P1Result != nil || r.P1Skipped {
				done++
			}
		}
		return newProgress(done, len(o.state.IntakeWordList))
	case PhasePronunciation:
		missed := o.missedAtIntake()
		done := 0
		for _, id := range missed {
			if o.state.WordResults[id].P15Done {
				done++
			}
		}
		return newProgress(done, len(missed))
	case PhaseDrill:
		return newProgress(o.engine.Progress())
	case PhaseAcceptance:
		words := o.acceptanceWords()
		done := 0
		for _, id := range words {
			if !o.state.WordResults[id].acceptanceOpen() {
				done++
			}
		}
		return newProgress(done, len(words))
	}
	return newProgress(0, 0)
}

// RemediationProgress reports the Red Box clearance statistic
func (o *Orchestrator) RemediationProgress() remediation.Progress {
	if o.redBox == nil {
		return remediation.Progress{}
	}
	return o.redBox.Progress()
}

// DrillState returns the live drill round, if a drill has started
func (o *Orchestrator) DrillState() (training.RoundState, bool) {
	if o.engine == nil {
		return training.RoundState{}, false
	}
	return o.engine.State(), true
}

// WordStats counts the student's words per mastery tier
func (o *Orchestrator) WordStats(ctx context.Context) (spaced_repetition.Stats, error) {
	return o.mastery.Stats(ctx)
}

func (o *Orchestrator) transition(to Phase, forced bool) {
	from := o.state.Phase
	o.state.CompletedPhases = append(o.state.CompletedPhases, from)
	o.state.Phase = to
	o.resetItem()
	if to == PhaseDrill {
		words := o.routed
		if words == nil {
			words = o.drillWords()
		}
		o.routed = nil
		o.engine = training.New(words)
	}

	o.logger.Info("phase transition",
		zap.String("session_id", o.state.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Bool("forced", forced))
	for _, h := range o.phaseHooks {
		h(from, to, forced)
	}
}

// settle passes through every phase that has nothing left to do
func (o *Orchestrator) settle() {
	for o.state.Phase != PhaseSummary && o.phaseComplete() {
		o.transition(o.state.Mode.next(o.state.Phase), false)
	}
}

func (o *Orchestrator) phaseComplete() bool {
	switch o.state.Phase {
	case PhaseWarmup:
		return o.warmupCursor >= len(o.warmup)
	case PhaseRedBox:
		return o.redBox == nil || o.redBox.Done()
	case PhaseIntake:
		for _, id := range o.state.IntakeWordList {
			if r := o.state.WordResults[id]; r.P1Result == nil && !r.P1Skipped {
				return false
			}
		}
	case PhasePronunciation:
		for _, id := range o.missedAtIntake() {
			if !o.state.WordResults[id].P15Done {
				return false
			}
		}
	case PhaseDrill:
		return o.engine == nil || o.engine.Done()
	case PhaseAcceptance:
		for _, id := range o.acceptanceWords() {
			if o.state.WordResults[id].acceptanceOpen() {
				return false
			}
		}
	}
	return true
}

// skipRemaining marks every untested item of the current phase skipped
func (o *Orchestrator) skipRemaining(ctx context.Context) {
	skipped := 0
	switch o.state.Phase {
	case PhaseWarmup:
		for ; o.warmupCursor < len(o.warmup); o.warmupCursor++ {
			o.warmup[o.warmupCursor].outcome = ReviewSkipped
			skipped++
		}
	case PhaseRedBox:
		skipped = o.redBox.SkipRemaining()
	case PhaseIntake:
		for _, id := range o.state.IntakeWordList {
			if r := o.state.WordResults[id]; r.P1Result == nil && !r.P1Skipped {
				r.P1Skipped = true
				r.Source = SourceP1Skip
				skipped++
			}
		}
	case PhasePronunciation:
		for _, id := range o.missedAtIntake() {
			if r := o.state.WordResults[id]; !r.P15Done {
				r.P15Done = true
				skipped++
			}
		}
	case PhaseDrill:
		if _, _, ok := o.engine.Current(); ok {
			skipped++
		}
		o.engine.Abort()
	case PhaseAcceptance:
		for _, id := range o.acceptanceWords() {
			if o.state.WordResults[id].acceptanceOpen() {
				o.skipAcceptance(ctx, id)
				skipped++
			}
		}
	}
	o.logger.Info("forced advance", zap.Stringer("phase", o.state.Phase), zap.Int("skipped", skipped))
}

// missedAtIntake lists intake words answered wrong, in intake order
func (o *Orchestrator) missedAtIntake() []string {
	var out []string
	for _, id := range o.state.IntakeWordList {
		if r := o.state.WordResults[id]; r.P1Result != nil && !*r.P1Result {
			out = append(out, id)
		}
	}
	return out
}

// acceptanceWords lists every word the gate applies to: intake words then carry-over words
func (o *Orchestrator) acceptanceWords() []string {
	out := make([]string, 0, len(o.state.IntakeWordList)+len(o.state.CarryOverList))
	out = append(out, o.state.IntakeWordList...)
	return append(out, o.state.CarryOverList...)
}

func (o *Orchestrator) drillWords() []string {
	var out []string
	for _, id := range o.acceptanceWords() {
		if r := o.state.WordResults[id]; r.NeedsTraining && r.acceptanceOpen() {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) observeGrade(r grading.Result) {
	for _, h := range o.gradeHooks {
		h(o.state.Phase, r)
	}
}
