package session

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/engclass/internal/catalog"
	"github.com/example/engclass/internal/drill"
	"github.com/example/engclass/internal/remediation"
	"github.com/example/engclass/internal/spaced_repetition"
	"github.com/example/engclass/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

var testWords = []models.Word{
	{ID: "apple", Form: "apple", Meaning: "a round fruit", Contexts: []string{"She ate an apple."}},
	{ID: "river", Form: "river", Meaning: "flowing water", Contexts: []string{"The river is wide."}},
	{ID: "stone", Form: "stone", Meaning: "a small rock", Contexts: []string{"He threw a stone."}},
	{ID: "garden", Form: "garden", Meaning: "a yard with plants", Contexts: []string{"She waters the garden."},
		Sound: &models.Sound{Syllables: []string{"gar", "den"}}},
	{ID: "brook", Form: "brook", Meaning: "a small stream", Contexts: []string{"A brook ran past the mill."}},
}

type fixture struct {
	o       *Orchestrator
	tracker *spaced_repetition.Tracker
	catalog *catalog.Memory
	now     time.Time
	phases  []string
}

func newFixture(t *testing.T, words ...models.Word) *fixture {
	t.Helper()
	f := &fixture{now: t0}
	f.tracker = spaced_repetition.NewTracker(spaced_repetition.NewMemoryStore())
	f.catalog = catalog.NewMemory(words...).
		WithRand(rand.New(rand.NewSource(1))).
		WithRedSource(f.tracker)
	f.o = New(f.catalog, f.tracker,
		WithClock(func() time.Time { return f.now }),
		WithRand(rand.New(rand.NewSource(2))),
		WithPhaseHook(func(from, to Phase, forced bool) {
			s := from.String() + ">" + to.String()
			if forced {
				s += "!"
			}
			f.phases = append(f.phases, s)
		}))
	return f
}

func (f *fixture) item(t *testing.T) Item {
	t.Helper()
	item, ok := f.o.CurrentItem()
	require.True(t, ok, "no current item in %s", f.o.Phase())
	return item
}

func (f *fixture) answer(t *testing.T, correct bool) Feedback {
	t.Helper()
	item := f.item(t)
	ctx := context.Background()
	var (
		fb  Feedback
		err error
	)
	switch item.Question.Kind {
	case drill.KindChoice:
		id := "none"
		if correct {
			id = item.Question.CorrectOption
		}
		fb, err = f.o.SubmitChoice(ctx, id)
	case drill.KindText:
		text := "zzzzzzzz"
		if correct {
			text = item.Question.Answer
		}
		fb, err = f.o.SubmitText(ctx, text)
	default:
		fb, err = f.o.Acknowledge()
	}
	require.NoError(t, err)
	return fb
}

func (f *fixture) record(t *testing.T, id string) *models.MasteryRecord {
	t.Helper()
	rec, err := f.tracker.Record(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rec, id)
	return rec
}

func (f *fixture) makeRed(t *testing.T, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		require.NoError(t, f.tracker.Accept(ctx, id, t0.Add(-20*day)))
		require.NoError(t, f.tracker.ReviewFailed(ctx, id, "", t0.Add(-17*day)))
	}
}

func TestScenarioAllIntakeCorrect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[:3]...)
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 3))
	assert.Equal(t, PhaseIntake, f.o.Phase())
	assert.Len(t, f.o.State().IntakeWordList, 3)

	for i := 0; i < 3; i++ {
		fb := f.answer(t, true)
		assert.True(t, fb.Correct)
		assert.True(t, fb.Resolved)
	}
	assert.Equal(t, PhaseAcceptance, f.o.Phase())
	assert.Equal(t, []string{"warmup>intake", "intake>pronunciation", "pronunciation>drill", "drill>acceptance"}, f.phases)

	for i := 0; i < 3; i++ {
		item := f.item(t)
		assert.Equal(t, 1, item.Attempt)
		assert.Contains(t, item.Question.Prompt, drill.Blank)
		assert.True(t, f.answer(t, true).Correct)
	}
	assert.Equal(t, PhaseSummary, f.o.Phase())

	st := f.o.State()
	for _, id := range st.IntakeWordList {
		r := st.WordResults[id]
		assert.Equal(t, SourceP1Skip, r.Source)
		require.NotNil(t, r.P3Passed)
		assert.True(t, *r.P3Passed)
		assert.Equal(t, 1, r.P3Attempts)

		rec := f.record(t, id)
		assert.Equal(t, models.StatusYellow, rec.Status)
		assert.Equal(t, t0.Add(3*day), *rec.NextDueAt)
	}

	sum := f.o.Summary()
	assert.Equal(t, 3, sum.Accepted)
	assert.Equal(t, 3, sum.AcceptedFirstAttempt)
	assert.Equal(t, 3, sum.IntakeCorrect)
	assert.Empty(t, sum.Retrain)
}

func TestScenarioRedBoxClearanceRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[3], testWords[4])
	f.makeRed(t, "brook", "garden")

	require.NoError(t, f.o.InitSession(ctx, ModeRemediation, 0))
	assert.Equal(t, PhaseRedBox, f.o.Phase())
	assert.Equal(t, []string{"brook", "garden"}, f.o.State().LegacyWordList)

	// brook: cleared on attempt 1
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdNext}))
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdSelectWeapon, Arg: "context"}))
	item := f.item(t)
	assert.Equal(t, remediation.StepMnemonic, item.Step)
	assert.Equal(t, "A brook ran past the mill.", item.WeaponText)
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdNext}))
	fb, err := f.o.SubmitText(ctx, "brook")
	require.NoError(t, err)
	assert.True(t, fb.Correct)

	// garden: exhausts both attempts
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdReveal, Arg: "syllables"}))
	assert.Equal(t, "gar-den", f.item(t).Orientation["syllables"])
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdNext}))
	assert.ErrorIs(t, f.o.HandleCommand(ctx, Command{Kind: CmdNext}), remediation.ErrNoWeapon)
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdSelectWeapon, Arg: "syllables"}))
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdNext}))
	assert.Equal(t, 1, f.item(t).Attempt)

	fb, err = f.o.SubmitText(ctx, "gardan")
	require.NoError(t, err)
	assert.False(t, fb.Correct)
	assert.True(t, fb.Retry)
	assert.Equal(t, 2, f.item(t).Attempt)
	fb, err = f.o.SubmitText(ctx, "xyz")
	require.NoError(t, err)
	assert.True(t, fb.Resolved)
	assert.Equal(t, "garden", fb.Answer)

	assert.Equal(t, remediation.Progress{Completed: 2, Cleared: 1, Total: 2, ClearRate: 0.5}, f.o.RemediationProgress())
	assert.Equal(t, PhaseSummary, f.o.Phase())

	brook := f.record(t, "brook")
	assert.Equal(t, models.StatusYellow, brook.Status)
	assert.Equal(t, t0.Add(3*day), *brook.NextDueAt)
	assert.Equal(t, models.StatusRed, f.record(t, "garden").Status)
}

func TestScenarioDrillRetryThenFullSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[:2]...)
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 2))

	f.answer(t, false)
	f.answer(t, false)
	assert.Equal(t, PhasePronunciation, f.o.Phase())
	assert.Equal(t, drill.KindAck, f.item(t).Question.Kind)
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdNext}))
	f.answer(t, true)
	assert.Equal(t, PhaseDrill, f.o.Phase())

	rs, ok := f.o.DrillState()
	require.True(t, ok)
	full := rs.FixedWordSet
	require.Len(t, full, 2)
	assert.Equal(t, drill.ModalityAudioToForm, rs.RoundNumber)

	first := f.item(t)
	assert.Equal(t, drill.ModalityAudioToForm, first.Modality)
	fb := f.answer(t, false)
	assert.Equal(t, f.o.words[first.WordID].Form, fb.Answer)
	f.answer(t, true)

	rs, _ = f.o.DrillState()
	assert.Equal(t, drill.ModalityAudioToForm, rs.RoundNumber)
	assert.True(t, rs.IsRetryRound)
	assert.Equal(t, []string{first.WordID}, rs.FixedWordSet)

	f.answer(t, true)
	rs, _ = f.o.DrillState()
	assert.Equal(t, drill.ModalityFlashToMeaning, rs.RoundNumber)
	assert.False(t, rs.IsRetryRound)
	assert.Equal(t, full, rs.FixedWordSet)
}

func TestDrillCompletesIntoAcceptance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[:3]...)
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 3))

	f.answer(t, false)
	f.answer(t, true)
	f.answer(t, true)
	f.answer(t, true) // pronunciation
	require.Equal(t, PhaseDrill, f.o.Phase())

	for f.o.Phase() == PhaseDrill {
		item := f.item(t)
		if item.Modality == drill.ModalitySkeletonSpelling {
			assert.Equal(t, drill.KindText, item.Question.Kind)
			assert.NotEmpty(t, item.Question.Hint)
			fb, err := f.o.SubmitText(ctx, item.Question.Answer+"x")
			require.NoError(t, err)
			assert.True(t, fb.Retry, "a slip stays open")
		}
		f.answer(t, true)
	}
	assert.Equal(t, PhaseAcceptance, f.o.Phase())

	trained := 0
	for _, r := range f.o.State().WordResults {
		if r.Source == SourceP2Trained {
			trained++
		}
	}
	assert.Equal(t, 1, trained)
}

func TestAcceptanceAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[3])
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 1))
	f.answer(t, true)
	require.Equal(t, PhaseAcceptance, f.o.Phase())

	fb, err := f.o.SubmitText(ctx, "gardan")
	require.NoError(t, err)
	assert.True(t, fb.Retry)
	assert.Equal(t, 1, f.item(t).Attempt, "a slip does not use an attempt")

	fb, err = f.o.SubmitText(ctx, "gaxxen")
	require.NoError(t, err)
	assert.Equal(t, "g _ _ _ _ n", fb.Hint)
	item := f.item(t)
	assert.Equal(t, 2, item.Attempt)
	assert.Equal(t, "g _ _ _ _ n", item.Hint)

	fb, err = f.o.SubmitText(ctx, "Garden")
	require.NoError(t, err)
	assert.True(t, fb.Correct)

	r := f.o.State().WordResults["garden"]
	assert.True(t, *r.P3Passed)
	assert.Equal(t, 2, r.P3Attempts)
	assert.True(t, r.P3Degraded)
	rec := f.record(t, "garden")
	assert.Equal(t, models.StatusYellow, rec.Status)
	assert.Equal(t, t0.Add(3*day), *rec.NextDueAt)
}

func TestShownAnswerEndsWithTheAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[3])
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 1))
	f.answer(t, true)
	require.Equal(t, PhaseAcceptance, f.o.Phase())

	first := f.item(t)
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdShowAnswer}))
	assert.True(t, f.item(t).Revealed)
	assert.Equal(t, first.Key, f.item(t).Key)

	_, err := f.o.SubmitText(ctx, "xyz")
	require.NoError(t, err)
	second := f.item(t)
	assert.Equal(t, 2, second.Attempt)
	assert.NotEqual(t, first.Key, second.Key)
	assert.False(t, second.Revealed)
	assert.Equal(t, first.Question, second.Question)
}

func TestFailedAcceptanceRoutesBackToDrill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[:2]...)
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 2))
	f.answer(t, true)
	f.answer(t, true)

	failedID := f.item(t).WordID
	fb := f.answer(t, false)
	assert.Empty(t, fb.Hint)
	assert.Equal(t, f.o.words[failedID].Form, fb.Answer)
	fb = f.answer(t, false)
	assert.True(t, fb.Resolved)
	f.answer(t, true)
	require.Equal(t, PhaseSummary, f.o.Phase())

	rec := f.record(t, failedID)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.True(t, rec.RetrainQueued)
	assert.Equal(t, []string{failedID}, f.o.Summary().Retrain)

	var passedID string
	for _, id := range f.o.State().IntakeWordList {
		if id != failedID {
			passedID = id
		}
	}
	assert.ErrorIs(t, f.o.RouteToDrill([]string{passedID}), ErrNotRoutable)
	assert.ErrorIs(t, f.o.RouteToDrill([]string{"nope"}), ErrUnknownWord)

	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdRetrain, WordIDs: []string{failedID}}))
	assert.Equal(t, PhaseDrill, f.o.Phase())
	rs, _ := f.o.DrillState()
	assert.Equal(t, []string{failedID}, rs.FixedWordSet)
	assert.ErrorIs(t, f.o.RouteToDrill([]string{failedID}), ErrWrongPhase)

	for f.o.Phase() == PhaseDrill {
		f.answer(t, true)
	}
	require.Equal(t, PhaseAcceptance, f.o.Phase())
	assert.Equal(t, failedID, f.item(t).WordID)
	f.answer(t, true)

	assert.Equal(t, PhaseSummary, f.o.Phase())
	assert.Equal(t, models.StatusYellow, f.record(t, failedID).Status)
	assert.Equal(t, 2, f.o.Summary().Accepted)
}

func TestAdvancePhase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[:3]...)

	assert.ErrorIs(t, f.o.AdvancePhase(ctx, false), ErrNoSession)
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 3))

	f.answer(t, false)
	err := f.o.AdvancePhase(ctx, false)
	assert.ErrorIs(t, err, ErrPhaseIncomplete)
	assert.Equal(t, PhaseIntake, f.o.Phase())

	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdForceAdvance}))
	assert.Equal(t, PhasePronunciation, f.o.Phase())
	assert.Contains(t, f.phases, "intake>pronunciation!")

	skipped := 0
	for _, r := range f.o.State().WordResults {
		if r.P1Skipped {
			skipped++
			assert.Equal(t, SourceP1Skip, r.Source)
			assert.False(t, r.NeedsTraining)
		}
	}
	assert.Equal(t, 2, skipped)

	require.NoError(t, f.o.AdvancePhase(ctx, true))
	require.Equal(t, PhaseDrill, f.o.Phase())
	rs, _ := f.o.DrillState()
	assert.Len(t, rs.FixedWordSet, 1)

	require.NoError(t, f.o.AdvancePhase(ctx, true))
	require.Equal(t, PhaseAcceptance, f.o.Phase())
	assert.Equal(t, 3, f.o.Progress().Total)

	require.NoError(t, f.o.AdvancePhase(ctx, true))
	assert.Equal(t, PhaseSummary, f.o.Phase())
	assert.Equal(t, 3, f.o.Summary().AcceptanceSkipped)
	assert.NoError(t, f.o.AdvancePhase(ctx, true))
	assert.ErrorIs(t, f.o.AdvancePhase(ctx, false), ErrSessionOver)

	queue, err := f.tracker.RetrainQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 3)
}

func TestCarryOverWordsGoStraightToDrill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[:3]...)
	require.NoError(t, f.tracker.QueueRetrain(ctx, "river", []string{"rivr"}, t0.Add(-day)))

	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 3))
	st := f.o.State()
	assert.Equal(t, []string{"river"}, st.CarryOverList)
	assert.Len(t, st.IntakeWordList, 2)
	assert.NotContains(t, st.IntakeWordList, "river")

	f.answer(t, true)
	f.answer(t, true)
	require.Equal(t, PhaseDrill, f.o.Phase())
	rs, _ := f.o.DrillState()
	assert.Equal(t, []string{"river"}, rs.FixedWordSet)
}

func TestSingleWordIntakeOffersMeaningDecoys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords...)
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 1))
	require.Len(t, f.o.State().IntakeWordList, 1)

	item := f.item(t)
	assert.Equal(t, drill.MeaningChoice, item.Question.Type)
	require.Len(t, item.Question.Options, 1+drill.MinDistractors)
	seen := map[string]bool{}
	for _, opt := range item.Question.Options {
		assert.NotEmpty(t, opt.Text)
		seen[opt.Text] = true
	}
	assert.Len(t, seen, 1+drill.MinDistractors)

	fb := f.answer(t, false)
	assert.False(t, fb.Correct)
	assert.False(t, *f.o.State().WordResults[item.WordID].P1Result)
}

func TestWarmupReviews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords...)
	for _, id := range []string{"apple", "garden", "stone"} {
		require.NoError(t, f.tracker.Accept(ctx, id, t0.Add(-3*day)))
	}

	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 0))
	require.Equal(t, PhaseWarmup, f.o.Phase())
	assert.Equal(t, 3, f.o.Progress().Total)

	answers := map[string]func(){
		"apple": func() {
			fb, err := f.o.SubmitText(ctx, "apple")
			require.NoError(t, err)
			assert.True(t, fb.Correct)
		},
		"garden": func() {
			fb, err := f.o.SubmitText(ctx, "gaxxen")
			require.NoError(t, err)
			assert.True(t, fb.Retry)
			assert.Equal(t, "g _ _ _ _ n", f.item(t).Hint)
			fb, err = f.o.SubmitText(ctx, "garden")
			require.NoError(t, err)
			assert.True(t, fb.Correct)
		},
		"stone": func() {
			fb, err := f.o.SubmitText(ctx, "xyz")
			require.NoError(t, err)
			assert.Equal(t, "stone", fb.Answer)
		},
	}
	for f.o.Phase() == PhaseWarmup {
		item := f.item(t)
		assert.Equal(t, drill.Review, item.Question.Type)
		answers[item.WordID]()
	}
	assert.Equal(t, PhaseSummary, f.o.Phase())

	apple := f.record(t, "apple")
	assert.Equal(t, 1, apple.ReviewCount)
	assert.Equal(t, t0.Add(3*day), *apple.NextDueAt)

	garden := f.record(t, "garden")
	assert.Equal(t, models.StatusYellow, garden.Status)
	assert.Equal(t, 0, garden.ReviewCount)
	assert.Equal(t, []string{"gaxxen"}, garden.ErrorPatterns)

	assert.Equal(t, models.StatusRed, f.record(t, "stone").Status)

	sum := f.o.Summary()
	assert.Equal(t, 1, sum.WarmupPassed)
	assert.Equal(t, 1, sum.WarmupDegraded)
	assert.Equal(t, 1, sum.WarmupFailed)
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords[:3]...)
	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 3))

	item := f.item(t)
	assert.False(t, item.Revealed)
	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdShowAnswer}))
	assert.True(t, f.item(t).Revealed)
	assert.Equal(t, item.Question, f.item(t).Question, "question is stable")

	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdRepeat}))
	assert.False(t, f.item(t).Revealed)

	require.NoError(t, f.o.HandleCommand(ctx, Command{Kind: CmdSkip}))
	assert.NotEqual(t, item.WordID, f.item(t).WordID)
	assert.True(t, f.o.State().WordResults[item.WordID].P1Skipped)
	assert.Equal(t, 1, f.o.State().CurrentWordIndex)

	assert.ErrorIs(t, f.o.HandleCommand(ctx, Command{Kind: CmdSelectWeapon, Arg: "context"}), ErrWrongPhase)
	assert.ErrorIs(t, f.o.HandleCommand(ctx, Command{Kind: "dance"}), ErrUnknownCommand)
	assert.ErrorIs(t, f.o.RecordIntakeResult(item.WordID, true), ErrAlreadyGraded)

	_, err := f.o.SubmitText(ctx, "apple")
	assert.ErrorIs(t, err, ErrWrongKind)

	require.NoError(t, f.o.RecordIntakeResult(f.item(t).WordID, true))
	assert.Equal(t, newProgress(2, 3), f.o.Progress())

	k, err := ParseCommandKind("FORCEADVANCE")
	require.NoError(t, err)
	assert.Equal(t, CmdForceAdvance, k)
}

func TestInitSessionValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testWords...)
	assert.ErrorIs(t, f.o.InitSession(ctx, "chaos", 1), ErrInvalidMode)
	assert.Error(t, f.o.InitSession(ctx, ModeStandard, -1))
	assert.False(t, f.o.Ready())

	_, ok := f.o.CurrentItem()
	assert.False(t, ok)

	require.NoError(t, f.o.InitSession(ctx, ModeStandard, 10))
	assert.Len(t, f.o.State().IntakeWordList, len(testWords))
	stats, err := f.o.WordStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testWords), stats.Pending)
}
