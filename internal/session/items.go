package session

import (
	"context"
	"fmt"

	"github.com/example/engclass/internal/drill"
	"github.com/example/engclass/internal/grading"
	"github.com/example/engclass/internal/remediation"
)

// CurrentItem returns the question awaiting an answer, if any.
// The question is stable until the item is answered, skipped or repeated.
func (o *Orchestrator) CurrentItem() (Item, bool) {
	item, ok := o.currentItem()
	if !ok {
		return Item{}, false
	}
	item.Key = fmt.Sprintf("%s/%d", o.questionKey, item.Attempt)
	item.Revealed = o.revealedKey == item.Key
	return item, true
}

func (o *Orchestrator) currentItem() (Item, bool) {
	if !o.ready {
		return Item{}, false
	}
	switch o.state.Phase {
	case PhaseWarmup:
		wi := o.currentWarmup()
		if wi == nil {
			return Item{}, false
		}
		w := o.words[wi.wordID]
		item := o.item(wi.wordID, 0, func() drill.Question { return o.builder.ReviewSpelling(w) })
		if wi.hinted {
			item.Hint = grading.Skeleton(w.Form)
		}
		return item, true

	case PhaseRedBox:
		return o.redBoxItem()

	case PhaseIntake:
		id, ok := o.currentIntake()
		if !ok {
			return Item{}, false
		}
		w := o.words[id]
		return o.item(id, 0, func() drill.Question { return o.builder.MeaningChoice(w) }), true

	case PhasePronunciation:
		id, ok := o.currentPronunciation()
		if !ok {
			return Item{}, false
		}
		w := o.words[id]
		return o.item(id, 0, func() drill.Question { return o.builder.PronunciationPass(w) }), true

	case PhaseDrill:
		id, m, ok := o.engine.Current()
		if !ok {
			return Item{}, false
		}
		w := o.words[id]
		item := o.item(id, o.engine.State().Pass, func() drill.Question { return o.builder.ForModality(w, m) })
		item.Modality = m
		return item, true

	case PhaseAcceptance:
		id, ok := o.currentAcceptance()
		if !ok {
			return Item{}, false
		}
		w := o.words[id]
		item := o.item(id, 0, func() drill.Question { return o.builder.ContextSpelling(w) })
		item.Attempt = 1
		if ai := o.accepting[id]; ai != nil {
			item.Attempt = ai.attempts + 1
			item.Hint = ai.hint
		}
		return item, true
	}
	return Item{}, false
}

func (o *Orchestrator) redBoxItem() (Item, bool) {
	w, st, ok := o.redBox.Current()
	if !ok {
		return Item{}, false
	}
	var item Item
	if st.Step == remediation.StepAccept {
		item = o.item(w.ID, int(st.Step), func() drill.Question {
			q, _ := o.redBox.Question()
			return q
		})
		item.Attempt = st.Attempts + 1
	} else {
		item = o.item(w.ID, int(st.Step), func() drill.Question { return o.builder.PronunciationPass(w) })
	}
	item.Step = st.Step
	item.Weapon = st.Weapon
	item.Weapons = remediation.AvailableWeapons(w)
	item.Items = remediation.AvailableItems(w)
	if st.Weapon != "" {
		item.WeaponText, _ = remediation.WeaponContent(w, st.Weapon)
	}
	if len(st.Revealed) > 0 {
		item.Orientation = make(map[string]string, len(st.Revealed))
		for it := range st.Revealed {
			item.Orientation[string(it)], _ = remediation.ItemContent(w, it)
		}
	}
	return item, true
}

// item wraps the cached question for a word; build runs only when the item changed
func (o *Orchestrator) item(wordID string, pass int, build func() drill.Question) Item {
	key := fmt.Sprintf("%s/%s/%d", o.state.Phase, wordID, pass)
	if o.question == nil || o.questionKey != key {
		q := build()
		o.question = &q
		o.questionKey = key
	}
	return Item{
		Phase:    o.state.Phase,
		WordID:   wordID,
		Question: *o.question,
	}
}

func (o *Orchestrator) resetItem() {
	o.question = nil
	o.questionKey = ""
	o.revealedKey = ""
}

func (o *Orchestrator) currentWarmup() *warmupItem {
	if o.warmupCursor >= len(o.warmup) {
		return nil
	}
	return o.warmup[o.warmupCursor]
}

func (o *Orchestrator) currentIntake() (string, bool) {
	for _, id := range o.state.IntakeWordList {
		if r := o.state.WordResults[id]; r.P1Result == nil && !r.P1Skipped {
			return id, true
		}
	}
	return "", false
}

func (o *Orchestrator) currentPronunciation() (string, bool) {
	for _, id := range o.missedAtIntake() {
		if !o.state.WordResults[id].P15Done {
			return id, true
		}
	}
	return "", false
}

func (o *Orchestrator) currentAcceptance() (string, bool) {
	for _, id := range o.acceptanceWords() {
		if o.state.WordResults[id].acceptanceOpen() {
			return id, true
		}
	}
	return "", false
}

// currentIndex is the position of the current word in its phase's list
func (o *Orchestrator) currentIndex() int {
	switch o.state.Phase {
	case PhaseWarmup:
		return o.warmupCursor
	case PhaseRedBox:
		return o.redBox.Progress().Completed
	case PhaseDrill:
		return o.engine.State().Cursor
	}
	item, ok := o.CurrentItem()
	if !ok {
		return 0
	}
	var list []string
	switch o.state.Phase {
	case PhaseIntake:
		list = o.state.IntakeWordList
	case PhasePronunciation:
		list = o.missedAtIntake()
	case PhaseAcceptance:
		list = o.acceptanceWords()
	}
	for i, id := range list {
		if id == item.WordID {
			return i
		}
	}
	return 0
}

// SubmitChoice answers a multiple choice item
func (o *Orchestrator) SubmitChoice(ctx context.Context, optionID string) (Feedback, error) {
	item, ok := o.CurrentItem()
	if !ok {
		return Feedback{}, ErrNoItem
	}
	if item.Question.Kind != drill.KindChoice {
		return Feedback{}, fmt.Errorf("%w: %s expects %s", ErrWrongKind, item.Question.Type, item.Question.Kind)
	}
	correct := item.Question.IsCorrectOption(optionID)
	fb := Feedback{Phase: item.Phase, WordID: item.WordID, Correct: correct, Resolved: true}
	if !correct {
		fb.Answer = item.Question.Answer
	}

	switch item.Phase {
	case PhaseIntake:
		if err := o.RecordIntakeResult(item.WordID, correct); err != nil {
			return Feedback{}, err
		}
		return fb, nil
	case PhaseDrill:
		o.engine.Report(correct)
	}
	o.resetItem()
	o.settle()
	return fb, nil
}

// SubmitText answers a typed item. A slip keeps the item open for correction.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) (Feedback, error) {
	item, ok := o.CurrentItem()
	if !ok {
		return Feedback{}, ErrNoItem
	}
	if item.Question.Kind != drill.KindText {
		return Feedback{}, fmt.Errorf("%w: %s expects %s", ErrWrongKind, item.Question.Type, item.Question.Kind)
	}

	switch item.Phase {
	case PhaseWarmup:
		return o.submitReview(ctx, item, text)
	case PhaseRedBox:
		return o.submitRedBox(ctx, item, text)
	case PhaseDrill:
		return o.submitSkeleton(item, text)
	case PhaseAcceptance:
		return o.submitAcceptance(ctx, item, text)
	}
	return Feedback{}, fmt.Errorf("%w: text during %s", ErrWrongPhase, item.Phase)
}

// Acknowledge finishes a listen-and-repeat item of the pronunciation pass
func (o *Orchestrator) Acknowledge() (Feedback, error) {
	item, ok := o.CurrentItem()
	if !ok {
		return Feedback{}, ErrNoItem
	}
	if item.Phase != PhasePronunciation {
		return Feedback{}, fmt.Errorf("%w: acknowledge during %s", ErrWrongPhase, item.Phase)
	}
	o.state.WordResults[item.WordID].P15Done = true
	o.resetItem()
	o.settle()
	return Feedback{Phase: item.Phase, WordID: item.WordID, Correct: true, Resolved: true}, nil
}

// submitReview grades a scheduled review. A near miss earns one skeleton hint;
// passing after the hint restarts the word's cycle. A circuit-break lapses it to red.
func (o *Orchestrator) submitReview(ctx context.Context, item Item, text string) (Feedback, error) {
	wi := o.currentWarmup()
	w := o.words[wi.wordID]
	g := grading.Grade(w.Form, text)
	o.observeGrade(g)
	fb := Feedback{Phase: item.Phase, WordID: w.ID, Grade: &g}
	now := o.now()

	var err error
	switch {
	case g.Exact:
		fb.Correct = true
		if wi.hinted {
			err = o.mastery.ReviewDegraded(ctx, w.ID, wi.firstMiss, now)
			wi.outcome = ReviewDegraded
		} else {
			err = o.mastery.ReviewPassed(ctx, w.ID, now)
			wi.outcome = ReviewPassed
		}
	case g.Tier == grading.TierSlip:
		fb.Retry = true
		return fb, nil
	case g.Tier == grading.TierDegrade && !wi.hinted:
		wi.hinted = true
		wi.firstMiss = text
		fb.Hint = grading.Skeleton(w.Form)
		fb.Retry = true
		o.resetItem()
		return fb, nil
	case g.Tier == grading.TierDegrade:
		err = o.mastery.ReviewDegraded(ctx, w.ID, text, now)
		wi.outcome = ReviewDegraded
		fb.Answer = w.Form
	default:
		err = o.mastery.ReviewFailed(ctx, w.ID, text, now)
		wi.outcome = ReviewFailed
		fb.Answer = w.Form
	}
	if err != nil {
		wi.outcome = ReviewOpen
		return Feedback{}, fmt.Errorf("failed to record review: %w", err)
	}

	fb.Resolved = true
	o.warmupCursor++
	o.resetItem()
	o.settle()
	return fb, nil
}

func (o *Orchestrator) submitRedBox(ctx context.Context, item Item, text string) (Feedback, error) {
	res, err := o.redBox.Submit(ctx, text, o.now())
	if err != nil {
		return Feedback{}, err
	}
	o.observeGrade(res.Grade)
	g := res.Grade
	fb := Feedback{
		Phase:    item.Phase,
		WordID:   item.WordID,
		Correct:  res.Correct,
		Grade:    &g,
		Hint:     res.Hint,
		Answer:   res.Answer,
		Retry:    !res.Resolved,
		Resolved: res.Resolved,
	}
	if res.Resolved {
		o.resetItem()
		o.settle()
	}
	return fb, nil
}

// submitSkeleton grades drill modality 3
func (o *Orchestrator) submitSkeleton(item Item, text string) (Feedback, error) {
	w := o.words[item.WordID]
	g := grading.Grade(w.Form, text)
	o.observeGrade(g)
	fb := Feedback{Phase: item.Phase, WordID: w.ID, Grade: &g}

	switch {
	case g.Exact:
		fb.Correct = true
		o.engine.Report(true)
	case g.Tier == grading.TierSlip:
		fb.Retry = true
		return fb, nil
	default:
		fb.Answer = w.Form
		o.engine.Report(false)
	}
	fb.Resolved = true
	o.resetItem()
	o.settle()
	return fb, nil
}
