package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/engclass/internal/grading"
)

// AcceptanceAttempts is the number of spelling attempts at the gate
const AcceptanceAttempts = 2

// submitAcceptance grades the context spelling check. A slip is corrected in
// place without using an attempt; a near miss reveals the skeleton and a
// circuit-break reveals the answer. Passing on either attempt accepts the word.
func (o *Orchestrator) submitAcceptance(ctx context.Context, item Item, text string) (Feedback, error) {
	id := item.WordID
	w := o.words[id]
	r := o.state.WordResults[id]
	ai := o.accepting[id]
	if ai == nil {
		ai = &acceptanceItem{}
		o.accepting[id] = ai
	}

	g := grading.Grade(w.Form, text)
	o.observeGrade(g)
	fb := Feedback{Phase: item.Phase, WordID: id, Grade: &g}
	now := o.now()

	if g.Exact {
		if err := o.mastery.Accept(ctx, id, now); err != nil {
			return Feedback{}, fmt.Errorf("failed to accept word: %w", err)
		}
		passed := true
		r.P3Passed = &passed
		r.P3Attempts = ai.attempts + 1
		r.P3Degraded = ai.degraded
		delete(o.accepting, id)
		fb.Correct = true
		fb.Resolved = true
		o.resetItem()
		o.settle()
		return fb, nil
	}
	if g.Tier == grading.TierSlip {
		fb.Retry = true
		return fb, nil
	}

	ai.attempts++
	ai.submissions = append(ai.submissions, text)
	if g.Tier == grading.TierDegrade {
		ai.degraded = true
		ai.hint = grading.Skeleton(w.Form)
		fb.Hint = ai.hint
	} else {
		fb.Answer = w.Form
	}
	if ai.attempts < AcceptanceAttempts {
		fb.Retry = true
		return fb, nil
	}

	if err := o.mastery.QueueRetrain(ctx, id, ai.submissions, now); err != nil {
		ai.attempts--
		ai.submissions = ai.submissions[:len(ai.submissions)-1]
		return Feedback{}, fmt.Errorf("failed to queue retrain: %w", err)
	}
	failed := false
	r.P3Passed = &failed
	r.P3Attempts = ai.attempts
	r.P3Degraded = ai.degraded
	delete(o.accepting, id)
	fb.Answer = w.Form
	fb.Resolved = true
	o.resetItem()
	o.settle()
	return fb, nil
}

// skipAcceptance leaves a word unscored; it stays pending and returns in the next session's drill
func (o *Orchestrator) skipAcceptance(ctx context.Context, id string) {
	r := o.state.WordResults[id]
	r.P3Skipped = true
	delete(o.accepting, id)
	if err := o.mastery.QueueRetrain(ctx, id, nil, o.now()); err != nil {
		o.logger.Warn("failed to queue skipped word for retrain", zap.String("word_id", id), zap.Error(err))
	}
}
