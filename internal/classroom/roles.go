package classroom

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/engclass/internal/drill"
	"github.com/example/engclass/internal/remediation"
	"github.com/example/engclass/internal/session"
	"github.com/example/engclass/internal/spaced_repetition"
	"github.com/example/engclass/pkg/models"
)

// viewer is the query surface shared by both roles
type viewer struct {
	r *Room
}

// CurrentWord returns the word of the current item
func (v viewer) CurrentWord(ctx context.Context) (*models.Word, error) {
	val, err := v.r.call(ctx, false, func(context.Context) (any, error) {
		w, _ := v.r.orch.CurrentWord()
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*models.Word), nil
}

// Phase returns the session phase
func (v viewer) Phase(ctx context.Context) (session.Phase, error) {
	val, err := v.r.call(ctx, false, func(context.Context) (any, error) {
		return v.r.orch.Phase(), nil
	})
	if err != nil {
		return 0, err
	}
	return val.(session.Phase), nil
}

// WordStats counts the student's words per mastery tier
func (v viewer) WordStats(ctx context.Context) (spaced_repetition.Stats, error) {
	val, err := v.r.call(ctx, false, func(ctx context.Context) (any, error) {
		return v.r.orch.WordStats(ctx)
	})
	if err != nil {
		return spaced_repetition.Stats{}, err
	}
	return val.(spaced_repetition.Stats), nil
}

// PhaseProgress counts finished items of the current phase
func (v viewer) PhaseProgress(ctx context.Context) (session.PhaseProgress, error) {
	val, err := v.r.call(ctx, false, func(context.Context) (any, error) {
		return v.r.orch.Progress(), nil
	})
	if err != nil {
		return session.PhaseProgress{}, err
	}
	return val.(session.PhaseProgress), nil
}

// RemediationProgress reports the Red Box clearance statistic
func (v viewer) RemediationProgress(ctx context.Context) (remediation.Progress, error) {
	val, err := v.r.call(ctx, false, func(context.Context) (any, error) {
		return v.r.orch.RemediationProgress(), nil
	})
	if err != nil {
		return remediation.Progress{}, err
	}
	return val.(remediation.Progress), nil
}

// Snapshot returns the full current view
func (v viewer) Snapshot(ctx context.Context) (Snapshot, error) {
	val, err := v.r.call(ctx, false, func(ctx context.Context) (any, error) {
		return v.r.snapshot(ctx), nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return val.(Snapshot), nil
}

// Teacher is the authoritative role: it starts sessions, issues commands and reveals answers
type Teacher struct {
	viewer
}

// InitSession starts a new session and clears all shared signals
func (t Teacher) InitSession(ctx context.Context, mode session.Mode, intakeSize int) error {
	r := t.r
	_, err := r.call(ctx, true, func(ctx context.Context) (any, error) {
		if err := r.orch.InitSession(ctx, mode, intakeSize); err != nil {
			return nil, err
		}
		for s := range r.slots {
			r.cancel(s)
		}
		r.sync = SyncState{}
		r.itemKey = ""
		return nil, nil
	})
	return err
}

// SendCommand publishes a command and applies it to the session. The command
// replaces any pending one and is cleared after the command delay. Feedback
// still on screen belongs to a superseded item and is dropped.
func (t Teacher) SendCommand(ctx context.Context, cmd session.Command) error {
	r := t.r
	_, err := r.call(ctx, true, func(ctx context.Context) (any, error) {
		if err := r.orch.HandleCommand(ctx, cmd); err != nil {
			return nil, err
		}
		if cmd.Kind == session.CmdShowAnswer {
			r.sync.Overlay.RevealAnswer = true
		} else {
			r.cancel(slotFeedback)
			r.sync.Feedback = nil
			r.sync.StudentAnswer = StudentAnswer{}
		}

		if r.sync.PendingCommand != nil {
			r.logger.Debug("pending command replaced",
				zap.Stringer("old", r.sync.PendingCommand), zap.Stringer("new", cmd))
		}
		c := cmd
		r.sync.PendingCommand = &c
		r.schedule(slotCommand, r.cfg.CommandClearDelay, func() {
			r.sync.PendingCommand = nil
		})
		return nil, nil
	})
	return err
}

// ToggleAnswerReveal flips the reveal-answer overlay and returns the new value
func (t Teacher) ToggleAnswerReveal(ctx context.Context) (bool, error) {
	r := t.r
	val, err := r.call(ctx, true, func(context.Context) (any, error) {
		r.sync.Overlay.RevealAnswer = !r.sync.Overlay.RevealAnswer
		return r.sync.Overlay.RevealAnswer, nil
	})
	if err != nil {
		return false, err
	}
	return val.(bool), nil
}

// Student is the responding role: it selects options and submits answers
type Student struct {
	viewer
}

// SubmitSelection records the selected option without grading it
func (s Student) SubmitSelection(ctx context.Context, optionID string) error {
	r := s.r
	_, err := r.call(ctx, true, func(context.Context) (any, error) {
		r.clearFeedback()
		r.sync.StudentAnswer.SelectedOption = optionID
		return nil, nil
	})
	return err
}

// SubmitText records the typed answer without grading it
func (s Student) SubmitText(ctx context.Context, text string) error {
	r := s.r
	_, err := r.call(ctx, true, func(context.Context) (any, error) {
		r.clearFeedback()
		r.sync.StudentAnswer.InputText = text
		return nil, nil
	})
	return err
}

// SubmitAnswer grades the recorded selection or text against the current item.
// The feedback stays visible for the feedback delay.
func (s Student) SubmitAnswer(ctx context.Context) (session.Feedback, error) {
	r := s.r
	val, err := r.call(ctx, true, func(ctx context.Context) (any, error) {
		item, ok := r.orch.CurrentItem()
		if !ok {
			return session.Feedback{}, session.ErrNoItem
		}

		var (
			fb  session.Feedback
			err error
		)
		ans := r.sync.StudentAnswer
		switch item.Question.Kind {
		case drill.KindChoice:
			if ans.SelectedOption == "" {
				return session.Feedback{}, fmt.Errorf("%w: no option selected", session.ErrWrongKind)
			}
			fb, err = r.orch.SubmitChoice(ctx, ans.SelectedOption)
		case drill.KindText:
			if strings.TrimSpace(ans.InputText) == "" {
				return session.Feedback{}, fmt.Errorf("%w: no answer typed", session.ErrWrongKind)
			}
			fb, err = r.orch.SubmitText(ctx, ans.InputText)
		default:
			fb, err = r.orch.Acknowledge()
		}
		if err != nil {
			return session.Feedback{}, err
		}

		correct := fb.Correct
		ans.Submitted = true
		ans.Correct = &correct
		if fb.Retry {
			ans.InputText = ""
		}
		r.sync.StudentAnswer = ans
		r.sync.Feedback = &fb
		r.schedule(slotFeedback, r.cfg.FeedbackDelay, func() {
			r.sync.Feedback = nil
			r.sync.StudentAnswer = StudentAnswer{}
		})
		return fb, nil
	})
	if err != nil {
		return session.Feedback{}, err
	}
	return val.(session.Feedback), nil
}

// clearFeedback drops feedback of an earlier answer once the student starts a new one
func (r *Room) clearFeedback() {
	if r.sync.Feedback == nil {
		return
	}
	r.cancel(slotFeedback)
	r.sync.Feedback = nil
	r.sync.StudentAnswer = StudentAnswer{}
}
