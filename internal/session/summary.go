package session

import (
	"github.com/example/engclass/internal/remediation"
)

// Summary counts the outcomes of the session
type Summary struct {
	SessionID string `json:"session_id"`
	Mode      Mode   `json:"mode"`

	WarmupPassed   int `json:"warmup_passed"`
	WarmupDegraded int `json:"warmup_degraded"`
	WarmupFailed   int `json:"warmup_failed"`
	WarmupSkipped  int `json:"warmup_skipped"`

	RedBox remediation.Progress `json:"red_box"`

	Intake        int `json:"intake"`
	IntakeCorrect int `json:"intake_correct"`
	IntakeMissed  int `json:"intake_missed"`
	IntakeSkipped int `json:"intake_skipped"`
	CarryOver     int `json:"carry_over"`
	Trained       int `json:"trained"`

	Accepted             int      `json:"accepted"`
	AcceptedFirstAttempt int      `json:"accepted_first_attempt"`
	AcceptedDegraded     int      `json:"accepted_degraded"`
	Retrain              []string `json:"retrain,omitempty"` // Failed acceptance; may be routed back to the drill
	AcceptanceSkipped    int      `json:"acceptance_skipped"`
}

// Summary reports the session outcome so far
func (o *Orchestrator) Summary() Summary {
	s := Summary{
		SessionID: o.state.ID,
		Mode:      o.state.Mode,
		RedBox:    o.RemediationProgress(),
		Intake:    len(o.state.IntakeWordList),
		CarryOver: len(o.state.CarryOverList),
	}
	for _, wi := range o.warmup {
		switch wi.outcome {
		case ReviewPassed:
			s.WarmupPassed++
		case ReviewDegraded:
			s.WarmupDegraded++
		case ReviewFailed:
			s.WarmupFailed++
		case ReviewSkipped:
			s.WarmupSkipped++
		}
	}
	for _, id := range o.acceptanceWords() {
		r := o.state.WordResults[id]
		switch {
		case r.CarryOver:
		case r.P1Skipped:
			s.IntakeSkipped++
		case r.P1Result != nil && *r.P1Result:
			s.IntakeCorrect++
		case r.P1Result != nil:
			s.IntakeMissed++
		}
		if r.NeedsTraining {
			s.Trained++
		}
		switch {
		case r.P3Skipped:
			s.AcceptanceSkipped++
		case r.P3Passed == nil:
		case *r.P3Passed:
			s.Accepted++
			if r.P3Attempts == 1 {
				s.AcceptedFirstAttempt++
			}
			if r.P3Degraded {
				s.AcceptedDegraded++
			}
		default:
			s.Retrain = append(s.Retrain, id)
		}
	}
	return s
}
