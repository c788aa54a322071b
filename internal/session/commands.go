package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/engclass/internal/remediation"
)

// CommandKind names a teacher command
type CommandKind string

const (
	CmdNext         CommandKind = "next"
	CmdRepeat       CommandKind = "repeat"
	CmdSkip         CommandKind = "skip"
	CmdShowAnswer   CommandKind = "showAnswer"
	CmdSelectWeapon CommandKind = "selectWeapon"
	CmdForceAdvance CommandKind = "forceAdvance"
	CmdReveal       CommandKind = "reveal"
	CmdRetrain      CommandKind = "retrain"
)

var commandKinds = []CommandKind{CmdNext, CmdRepeat, CmdSkip, CmdShowAnswer, CmdSelectWeapon, CmdForceAdvance, CmdReveal, CmdRetrain}

// ParseCommandKind matches a command name case-insensitively
func ParseCommandKind(s string) (CommandKind, error) {
	for _, k := range commandKinds {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Command is an instruction from the teacher role
type Command struct {
	Kind    CommandKind `json:"kind"`
	Arg     string      `json:"arg,omitempty"`      // Weapon or orientation item
	WordIDs []string    `json:"word_ids,omitempty"` // Retrain targets
}

func (c Command) String() string {
	switch {
	case c.Arg != "":
		return string(c.Kind) + "(" + c.Arg + ")"
	case len(c.WordIDs) > 0:
		return string(c.Kind) + "(" + strings.Join(c.WordIDs, ",") + ")"
	}
	return string(c.Kind)
}

// HandleCommand applies a teacher command to the session
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd Command) error {
	if !o.ready {
		return ErrNoSession
	}
	switch cmd.Kind {
	case CmdNext:
		return o.next(ctx)
	case CmdRepeat:
		o.resetItem()
		return nil
	case CmdSkip:
		return o.skipCurrent(ctx)
	case CmdShowAnswer:
		item, ok := o.CurrentItem()
		if !ok {
			return ErrNoItem
		}
		o.revealedKey = item.Key
		return nil
	case CmdSelectWeapon:
		if o.state.Phase != PhaseRedBox {
			return fmt.Errorf("%w: weapon during %s", ErrWrongPhase, o.state.Phase)
		}
		wp, err := remediation.ParseWeapon(cmd.Arg)
		if err != nil {
			return err
		}
		return o.redBox.SelectWeapon(wp)
	case CmdReveal:
		if o.state.Phase != PhaseRedBox {
			return fmt.Errorf("%w: reveal during %s", ErrWrongPhase, o.state.Phase)
		}
		return o.redBox.Reveal(remediation.OrientItem(strings.ToLower(strings.TrimSpace(cmd.Arg))))
	case CmdForceAdvance:
		return o.AdvancePhase(ctx, true)
	case CmdRetrain:
		return o.RouteToDrill(cmd.WordIDs)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
}

// next steps the Red Box, acknowledges a pronunciation item, or otherwise
// asks for a regular phase advance
func (o *Orchestrator) next(ctx context.Context) error {
	switch o.state.Phase {
	case PhaseRedBox:
		if err := o.redBox.Next(false); err != nil {
			return err
		}
		o.resetItem()
		return nil
	case PhasePronunciation:
		_, err := o.Acknowledge()
		return err
	}
	return o.AdvancePhase(ctx, false)
}

// skipCurrent moves past the current item without scoring it
func (o *Orchestrator) skipCurrent(ctx context.Context) error {
	switch o.state.Phase {
	case PhaseWarmup:
		wi := o.currentWarmup()
		if wi == nil {
			return ErrNoItem
		}
		wi.outcome = ReviewSkipped
		o.warmupCursor++
	case PhaseRedBox:
		if err := o.redBox.Skip(); err != nil {
			return ErrNoItem
		}
	case PhaseIntake:
		id, ok := o.currentIntake()
		if !ok {
			return ErrNoItem
		}
		r := o.state.WordResults[id]
		r.P1Skipped = true
		r.Source = SourceP1Skip
	case PhasePronunciation:
		id, ok := o.currentPronunciation()
		if !ok {
			return ErrNoItem
		}
		o.state.WordResults[id].P15Done = true
	case PhaseDrill:
		if _, _, ok := o.engine.Current(); !ok {
			return ErrNoItem
		}
		o.engine.Skip()
	case PhaseAcceptance:
		id, ok := o.currentAcceptance()
		if !ok {
			return ErrNoItem
		}
		o.skipAcceptance(ctx, id)
	default:
		return ErrNoItem
	}
	o.resetItem()
	o.settle()
	return nil
}
