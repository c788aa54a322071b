package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/engclass/internal/classroom"
	"github.com/example/engclass/internal/drill"
	"github.com/example/engclass/internal/remediation"
	"github.com/example/engclass/internal/session"
)

// Callback data prefixes
const (
	callbackOption  = "opt:"
	callbackCommand = "cmd:"
	callbackAck     = "ack"
)

const teacherHelp = `Teacher commands:
/session standard|remediation [n] - start a session with n intake words
/next - advance the item or phase
/repeat - ask the current item again
/skip - skip the current item
/answer - show the answer to the student
/reveal_toggle - toggle the answer overlay
/weapon syllables|context|mnemonic|comparison - Red Box weapon
/orient audio|syllables|phonetic - Red Box orientation
/force - force the next phase
/retrain id,id - send failed words back to the drill
/progress - phase progress
/stats - mastery counts`

const studentHelp = `Tap an option or type your answer. Your teacher leads the session.`

// commandAliases maps chat commands to session commands
var commandAliases = map[string]session.CommandKind{
	"next":    session.CmdNext,
	"repeat":  session.CmdRepeat,
	"skip":    session.CmdSkip,
	"answer":  session.CmdShowAnswer,
	"weapon":  session.CmdSelectWeapon,
	"orient":  session.CmdReveal,
	"force":   session.CmdForceAdvance,
	"retrain": session.CmdRetrain,
}

func (b *Bot) handleMessage(ctx context.Context, r role, message *tgbotapi.Message) error {
	if message.IsCommand() {
		if r == roleTeacher {
			return b.handleTeacherCommand(ctx, message.Chat.ID, message.Command(), message.CommandArguments())
		}
		b.sendText(message.Chat.ID, studentHelp)
		return nil
	}
	if r == roleStudent {
		return b.handleStudentText(ctx, strings.TrimSpace(message.Text))
	}
	b.sendText(message.Chat.ID, teacherHelp)
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, r role, data string) error {
	switch {
	case r == roleTeacher && strings.HasPrefix(data, callbackCommand):
		return b.handleTeacherCommand(ctx, b.config.TeacherChatID, strings.TrimPrefix(data, callbackCommand), "")
	case r == roleStudent && strings.HasPrefix(data, callbackOption):
		return b.submitSelection(ctx, strings.TrimPrefix(data, callbackOption))
	case r == roleStudent && data == callbackAck:
		_, err := b.student.SubmitAnswer(ctx)
		return err
	}
	return fmt.Errorf("unknown action %q", data)
}

func (b *Bot) handleTeacherCommand(ctx context.Context, chatID int64, name, args string) error {
	args = strings.TrimSpace(args)
	switch name {
	case "start", "help":
		b.sendText(chatID, teacherHelp)
		return nil
	case "session":
		return b.handleSession(ctx, args)
	case "reveal_toggle":
		_, err := b.teacher.ToggleAnswerReveal(ctx)
		return err
	case "progress":
		return b.handleProgress(ctx, chatID)
	case "stats":
		return b.handleStats(ctx, chatID)
	}

	kind, ok := commandAliases[name]
	if !ok {
		var err error
		if kind, err = session.ParseCommandKind(name); err != nil {
			return err
		}
	}
	cmd := session.Command{Kind: kind}
	switch kind {
	case session.CmdSelectWeapon, session.CmdReveal:
		if args == "" {
			return fmt.Errorf("/%s needs an argument", name)
		}
		cmd.Arg = args
	case session.CmdRetrain:
		cmd.WordIDs = splitIDs(args)
	}
	return b.teacher.SendCommand(ctx, cmd)
}

func (b *Bot) handleSession(ctx context.Context, args string) error {
	fields := strings.Fields(args)
	mode := session.ModeStandard
	size := b.config.IntakeSize
	if len(fields) > 0 {
		m, err := session.ParseMode(fields[0])
		if err != nil {
			return err
		}
		mode = m
	}
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return fmt.Errorf("intake size must be a positive number, got %q", fields[1])
		}
		size = n
	}
	return b.teacher.InitSession(ctx, mode, size)
}

func (b *Bot) handleProgress(ctx context.Context, chatID int64) error {
	snap, err := b.teacher.Snapshot(ctx)
	if err != nil {
		return err
	}
	if !snap.Ready {
		return session.ErrNoSession
	}
	text := fmt.Sprintf("%s: %d/%d (%.0f%%)", phaseTitle(snap.Phase), snap.Progress.Completed, snap.Progress.Total, snap.Progress.Percentage)
	if snap.Mode == session.ModeRemediation {
		text += fmt.Sprintf("\nRed Box cleared %d/%d (%.0f%%)", snap.Remediation.Cleared, snap.Remediation.Total, snap.Remediation.ClearRate*100)
	}
	b.sendText(chatID, text)
	return nil
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) error {
	stats, err := b.teacher.WordStats(ctx)
	if err != nil {
		return err
	}
	b.sendText(chatID, fmt.Sprintf("📊 pending %d · yellow %d · red %d · green %d", stats.Pending, stats.Yellow, stats.Red, stats.Green))
	return nil
}

// handleStudentText submits typed text; on a choice item an option id may be typed instead
func (b *Bot) handleStudentText(ctx context.Context, text string) error {
	snap, err := b.student.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Item == nil {
		return session.ErrNoItem
	}
	switch snap.Item.Question.Kind {
	case drill.KindChoice:
		return b.submitSelection(ctx, strings.ToLower(text))
	case drill.KindAck:
		_, err := b.student.SubmitAnswer(ctx)
		return err
	}
	if err := b.student.SubmitText(ctx, text); err != nil {
		return err
	}
	_, err = b.student.SubmitAnswer(ctx)
	return err
}

func (b *Bot) submitSelection(ctx context.Context, optionID string) error {
	if err := b.student.SubmitSelection(ctx, optionID); err != nil {
		return err
	}
	_, err := b.student.SubmitAnswer(ctx)
	return err
}

func splitIDs(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// describeError turns a classroom error into a chat message
func describeError(err error) string {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return "No session is running. Start one with /session standard"
	case errors.Is(err, session.ErrPhaseIncomplete):
		return "This phase still has open items. Use /skip or /force."
	case errors.Is(err, session.ErrSessionOver):
		return "The session is over. Start a new one with /session"
	case errors.Is(err, session.ErrNoItem):
		return "There is nothing to answer right now."
	case errors.Is(err, session.ErrNotRoutable):
		return "Only words that failed acceptance can be sent back to the drill."
	case errors.Is(err, remediation.ErrNoWeapon):
		return "Pick a weapon first: /weapon syllables|context|mnemonic|comparison"
	case errors.Is(err, remediation.ErrUnavailable):
		return "That aid is not available for this word."
	case errors.Is(err, classroom.ErrClosed):
		return "The classroom is closed."
	}
	return "⚠️ " + err.Error()
}
