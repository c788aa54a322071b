package bot

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/engclass/internal/classroom"
	"github.com/example/engclass/internal/drill"
	"github.com/example/engclass/internal/session"
)

// view is the rendered message of one role
type view struct {
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

var phaseTitles = map[session.Phase]string{
	session.PhaseWarmup:        "Warm-up",
	session.PhaseRedBox:        "Red Box",
	session.PhaseIntake:        "Intake",
	session.PhasePronunciation: "Pronunciation",
	session.PhaseDrill:         "Drill",
	session.PhaseAcceptance:    "Acceptance",
	session.PhaseSummary:       "Summary",
}

func phaseTitle(p session.Phase) string {
	if t, ok := phaseTitles[p]; ok {
		return t
	}
	return p.String()
}

// answerText is the correct answer of a question as the student would see it
func answerText(q drill.Question) string {
	if q.Kind == drill.KindChoice {
		for _, o := range q.Options {
			if o.ID == q.CorrectOption {
				return o.Text
			}
		}
	}
	return q.Answer
}

func header(snap classroom.Snapshot) string {
	h := phaseTitle(snap.Phase)
	if snap.Progress.Total > 0 {
		h += fmt.Sprintf(" %d/%d", snap.Progress.Completed, snap.Progress.Total)
	}
	return h
}

// renderStudent never shows the answer unless the teacher revealed it
func renderStudent(snap classroom.Snapshot) view {
	if !snap.Ready {
		return view{text: "Waiting for your teacher to start a session."}
	}
	if snap.Summary != nil {
		return view{text: renderSummary(*snap.Summary, false)}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📘 %s\n", header(snap))
	item := snap.Item
	if item == nil {
		sb.WriteString("\nWait for your teacher…")
		return view{text: sb.String()}
	}
	q := item.Question

	if item.Phase == session.PhaseRedBox {
		for _, k := range sortedKeys(item.Orientation) {
			fmt.Fprintf(&sb, "%s: %s\n", k, item.Orientation[k])
		}
	}
	if snap.Sync.Overlay.WeaponText != "" {
		fmt.Fprintf(&sb, "💡 %s\n", snap.Sync.Overlay.WeaponText)
	}
	if q.Prompt != "" {
		fmt.Fprintf(&sb, "\n%s\n", q.Prompt)
	}
	if q.AudioURL != "" {
		fmt.Fprintf(&sb, "🔊 %s\n", q.AudioURL)
	}
	if q.ImageURL != "" {
		fmt.Fprintf(&sb, "🖼 %s\n", q.ImageURL)
	}
	if item.Hint != "" {
		fmt.Fprintf(&sb, "Hint: %s\n", item.Hint)
	}
	if item.Attempt > 0 {
		fmt.Fprintf(&sb, "Attempt %d\n", item.Attempt)
	}
	if snap.Sync.Overlay.RevealAnswer || item.Revealed {
		fmt.Fprintf(&sb, "Answer: %s\n", answerText(q))
	}
	if fb := snap.Sync.Feedback; fb != nil {
		sb.WriteString(feedbackLine(*fb))
	}

	var buttons [][]MenuButton
	switch q.Kind {
	case drill.KindChoice:
		for _, o := range q.Options {
			buttons = append(buttons, []MenuButton{{Text: o.ID + ") " + o.Text, CallbackData: callbackOption + o.ID}})
		}
	case drill.KindAck:
		buttons = [][]MenuButton{{{Text: "✔ Done", CallbackData: callbackAck}}}
	case drill.KindText:
		if snap.Sync.Feedback == nil {
			sb.WriteString("\nType your answer.")
		}
	}
	return view{text: strings.TrimRight(sb.String(), "\n"), keyboard: createKeyboard(buttons)}
}

func feedbackLine(fb session.Feedback) string {
	var sb strings.Builder
	switch {
	case fb.Correct:
		sb.WriteString("\n✅ Correct!")
	case fb.Retry:
		sb.WriteString("\n✏️ Almost, try again.")
	default:
		sb.WriteString("\n❌ Not quite.")
	}
	if fb.Hint != "" {
		fmt.Fprintf(&sb, " Hint: %s", fb.Hint)
	}
	if fb.Answer != "" {
		fmt.Fprintf(&sb, " Answer: %s", fb.Answer)
	}
	sb.WriteString("\n")
	return sb.String()
}

// renderTeacher shows everything, including the expected answer
func renderTeacher(snap classroom.Snapshot) view {
	if !snap.Ready {
		return view{text: "No session. Start one with /session standard or /session remediation"}
	}
	controls := createKeyboard([][]MenuButton{
		{{Text: "⏭ Next", CallbackData: callbackCommand + "next"}, {Text: "🔁 Repeat", CallbackData: callbackCommand + "repeat"}},
		{{Text: "⏩ Skip", CallbackData: callbackCommand + "skip"}, {Text: "👁 Answer", CallbackData: callbackCommand + "answer"}},
		{{Text: "⚡ Force", CallbackData: callbackCommand + "force"}},
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎓 %s session · %s\n", snap.Mode, header(snap))
	if snap.Summary != nil {
		sb.WriteString(renderSummary(*snap.Summary, true))
		return view{text: sb.String()}
	}
	if w := snap.Word; w != nil {
		fmt.Fprintf(&sb, "Word: %s (%s) · %s\n", w.Form, w.ID, w.Meaning)
	}
	if item := snap.Item; item != nil {
		if item.Question.Prompt != "" {
			fmt.Fprintf(&sb, "Q: %s\n", item.Question.Prompt)
		}
		if a := answerText(item.Question); a != "" {
			fmt.Fprintf(&sb, "Answer: %s\n", a)
		}
		if item.Phase == session.PhaseRedBox {
			fmt.Fprintf(&sb, "Step: %s", item.Step)
			if item.Weapon != "" {
				fmt.Fprintf(&sb, " · weapon %s", item.Weapon)
			}
			sb.WriteString("\n")
			if len(item.Weapons) > 0 {
				names := make([]string, 0, len(item.Weapons))
				for _, wp := range item.Weapons {
					names = append(names, string(wp))
				}
				fmt.Fprintf(&sb, "Weapons: %s\n", strings.Join(names, ", "))
			}
		}
	}
	if d := snap.Drill; d != nil {
		kind := "full pass"
		if d.IsRetryRound {
			kind = "retry pass"
		}
		fmt.Fprintf(&sb, "Drill: %s, %s, %d missed\n", d.RoundNumber, kind, len(d.MissedThisRound))
	}
	if snap.Mode == session.ModeRemediation {
		fmt.Fprintf(&sb, "Red Box cleared %d/%d\n", snap.Remediation.Cleared, snap.Remediation.Total)
	}

	ans := snap.Sync.StudentAnswer
	switch {
	case ans.SelectedOption != "":
		fmt.Fprintf(&sb, "Student picked %s", ans.SelectedOption)
	case ans.InputText != "":
		fmt.Fprintf(&sb, "Student typed %q", ans.InputText)
	}
	if ans.Correct != nil {
		if *ans.Correct {
			sb.WriteString(" ✅")
		} else {
			sb.WriteString(" ❌")
		}
	}
	if ans.SelectedOption != "" || ans.InputText != "" {
		sb.WriteString("\n")
	}
	if snap.Sync.Overlay.RevealAnswer {
		sb.WriteString("Answer is shown to the student\n")
	}
	if cmd := snap.Sync.PendingCommand; cmd != nil {
		fmt.Fprintf(&sb, "Sent: %s\n", cmd)
	}
	return view{text: strings.TrimRight(sb.String(), "\n"), keyboard: controls}
}

func renderSummary(s session.Summary, teacher bool) string {
	var sb strings.Builder
	sb.WriteString("🏁 Session finished\n")
	if n := s.WarmupPassed + s.WarmupDegraded + s.WarmupFailed + s.WarmupSkipped; n > 0 {
		fmt.Fprintf(&sb, "Warm-up: %d passed, %d with hint, %d lapsed\n", s.WarmupPassed, s.WarmupDegraded, s.WarmupFailed)
	}
	if s.RedBox.Total > 0 {
		fmt.Fprintf(&sb, "Red Box: %d/%d cleared\n", s.RedBox.Cleared, s.RedBox.Total)
	}
	fmt.Fprintf(&sb, "New words: %d (%d known, %d trained)\n", s.Intake, s.IntakeCorrect, s.Trained)
	fmt.Fprintf(&sb, "Accepted: %d\n", s.Accepted)
	if teacher && len(s.Retrain) > 0 {
		fmt.Fprintf(&sb, "Needs retraining: %s\nSend them back with /retrain %s\n",
			strings.Join(s.Retrain, ", "), strings.Join(s.Retrain, ","))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
