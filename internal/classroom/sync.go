package classroom

import (
	"time"

	"github.com/example/engclass/internal/remediation"
	"github.com/example/engclass/internal/session"
	"github.com/example/engclass/internal/spaced_repetition"
	"github.com/example/engclass/internal/training"
	"github.com/example/engclass/pkg/models"
)

// StudentAnswer is the student's in-progress answer to the current item
type StudentAnswer struct {
	SelectedOption string `json:"selected_option,omitempty"`
	InputText      string `json:"input_text,omitempty"`
	Submitted      bool   `json:"submitted"`
	Correct        *bool  `json:"correct,omitempty"`
}

// Overlay is what the teacher layers over the student's view
type Overlay struct {
	Weapon       remediation.Weapon `json:"weapon,omitempty"`
	WeaponText   string             `json:"weapon_text,omitempty"`
	RevealAnswer bool               `json:"reveal_answer"`
}

// SyncState is the shared signal state both roles observe.
// PendingCommand is last-write-wins: a new command replaces one not yet cleared.
type SyncState struct {
	PendingCommand *session.Command  `json:"pending_command,omitempty"`
	StudentAnswer  StudentAnswer     `json:"student_answer"`
	Overlay        Overlay           `json:"overlay"`
	Feedback       *session.Feedback `json:"feedback,omitempty"`
}

func (s SyncState) clone() SyncState {
	c := s
	if s.PendingCommand != nil {
		cmd := *s.PendingCommand
		cmd.WordIDs = append([]string(nil), s.PendingCommand.WordIDs...)
		c.PendingCommand = &cmd
	}
	if s.StudentAnswer.Correct != nil {
		v := *s.StudentAnswer.Correct
		c.StudentAnswer.Correct = &v
	}
	if s.Feedback != nil {
		fb := *s.Feedback
		c.Feedback = &fb
	}
	return c
}

// Snapshot is the canonical view of the room after a mutation
type Snapshot struct {
	Seq         uint64                  `json:"seq"`
	At          time.Time               `json:"at"`
	Ready       bool                    `json:"ready"`
	SessionID   string                  `json:"session_id,omitempty"`
	Mode        session.Mode            `json:"mode,omitempty"`
	Phase       session.Phase           `json:"phase"`
	Item        *session.Item           `json:"item,omitempty"`
	Word        *models.Word            `json:"word,omitempty"`
	Sync        SyncState               `json:"sync"`
	Progress    session.PhaseProgress   `json:"progress"`
	Remediation remediation.Progress    `json:"remediation"`
	Drill       *training.RoundState    `json:"drill,omitempty"`
	Summary     *session.Summary        `json:"summary,omitempty"`
	Stats       spaced_repetition.Stats `json:"stats"`
}
