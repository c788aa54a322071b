package models

import "strings"

// Word represents a catalog entry taught in a session.
// Sound, Visual and Logic are optional: nil means the catalog has no such data.
type Word struct {
	ID          string       `json:"id" db:"id"`
	Form        string       `json:"form" db:"form"`
	Meaning     string       `json:"meaning" db:"meaning"`
	Contexts    []string     `json:"contexts,omitempty"`
	Sound       *Sound       `json:"sound,omitempty"`
	Visual      *Visual      `json:"visual,omitempty"`
	Logic       *Logic       `json:"logic,omitempty"`
	Distractors []Distractor `json:"distractors,omitempty"` // Drill-only multiple choice decoys
}

// Sound holds phonetic data for a word
type Sound struct {
	AudioURL  string   `json:"audio_url,omitempty"`
	Phonetic  string   `json:"phonetic,omitempty"`
	Syllables []string `json:"syllables,omitempty"`
}

// Visual holds imagery for a word
type Visual struct {
	ImageURL string `json:"image_url,omitempty"`
}

// Logic holds mnemonic aids for a word
type Logic struct {
	Mnemonic    string   `json:"mnemonic,omitempty"`
	Analogy     string   `json:"analogy,omitempty"`
	Confusables []string `json:"confusables,omitempty"`
}

// Distractor is a wrong option offered next to the word in a drill
type Distractor struct {
	Form    string `json:"form"`
	Meaning string `json:"meaning"`
}

// HasAudio reports whether the word can be played back
func (w *Word) HasAudio() bool {
	return w.Sound != nil && strings.TrimSpace(w.Sound.AudioURL) != ""
}

// HasPhonetic reports whether a phonetic spelling is available
func (w *Word) HasPhonetic() bool {
	return w.Sound != nil && strings.TrimSpace(w.Sound.Phonetic) != ""
}

// HasSyllables reports whether the word has a syllable split
func (w *Word) HasSyllables() bool {
	return w.Sound != nil && len(w.Sound.Syllables) > 0
}

// HasImage reports whether the word has an image
func (w *Word) HasImage() bool {
	return w.Visual != nil && strings.TrimSpace(w.Visual.ImageURL) != ""
}

// HasMnemonic reports whether a mnemonic or analogy text is available
func (w *Word) HasMnemonic() bool {
	return w.Logic != nil && (strings.TrimSpace(w.Logic.Mnemonic) != "" || strings.TrimSpace(w.Logic.Analogy) != "")
}

// HasConfusables reports whether confusable words are listed
func (w *Word) HasConfusables() bool {
	return w.Logic != nil && len(w.Logic.Confusables) > 0
}

// Context returns the first example context, or an empty string
func (w *Word) Context() string {
	for _, c := range w.Contexts {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}
