// Package drill builds the questions shown to the student in every phase.
package drill

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/example/engclass/internal/grading"
	"github.com/example/engclass/pkg/models"
)

// MinDistractors is the number of wrong options a choice question aims for
const MinDistractors = 3

// Blank replaces the target word in a context sentence
const Blank = "_______"

// QuestionType identifies how a word is tested
type QuestionType string

const (
	// MeaningChoice picks the meaning of a shown word (intake triage)
	MeaningChoice QuestionType = "meaning_choice"
	// AudioToForm picks the written form of a played word (drill modality 1)
	AudioToForm QuestionType = "audio_to_form"
	// FlashToMeaning picks the meaning of a briefly flashed word (drill modality 2)
	FlashToMeaning QuestionType = "flash_to_meaning"
	// SkeletonSpelling types the word from a first/last letter hint (drill modality 3)
	SkeletonSpelling QuestionType = "skeleton_spelling"
	// ContextSpelling types the word into a blanked context sentence
	ContextSpelling QuestionType = "context_spelling"
	// Pronunciation is a listen-and-repeat exposure with no grading
	Pronunciation QuestionType = "pronunciation"
	// Review types a due word from its meaning
	Review QuestionType = "review"
)

// Kind is the answer input a question expects
type Kind string

const (
	KindChoice Kind = "choice"
	KindText   Kind = "text"
	KindAck    Kind = "ack"
)

// Modality is a drill modality, run in fixed order 1..3
type Modality int

const (
	ModalityAudioToForm Modality = iota + 1
	ModalityFlashToMeaning
	ModalitySkeletonSpelling
)

// Modalities is the number of drill modalities
const Modalities = 3

func (m Modality) String() string {
	switch m {
	case ModalityAudioToForm:
		return "audio-to-form"
	case ModalityFlashToMeaning:
		return "flash-to-meaning"
	case ModalitySkeletonSpelling:
		return "skeleton-spelling"
	}
	return fmt.Sprintf("Modality(%d)", int(m))
}

// Option is one multiple choice answer
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question represents a single question about a word
type Question struct {
	WordID        string       `json:"word_id"`
	Type          QuestionType `json:"type"`
	Kind          Kind         `json:"kind"`
	Prompt        string       `json:"prompt"`
	Options       []Option     `json:"options,omitempty"`
	CorrectOption string       `json:"-"`
	Answer        string       `json:"-"` // Expected text, also the revealed answer
	Hint          string       `json:"hint,omitempty"`
	AudioURL      string       `json:"audio_url,omitempty"`
	ImageURL      string       `json:"image_url,omitempty"`
}

// IsCorrectOption reports whether the selected option is the right one
func (q *Question) IsCorrectOption(id string) bool {
	return q.Kind == KindChoice && id != "" && id == q.CorrectOption
}

// Builder creates questions; pool is used to synthesize missing distractors
type Builder struct {
	rnd  *rand.Rand
	pool []models.Word
}

// NewBuilder creates a builder. A nil rnd is seeded from the clock.
func NewBuilder(pool []models.Word, rnd *rand.Rand) *Builder {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Builder{rnd: rnd, pool: pool}
}

// SetPool replaces the fallback distractor pool
func (b *Builder) SetPool(pool []models.Word) {
	b.pool = pool
}

// ForModality builds the drill question for a modality
func (b *Builder) ForModality(w *models.Word, m Modality) Question {
	switch m {
	case ModalityAudioToForm:
		return b.AudioToForm(w)
	case ModalityFlashToMeaning:
		return b.FlashToMeaning(w)
	default:
		return b.SkeletonSpelling(w)
	}
}

// MeaningChoice asks for the meaning of the shown word
func (b *Builder) MeaningChoice(w *models.Word) Question {
	q := Question{
		WordID: w.ID,
		Type:   MeaningChoice,
		Kind:   KindChoice,
		Prompt: w.Form,
		Answer: w.Meaning,
	}
	b.fillChoices(&q, w.Meaning, b.meaningDecoys(w))
	return q
}

// AudioToForm plays the word and asks for its written form.
// Without audio the phonetic spelling is shown, and without that the teacher reads it aloud.
func (b *Builder) AudioToForm(w *models.Word) Question {
	q := Question{
		WordID: w.ID,
		Type:   AudioToForm,
		Kind:   KindChoice,
		Answer: w.Form,
	}
	switch {
	case w.HasAudio():
		q.AudioURL = w.Sound.AudioURL
		q.Prompt = "Listen and choose the word"
	case w.HasPhonetic():
		q.Prompt = "Choose the word for " + w.Sound.Phonetic
	default:
		q.Prompt = "Listen to your teacher and choose the word"
	}
	b.fillChoices(&q, w.Form, formsOf(b.Distractors(w)))
	return q
}

// FlashToMeaning flashes the word (and image when present) and asks for its meaning
func (b *Builder) FlashToMeaning(w *models.Word) Question {
	q := Question{
		WordID: w.ID,
		Type:   FlashToMeaning,
		Kind:   KindChoice,
		Prompt: w.Form,
		Answer: w.Meaning,
	}
	if w.HasImage() {
		q.ImageURL = w.Visual.ImageURL
	}
	b.fillChoices(&q, w.Meaning, b.meaningDecoys(w))
	return q
}

// SkeletonSpelling asks to type the word from its skeleton and meaning
func (b *Builder) SkeletonSpelling(w *models.Word) Question {
	q := Question{
		WordID: w.ID,
		Type:   SkeletonSpelling,
		Kind:   KindText,
		Prompt: w.Meaning,
		Answer: w.Form,
		Hint:   grading.Skeleton(w.Form),
	}
	if w.HasAudio() {
		q.AudioURL = w.Sound.AudioURL
	}
	return q
}

// ContextSpelling asks to type the word into its blanked context sentence, no hints
func (b *Builder) ContextSpelling(w *models.Word) Question {
	context := w.Context()
	if context == "" {
		context = fmt.Sprintf("%s (%s)", w.Form, w.Meaning)
	}
	return Question{
		WordID: w.ID,
		Type:   ContextSpelling,
		Kind:   KindText,
		Prompt: BlankOut(context, w.Form),
		Answer: w.Form,
	}
}

// PronunciationPass shows the word with its sound data for a listen-and-repeat pass
func (b *Builder) PronunciationPass(w *models.Word) Question {
	q := Question{
		WordID: w.ID,
		Type:   Pronunciation,
		Kind:   KindAck,
		Prompt: w.Form,
		Answer: w.Form,
	}
	if w.HasAudio() {
		q.AudioURL = w.Sound.AudioURL
	}
	if w.HasPhonetic() {
		q.Hint = w.Sound.Phonetic
	}
	return q
}

// ReviewSpelling asks to type a due word from its meaning
func (b *Builder) ReviewSpelling(w *models.Word) Question {
	return Question{
		WordID: w.ID,
		Type:   Review,
		Kind:   KindText,
		Prompt: w.Meaning,
		Answer: w.Form,
	}
}

// Distractors returns at least MinDistractors decoys for w when possible:
// the catalog's own first, then words from the pool, then letter mutations of the form.
func (b *Builder) Distractors(w *models.Word) []models.Distractor {
	seen := map[string]bool{grading.Normalize(w.Form): true}
	out := make([]models.Distractor, 0, MinDistractors)
	add := func(d models.Distractor) {
		key := grading.Normalize(d.Form)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, d)
	}

	for _, d := range w.Distractors {
		add(d)
	}
	if len(out) >= MinDistractors {
		return out
	}

	pool := b.others(w)
	for i := 0; i < len(pool) && len(out) < MinDistractors; i++ {
		add(models.Distractor{Form: pool[i].Form, Meaning: pool[i].Meaning})
	}

	for _, form := range mutations(w.Form) {
		if len(out) >= MinDistractors {
			break
		}
		add(models.Distractor{Form: form})
	}
	return out
}

// meaningDecoys returns wrong meanings for w: the catalog's own first, then
// those of pool words. Synthesized forms carry no meaning and are never used.
func (b *Builder) meaningDecoys(w *models.Word) []string {
	out := meaningsOf(w.Distractors)
	for _, p := range b.others(w) {
		if strings.TrimSpace(p.Meaning) != "" {
			out = append(out, p.Meaning)
		}
	}
	return out
}

// others returns the pool without w, shuffled
func (b *Builder) others(w *models.Word) []models.Word {
	pool := make([]models.Word, 0, len(b.pool))
	for _, p := range b.pool {
		if p.ID != w.ID {
			pool = append(pool, p)
		}
	}
	b.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool
}

// fillChoices shuffles the correct text in with the decoys and labels the options
func (b *Builder) fillChoices(q *Question, correct string, decoys []string) {
	texts := []string{correct}
	seen := map[string]bool{grading.Normalize(correct): true}
	for _, d := range decoys {
		key := grading.Normalize(d)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		texts = append(texts, d)
		if len(texts) > MinDistractors {
			break
		}
	}

	correctIndex := 0
	b.rnd.Shuffle(len(texts), func(i, j int) {
		if i == correctIndex {
			correctIndex = j
		} else if j == correctIndex {
			correctIndex = i
		}
		texts[i], texts[j] = texts[j], texts[i]
	})

	q.Options = make([]Option, len(texts))
	for i, t := range texts {
		q.Options[i] = Option{ID: string(rune('a' + i)), Text: t}
	}
	q.CorrectOption = q.Options[correctIndex].ID
}

func formsOf(ds []models.Distractor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Form)
	}
	return out
}

// meaningsOf skips decoys that have no meaning; a synthesized form cannot stand in for one
func meaningsOf(ds []models.Distractor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		if strings.TrimSpace(d.Meaning) != "" {
			out = append(out, d.Meaning)
		}
	}
	return out
}

// mutations returns look-alike misspellings of a form
func mutations(form string) []string {
	r := []rune(strings.TrimSpace(form))
	if len(r) < 2 {
		return nil
	}
	var out []string
	// swap the two middle letters
	s := append([]rune(nil), r...)
	m := len(s) / 2
	s[m-1], s[m] = s[m], s[m-1]
	out = append(out, string(s))
	// double the last letter
	out = append(out, string(r)+string(r[len(r)-1]))
	// drop the second letter
	out = append(out, string(r[:1])+string(r[2:]))
	// swap the first two letters
	s = append([]rune(nil), r...)
	s[0], s[1] = s[1], s[0]
	out = append(out, string(s))
	return out
}

// BlankOut replaces every occurrence of word in the sentence with a blank,
// case-insensitively. Whole words and inflections starting with the word's stem
// ("runs", "making") are blanked up to the end of the token. A word found only
// inside a longer token blanks that token. If the word is not found the blank is appended.
func BlankOut(sentence, word string) string {
	target := foldRunes(strings.TrimSpace(word))
	if len(target) == 0 {
		return sentence
	}
	text := []rune(sentence)
	folded := foldRunes(sentence)

	spans := tokenSpans(text, folded, stem(target), true)
	if len(spans) == 0 {
		spans = tokenSpans(text, folded, target, false)
	}
	if len(spans) == 0 {
		return sentence + " " + Blank
	}
	var sb strings.Builder
	last := 0
	for _, sp := range spans {
		sb.WriteString(string(text[last:sp[0]]))
		sb.WriteString(Blank)
		last = sp[1]
	}
	sb.WriteString(string(text[last:]))
	return sb.String()
}

// tokenSpans finds needle in folded and widens each hit to the token around it.
// With atStart only hits beginning a token count.
func tokenSpans(text, folded, needle []rune, atStart bool) [][2]int {
	var spans [][2]int
	for i := 0; i+len(needle) <= len(folded); {
		if !hasRunes(folded[i:], needle) || (atStart && i > 0 && isWordRune(text[i-1])) {
			i++
			continue
		}
		start, end := i, i+len(needle)
		for start > 0 && isWordRune(text[start-1]) {
			start--
		}
		for end < len(text) && isWordRune(text[end]) {
			end++
		}
		spans = append(spans, [2]int{start, end})
		i = end
	}
	return spans
}

// stem drops a trailing e or y so "make" also finds "making" and "carry" finds "carried"
func stem(word []rune) []rune {
	if n := len(word); n > 3 && (word[n-1] == 'e' || word[n-1] == 'y') {
		return word[:n-1]
	}
	return word
}

func foldRunes(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

func hasRunes(s, prefix []rune) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i, c := range prefix {
		if s[i] != c {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}
