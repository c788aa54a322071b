// Package spaced_repetition owns the mastery lifecycle of every word a student
// works on and schedules the next review of yellow words.
package spaced_repetition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/engclass/pkg/models"
)

// maxErrorPatterns bounds the stored wrong submissions per word
const maxErrorPatterns = 20

var (
	// ErrIllegalTransition is returned when a status change is not on an allowed path
	ErrIllegalTransition = errors.New("spaced_repetition: illegal status transition")
	// ErrUnknownWord is returned when a transition needs an existing record
	ErrUnknownWord = errors.New("spaced_repetition: unknown word")
)

// TransitionObserver is notified after every status change that was persisted
type TransitionObserver func(wordID string, from, to models.Status)

// Stats counts records per tier
type Stats struct {
	Pending int `json:"pending"`
	Yellow  int `json:"yellow"`
	Red     int `json:"red"`
	Green   int `json:"green"`
}

// Tracker is the only writer of status and next-due times
type Tracker struct {
	store     Store
	policy    *Policy
	logger    *zap.Logger
	observers []TransitionObserver
	studentID string
}

// Option configures a Tracker
type Option func(*Tracker)

// WithPolicy overrides the default interval policy
func WithPolicy(p *Policy) Option {
	return func(t *Tracker) { t.policy = p }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithObserver registers a transition observer
func WithObserver(o TransitionObserver) Option {
	return func(t *Tracker) { t.observers = append(t.observers, o) }
}

// WithStudent stamps new records with the student id
func WithStudent(id string) Option {
	return func(t *Tracker) { t.studentID = id }
}

// NewTracker creates a tracker over the given store
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		policy: DefaultPolicy(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Policy returns the active interval policy
func (t *Tracker) Policy() *Policy {
	return t.policy
}

// Record returns the record for a word, or nil if the word was never seen
func (t *Tracker) Record(ctx context.Context, wordID string) (*models.MasteryRecord, error) {
	return t.store.Get(ctx, wordID)
}

// Track makes sure a pending record exists for a word entering a session
func (t *Tracker) Track(ctx context.Context, wordID string) error {
	rec, err := t.store.Get(ctx, wordID)
	if err != nil {
		return fmt.Errorf("failed to get mastery record: %w", err)
	}
	if rec != nil {
		return nil
	}
	return t.save(ctx, t.newRecord(wordID), "")
}

// Accept moves a word from pending to yellow after it passed the acceptance gate
func (t *Tracker) Accept(ctx context.Context, wordID string, now time.Time) error {
	rec, err := t.load(ctx, wordID, true)
	if err != nil {
		return err
	}
	if rec.Status != models.StatusPending {
		return t.illegal(wordID, rec.Status, models.StatusYellow)
	}
	from := rec.Status
	rec.Status = models.StatusYellow
	rec.RetrainQueued = false
	if rec.FirstAcceptedAt == nil {
		rec.FirstAcceptedAt = &now
	}
	t.restartCycle(rec, now)
	return t.save(ctx, rec, from)
}

// QueueRetrain records a failed acceptance; the word stays pending and is queued
// for the next session's drill
func (t *Tracker) QueueRetrain(ctx context.Context, wordID string, submitted []string, now time.Time) error {
	rec, err := t.load(ctx, wordID, true)
	if err != nil {
		return err
	}
	if rec.Status != models.StatusPending {
		return t.illegal(wordID, rec.Status, models.StatusPending)
	}
	rec.RetrainQueued = true
	rec.LastReviewedAt = &now
	t.addErrors(rec, submitted)
	return t.save(ctx, rec, rec.Status)
}

// ReviewPassed handles a successful scheduled review of a yellow word
func (t *Tracker) ReviewPassed(ctx context.Context, wordID string, now time.Time) error {
	rec, err := t.loadStatus(ctx, wordID, models.StatusYellow, models.StatusYellow)
	if err != nil {
		return err
	}
	rec.ReviewCount++
	rec.PushOutcome(true)
	rec.LastReviewedAt = &now

	if t.policy.IsMastered(rec, now) {
		rec.Status = models.StatusGreen
		rec.NextDueAt = nil
		return t.save(ctx, rec, models.StatusYellow)
	}
	next := now.Add(t.policy.Interval(rec.ReviewCount))
	rec.NextDueAt = &next
	return t.save(ctx, rec, models.StatusYellow)
}

// ReviewDegraded handles a review that only succeeded after a skeleton hint.
// The word stays yellow but its cycle restarts at day 0.
func (t *Tracker) ReviewDegraded(ctx context.Context, wordID, submitted string, now time.Time) error {
	rec, err := t.loadStatus(ctx, wordID, models.StatusYellow, models.StatusYellow)
	if err != nil {
		return err
	}
	rec.PushOutcome(false)
	t.addErrors(rec, []string{submitted})
	t.restartCycle(rec, now)
	return t.save(ctx, rec, models.StatusYellow)
}

// ReviewFailed handles a circuit-break during a scheduled review: yellow lapses to red.
// The review count is kept; the word leaves the review queue.
func (t *Tracker) ReviewFailed(ctx context.Context, wordID, submitted string, now time.Time) error {
	rec, err := t.loadStatus(ctx, wordID, models.StatusYellow, models.StatusRed)
	if err != nil {
		return err
	}
	rec.Status = models.StatusRed
	rec.PushOutcome(false)
	rec.LastReviewedAt = &now
	rec.NextDueAt = nil
	t.addErrors(rec, []string{submitted})
	return t.save(ctx, rec, models.StatusYellow)
}

// RemediationPassed moves a red word back into a fresh 3-day cycle
func (t *Tracker) RemediationPassed(ctx context.Context, wordID string, now time.Time) error {
	rec, err := t.loadStatus(ctx, wordID, models.StatusRed, models.StatusYellow)
	if err != nil {
		return err
	}
	rec.Status = models.StatusYellow
	if rec.FirstAcceptedAt == nil {
		rec.FirstAcceptedAt = &now
	}
	t.restartCycle(rec, now)
	return t.save(ctx, rec, models.StatusRed)
}

// RemediationFailed keeps a red word red after its attempts were exhausted
func (t *Tracker) RemediationFailed(ctx context.Context, wordID string, submitted []string, now time.Time) error {
	rec, err := t.loadStatus(ctx, wordID, models.StatusRed, models.StatusRed)
	if err != nil {
		return err
	}
	rec.LastReviewedAt = &now
	t.addErrors(rec, submitted)
	return t.save(ctx, rec, models.StatusRed)
}

// DueWords returns yellow records due for review at now
func (t *Tracker) DueWords(ctx context.Context, now time.Time) ([]models.MasteryRecord, error) {
	recs, err := t.store.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due words: %w", err)
	}
	return recs, nil
}

// RedWords returns words awaiting remediation
func (t *Tracker) RedWords(ctx context.Context) ([]models.MasteryRecord, error) {
	recs, err := t.store.ListByStatus(ctx, models.StatusRed)
	if err != nil {
		return nil, fmt.Errorf("failed to list red words: %w", err)
	}
	return recs, nil
}

// RedWordIDs returns the ids of words awaiting remediation
func (t *Tracker) RedWordIDs(ctx context.Context) ([]string, error) {
	recs, err := t.RedWords(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.WordID)
	}
	return ids, nil
}

// RetrainQueue returns pending words that failed acceptance in an earlier session
func (t *Tracker) RetrainQueue(ctx context.Context) ([]models.MasteryRecord, error) {
	recs, err := t.store.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending words: %w", err)
	}
	out := recs[:0]
	for _, r := range recs {
		if r.RetrainQueued {
			out = append(out, r)
		}
	}
	return out, nil
}

// Stats counts the student's records per tier
func (t *Tracker) Stats(ctx context.Context) (Stats, error) {
	recs, err := t.store.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list mastery records: %w", err)
	}
	var s Stats
	for _, r := range recs {
		switch r.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusYellow:
			s.Yellow++
		case models.StatusRed:
			s.Red++
		case models.StatusGreen:
			s.Green++
		}
	}
	return s, nil
}

func (t *Tracker) restartCycle(rec *models.MasteryRecord, now time.Time) {
	rec.ReviewCount = 0
	rec.LastReviewedAt = &now
	next := now.Add(t.policy.Interval(0))
	rec.NextDueAt = &next
}

func (t *Tracker) addErrors(rec *models.MasteryRecord, submitted []string) {
	for _, s := range submitted {
		rec.ErrorCount++
		if s == "" {
			continue
		}
		rec.ErrorPatterns = append(rec.ErrorPatterns, s)
	}
	if n := len(rec.ErrorPatterns); n > maxErrorPatterns {
		rec.ErrorPatterns = append([]string(nil), rec.ErrorPatterns[n-maxErrorPatterns:]...)
	}
}

func (t *Tracker) newRecord(wordID string) *models.MasteryRecord {
	return &models.MasteryRecord{
		StudentID: t.studentID,
		WordID:    wordID,
		Status:    models.StatusPending,
	}
}

// load fetches a record; a missing record is created as pending when allowed
func (t *Tracker) load(ctx context.Context, wordID string, createPending bool) (*models.MasteryRecord, error) {
	rec, err := t.store.Get(ctx, wordID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery record: %w", err)
	}
	if rec == nil {
		if !createPending {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWord, wordID)
		}
		rec = t.newRecord(wordID)
	}
	return rec, nil
}

func (t *Tracker) loadStatus(ctx context.Context, wordID string, want, to models.Status) (*models.MasteryRecord, error) {
	rec, err := t.load(ctx, wordID, false)
	if err != nil {
		return nil, err
	}
	if rec.Status != want {
		return nil, t.illegal(wordID, rec.Status, to)
	}
	return rec, nil
}

func (t *Tracker) illegal(wordID string, from, to models.Status) error {
	return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, wordID, from, to)
}

func (t *Tracker) save(ctx context.Context, rec *models.MasteryRecord, from models.Status) error {
	if err := t.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save mastery record: %w", err)
	}
	if from == "" {
		from = rec.Status
	}
	if from != rec.Status {
		t.logger.Info("mastery transition",
			zap.String("word_id", rec.WordID),
			zap.Stringer("from", from),
			zap.Stringer("to", rec.Status))
	}
	for _, o := range t.observers {
		o(rec.WordID, from, rec.Status)
	}
	return nil
}
