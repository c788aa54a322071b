package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/engclass/pkg/models"
)

const masteryColumns = `student_id, word_id, status, review_count, error_count, error_patterns,
	recent_outcomes, first_accepted_at, last_reviewed_at, next_due_at, retrain_queued`

type masteryRow struct {
	StudentID       string       `db:"student_id"`
	WordID          string       `db:"word_id"`
	Status          string       `db:"status"`
	ReviewCount     int          `db:"review_count"`
	ErrorCount      int          `db:"error_count"`
	ErrorPatterns   string       `db:"error_patterns"`
	RecentOutcomes  string       `db:"recent_outcomes"`
	FirstAcceptedAt sql.NullTime `db:"first_accepted_at"`
	LastReviewedAt  sql.NullTime `db:"last_reviewed_at"`
	NextDueAt       sql.NullTime `db:"next_due_at"`
	RetrainQueued   bool         `db:"retrain_queued"`
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func toMasteryRow(rec *models.MasteryRecord) (masteryRow, error) {
	patterns, err := json.Marshal(nonNil(rec.ErrorPatterns))
	if err != nil {
		return masteryRow{}, fmt.Errorf("failed to encode error patterns: %w", err)
	}
	outcomes := rec.RecentOutcomes
	if outcomes == nil {
		outcomes = []bool{}
	}
	recent, err := json.Marshal(outcomes)
	if err != nil {
		return masteryRow{}, fmt.Errorf("failed to encode outcomes: %w", err)
	}
	return masteryRow{
		StudentID:       rec.StudentID,
		WordID:          rec.WordID,
		Status:          string(rec.Status),
		ReviewCount:     rec.ReviewCount,
		ErrorCount:      rec.ErrorCount,
		ErrorPatterns:   string(patterns),
		RecentOutcomes:  string(recent),
		FirstAcceptedAt: nullTime(rec.FirstAcceptedAt),
		LastReviewedAt:  nullTime(rec.LastReviewedAt),
		NextDueAt:       nullTime(rec.NextDueAt),
		RetrainQueued:   rec.RetrainQueued,
	}, nil
}

func (row masteryRow) record() (models.MasteryRecord, error) {
	rec := models.MasteryRecord{
		StudentID:       row.StudentID,
		WordID:          row.WordID,
		ReviewCount:     row.ReviewCount,
		ErrorCount:      row.ErrorCount,
		FirstAcceptedAt: timePtr(row.FirstAcceptedAt),
		LastReviewedAt:  timePtr(row.LastReviewedAt),
		NextDueAt:       timePtr(row.NextDueAt),
		RetrainQueued:   row.RetrainQueued,
	}
	if err := rec.Status.UnmarshalText([]byte(row.Status)); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(row.ErrorPatterns), &rec.ErrorPatterns); err != nil {
		return rec, fmt.Errorf("failed to decode error patterns: %w", err)
	}
	if err := json.Unmarshal([]byte(row.RecentOutcomes), &rec.RecentOutcomes); err != nil {
		return rec, fmt.Errorf("failed to decode outcomes: %w", err)
	}
	if len(rec.ErrorPatterns) == 0 {
		rec.ErrorPatterns = nil
	}
	if len(rec.RecentOutcomes) == 0 {
		rec.RecentOutcomes = nil
	}
	return rec, nil
}

// MasteryRepository stores one student's mastery records
type MasteryRepository struct {
	db        *sqlx.DB
	studentID string
}

// NewMasteryRepository creates a new repository instance for a student
func NewMasteryRepository(db *sqlx.DB, studentID string) *MasteryRepository {
	return &MasteryRepository{db: db, studentID: studentID}
}

// Get returns the record for a word, or nil if there is none
func (r *MasteryRepository) Get(ctx context.Context, wordID string) (*models.MasteryRecord, error) {
	var row masteryRow
	query := r.db.Rebind(`SELECT ` + masteryColumns + ` FROM word_mastery WHERE student_id = ? AND word_id = ?`)
	err := r.db.GetContext(ctx, &row, query, r.studentID, wordID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery record: %w", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save inserts or replaces a record
func (r *MasteryRepository) Save(ctx context.Context, rec *models.MasteryRecord) error {
	c := rec.Clone()
	c.StudentID = r.studentID
	row, err := toMasteryRow(&c)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO word_mastery (`+masteryColumns+`)
		VALUES (:student_id, :word_id, :status, :review_count, :error_count, :error_patterns,
			:recent_outcomes, :first_accepted_at, :last_reviewed_at, :next_due_at, :retrain_queued)
		ON CONFLICT (student_id, word_id) DO UPDATE SET
			status = excluded.status,
			review_count = excluded.review_count,
			error_count = excluded.error_count,
			error_patterns = excluded.error_patterns,
			recent_outcomes = excluded.recent_outcomes,
			first_accepted_at = excluded.first_accepted_at,
			last_reviewed_at = excluded.last_reviewed_at,
			next_due_at = excluded.next_due_at,
			retrain_queued = excluded.retrain_queued,
			updated_at = CURRENT_TIMESTAMP
	`, row)
	if err != nil {
		return fmt.Errorf("failed to save mastery record: %w", err)
	}
	return nil
}

// List returns every record of the student ordered by word id
func (r *MasteryRepository) List(ctx context.Context) ([]models.MasteryRecord, error) {
	return r.selectRecords(ctx, `SELECT `+masteryColumns+` FROM word_mastery WHERE student_id = ? ORDER BY word_id`, r.studentID)
}

// ListByStatus returns the student's records in one tier ordered by word id
func (r *MasteryRepository) ListByStatus(ctx context.Context, status models.Status) ([]models.MasteryRecord, error) {
	return r.selectRecords(ctx, `SELECT `+masteryColumns+` FROM word_mastery WHERE student_id = ? AND status = ? ORDER BY word_id`,
		r.studentID, string(status))
}

// ListDue returns yellow records due at now, most overdue first.
// Due times are compared in Go so both drivers agree on timestamp semantics.
func (r *MasteryRepository) ListDue(ctx context.Context, now time.Time) ([]models.MasteryRecord, error) {
	yellow, err := r.ListByStatus(ctx, models.StatusYellow)
	if err != nil {
		return nil, err
	}
	due := yellow[:0]
	for _, rec := range yellow {
		if rec.IsDue(now) {
			due = append(due, rec)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextDueAt.Before(*due[j].NextDueAt) })
	return due, nil
}

func (r *MasteryRepository) selectRecords(ctx context.Context, query string, args ...any) ([]models.MasteryRecord, error) {
	var rows []masteryRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list mastery records: %w", err)
	}
	out := make([]models.MasteryRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReviewRepository answers cross-student review questions for reminders
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository creates a new repository instance
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// DueCounts returns the number of due yellow words per student
func (r *ReviewRepository) DueCounts(ctx context.Context, now time.Time) (map[string]int, error) {
	var rows []struct {
		StudentID string       `db:"student_id"`
		NextDueAt sql.NullTime `db:"next_due_at"`
	}
	query := r.db.Rebind(`SELECT student_id, next_due_at FROM word_mastery WHERE status = ?`)
	if err := r.db.SelectContext(ctx, &rows, query, string(models.StatusYellow)); err != nil {
		return nil, fmt.Errorf("failed to get due words: %w", err)
	}
	counts := make(map[string]int)
	for _, row := range rows {
		if row.NextDueAt.Valid && !row.NextDueAt.Time.After(now) {
			counts[row.StudentID]++
		}
	}
	return counts, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
