package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/engclass/internal/catalog"
	"github.com/example/engclass/pkg/models"
)

const wordColumns = `id, form, meaning, contexts, sound, visual, logic, distractors`

// wordRow is the stored shape of a word; nested content is kept as JSON text
type wordRow struct {
	ID          string         `db:"id"`
	Form        string         `db:"form"`
	Meaning     string         `db:"meaning"`
	Contexts    string         `db:"contexts"`
	Sound       sql.NullString `db:"sound"`
	Visual      sql.NullString `db:"visual"`
	Logic       sql.NullString `db:"logic"`
	Distractors string         `db:"distractors"`
}

func encodeOptional(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func toWordRow(w models.Word) (wordRow, error) {
	row := wordRow{ID: w.ID, Form: w.Form, Meaning: w.Meaning}

	contexts := w.Contexts
	if contexts == nil {
		contexts = []string{}
	}
	b, err := json.Marshal(contexts)
	if err != nil {
		return row, fmt.Errorf("failed to encode contexts: %w", err)
	}
	row.Contexts = string(b)

	distractors := w.Distractors
	if distractors == nil {
		distractors = []models.Distractor{}
	}
	if b, err = json.Marshal(distractors); err != nil {
		return row, fmt.Errorf("failed to encode distractors: %w", err)
	}
	row.Distractors = string(b)

	if row.Sound, err = encodeOptional(w.Sound, w.Sound != nil); err != nil {
		return row, fmt.Errorf("failed to encode sound: %w", err)
	}
	if row.Visual, err = encodeOptional(w.Visual, w.Visual != nil); err != nil {
		return row, fmt.Errorf("failed to encode visual: %w", err)
	}
	if row.Logic, err = encodeOptional(w.Logic, w.Logic != nil); err != nil {
		return row, fmt.Errorf("failed to encode logic: %w", err)
	}
	return row, nil
}

func (row wordRow) word() (models.Word, error) {
	w := models.Word{ID: row.ID, Form: row.Form, Meaning: row.Meaning}
	if err := json.Unmarshal([]byte(row.Contexts), &w.Contexts); err != nil {
		return w, fmt.Errorf("failed to decode contexts of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Distractors), &w.Distractors); err != nil {
		return w, fmt.Errorf("failed to decode distractors of %s: %w", row.ID, err)
	}
	if len(w.Contexts) == 0 {
		w.Contexts = nil
	}
	if len(w.Distractors) == 0 {
		w.Distractors = nil
	}
	if row.Sound.Valid {
		w.Sound = &models.Sound{}
		if err := json.Unmarshal([]byte(row.Sound.String), w.Sound); err != nil {
			return w, fmt.Errorf("failed to decode sound of %s: %w", row.ID, err)
		}
	}
	if row.Visual.Valid {
		w.Visual = &models.Visual{}
		if err := json.Unmarshal([]byte(row.Visual.String), w.Visual); err != nil {
			return w, fmt.Errorf("failed to decode visual of %s: %w", row.ID, err)
		}
	}
	if row.Logic.Valid {
		w.Logic = &models.Logic{}
		if err := json.Unmarshal([]byte(row.Logic.String), w.Logic); err != nil {
			return w, fmt.Errorf("failed to decode logic of %s: %w", row.ID, err)
		}
	}
	return w, nil
}

// WordRepository handles database operations for catalog words
type WordRepository struct {
	db  *sqlx.DB
	red catalog.RedSource
}

var _ catalog.Catalog = (*WordRepository)(nil)

// NewWordRepository creates a new repository instance
func NewWordRepository(db *sqlx.DB) *WordRepository {
	return &WordRepository{db: db}
}

// WithRedSource sets where red word ids come from
func (r *WordRepository) WithRedSource(src catalog.RedSource) *WordRepository {
	r.red = src
	return r
}

const upsertWord = `
	INSERT INTO words (` + wordColumns + `)
	VALUES (:id, :form, :meaning, :contexts, :sound, :visual, :logic, :distractors)
	ON CONFLICT (id) DO UPDATE SET
		form = excluded.form,
		meaning = excluded.meaning,
		contexts = excluded.contexts,
		sound = excluded.sound,
		visual = excluded.visual,
		logic = excluded.logic,
		distractors = excluded.distractors,
		updated_at = CURRENT_TIMESTAMP
`

// Save inserts or replaces a word
func (r *WordRepository) Save(ctx context.Context, w models.Word) error {
	row, err := toWordRow(w)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, upsertWord, row); err != nil {
		return fmt.Errorf("failed to save word: %w", err)
	}
	return nil
}

// SaveAll stores words in one transaction and returns how many were written
func (r *WordRepository) SaveAll(ctx context.Context, words []models.Word) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, w := range words {
		row, err := toWordRow(w)
		if err != nil {
			return 0, err
		}
		if _, err := tx.NamedExecContext(ctx, upsertWord, row); err != nil {
			return 0, fmt.Errorf("failed to save word %s: %w", w.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit words: %w", err)
	}
	return len(words), nil
}

// GetWordByID returns nil, nil when the word does not exist
func (r *WordRepository) GetWordByID(ctx context.Context, id string) (*models.Word, error) {
	var row wordRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+wordColumns+` FROM words WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get word: %w", err)
	}
	w, err := row.word()
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetRandomWords returns up to n words in random order
func (r *WordRepository) GetRandomWords(ctx context.Context, n int) ([]models.Word, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.selectWords(ctx, `SELECT `+wordColumns+` FROM words ORDER BY RANDOM() LIMIT ?`, n)
}

// GetRedWords returns the catalog entries of the red source's words
func (r *WordRepository) GetRedWords(ctx context.Context) ([]models.Word, error) {
	if r.red == nil {
		return nil, nil
	}
	ids, err := r.red.RedWordIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get red word ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+wordColumns+` FROM words WHERE id IN (?) ORDER BY form`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build red words query: %w", err)
	}
	return r.selectWords(ctx, query, args...)
}

// List returns every word ordered by form
func (r *WordRepository) List(ctx context.Context) ([]models.Word, error) {
	return r.selectWords(ctx, `SELECT `+wordColumns+` FROM words ORDER BY form`)
}

// Count returns the number of stored words
func (r *WordRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM words`); err != nil {
		return 0, fmt.Errorf("failed to count words: %w", err)
	}
	return n, nil
}

func (r *WordRepository) selectWords(ctx context.Context, query string, args ...any) ([]models.Word, error) {
	var rows []wordRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get words: %w", err)
	}
	words := make([]models.Word, 0, len(rows))
	for _, row := range rows {
		w, err := row.word()
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, nil
}
