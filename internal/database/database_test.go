package database

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/engclass/internal/spaced_repetition"
	"github.com/example/engclass/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Connect(Config{Type: TypeSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func assertTime(t *testing.T, want time.Time, got *time.Time) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got), "want %s, got %s", want, got)
}

func TestConnectRejectsUnknownType(t *testing.T) {
	_, err := Connect(Config{Type: "oracle"})
	assert.Error(t, err)
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, InitSchema(db))
}

func TestMasteryRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMasteryRepository(openTestDB(t), "anna")

	rec, err := repo.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	due := t0.Add(3 * day)
	in := &models.MasteryRecord{
		WordID:          "w1",
		Status:          models.StatusYellow,
		ReviewCount:     2,
		ErrorCount:      1,
		ErrorPatterns:   []string{"wrod"},
		RecentOutcomes:  []bool{true, false, true},
		FirstAcceptedAt: &t0,
		LastReviewedAt:  &t0,
		NextDueAt:       &due,
	}
	require.NoError(t, repo.Save(ctx, in))

	got, err := repo.Get(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "anna", got.StudentID)
	assert.Equal(t, models.StatusYellow, got.Status)
	assert.Equal(t, 2, got.ReviewCount)
	assert.Equal(t, []string{"wrod"}, got.ErrorPatterns)
	assert.Equal(t, []bool{true, false, true}, got.RecentOutcomes)
	assertTime(t, t0, got.FirstAcceptedAt)
	assertTime(t, due, got.NextDueAt)

	in.Status = models.StatusRed
	in.NextDueAt = nil
	require.NoError(t, repo.Save(ctx, in))
	got, err = repo.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRed, got.Status)
	assert.Nil(t, got.NextDueAt)
}

func TestMasteryRepositoryIsolatesStudents(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	anna := NewMasteryRepository(db, "anna")
	ben := NewMasteryRepository(db, "ben")

	require.NoError(t, anna.Save(ctx, &models.MasteryRecord{WordID: "w1", Status: models.StatusPending}))

	rec, err := ben.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	list, err := anna.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTrackerOverSQL(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	tr := spaced_repetition.NewTracker(NewMasteryRepository(db, "anna"), spaced_repetition.WithStudent("anna"))

	require.NoError(t, tr.Accept(ctx, "late", t0.Add(day)))
	require.NoError(t, tr.Accept(ctx, "early", t0))
	require.NoError(t, tr.Accept(ctx, "future", t0.Add(10*day)))
	require.NoError(t, tr.QueueRetrain(ctx, "again", []string{"agian"}, t0))
	require.NoError(t, tr.Accept(ctx, "lapsed", t0))
	require.NoError(t, tr.ReviewFailed(ctx, "lapsed", "lapst", t0.Add(3*day)))

	due, err := tr.DueWords(ctx, t0.Add(4*day))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].WordID)
	assert.Equal(t, "late", due[1].WordID)

	queue, err := tr.RetrainQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "again", queue[0].WordID)

	red, err := tr.RedWordIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lapsed"}, red)

	stats, err := tr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, spaced_repetition.Stats{Pending: 1, Yellow: 3, Red: 1}, stats)
}

func TestDueCounts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	for _, student := range []string{"anna", "ben"} {
		tr := spaced_repetition.NewTracker(NewMasteryRepository(db, student))
		require.NoError(t, tr.Accept(ctx, "w1", t0))
	}
	tr := spaced_repetition.NewTracker(NewMasteryRepository(db, "anna"))
	require.NoError(t, tr.Accept(ctx, "w2", t0.Add(day)))
	require.NoError(t, tr.Accept(ctx, "w3", t0.Add(20*day)))

	counts, err := NewReviewRepository(db).DueCounts(ctx, t0.Add(5*day))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"anna": 2, "ben": 1}, counts)
}

type redIDs []string

func (r redIDs) RedWordIDs(context.Context) ([]string, error) { return r, nil }

func sampleWords() []models.Word {
	return []models.Word{
		{
			ID:       "w1",
			Form:     "brook",
			Meaning:  "small stream",
			Contexts: []string{"The brook ran past the mill."},
			Sound:    &models.Sound{Phonetic: "/brʊk/", Syllables: []string{"brook"}},
			Logic:    &models.Logic{Mnemonic: "a book by the water", Confusables: []string{"brock"}},
			Distractors: []models.Distractor{
				{Form: "brick", Meaning: "clay block"},
			},
		},
		{ID: "w2", Form: "meadow", Meaning: "grassy field"},
		{ID: "w3", Form: "ridge", Meaning: "long narrow hilltop", Visual: &models.Visual{ImageURL: "https://img/ridge.png"}},
	}
}

func TestWordRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewWordRepository(openTestDB(t))

	n, err := repo.SaveAll(ctx, sampleWords())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	w, err := repo.GetWordByID(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, sampleWords()[0], *w)

	plain, err := repo.GetWordByID(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, plain.Sound)
	assert.Nil(t, plain.Contexts)

	missing, err := repo.GetWordByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	random, err := repo.GetRandomWords(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, random, 2)

	updated := sampleWords()[1]
	updated.Meaning = "open grassland"
	require.NoError(t, repo.Save(ctx, updated))
	w, err = repo.GetWordByID(ctx, "w2")
	require.NoError(t, err)
	assert.Equal(t, "open grassland", w.Meaning)
}

func TestWordRepositoryRedWords(t *testing.T) {
	ctx := context.Background()
	repo := NewWordRepository(openTestDB(t))
	_, err := repo.SaveAll(ctx, sampleWords())
	require.NoError(t, err)

	red, err := repo.GetRedWords(ctx)
	require.NoError(t, err)
	assert.Empty(t, red)

	repo.WithRedSource(redIDs{"w3", "w1", "gone"})
	red, err = repo.GetRedWords(ctx)
	require.NoError(t, err)
	require.Len(t, red, 2)
	assert.Equal(t, "brook", red[0].Form)
	assert.Equal(t, "ridge", red[1].Form)
}
