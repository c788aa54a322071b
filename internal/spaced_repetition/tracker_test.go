package spaced_repetition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/engclass/pkg/models"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func newTracker(t *testing.T, opts ...Option) (*Tracker, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewTracker(store, opts...), store
}

func mustRecord(t *testing.T, tr *Tracker, wordID string) *models.MasteryRecord {
	t.Helper()
	rec, err := tr.Record(context.Background(), wordID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestAcceptStartsThreeDayCycle(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)

	require.NoError(t, tr.Track(ctx, "w1"))
	assert.Equal(t, models.StatusPending, mustRecord(t, tr, "w1").Status)

	require.NoError(t, tr.Accept(ctx, "w1", t0))
	rec := mustRecord(t, tr, "w1")
	assert.Equal(t, models.StatusYellow, rec.Status)
	assert.Equal(t, 0, rec.ReviewCount)
	require.NotNil(t, rec.NextDueAt)
	assert.Equal(t, t0.Add(3*day), *rec.NextDueAt)
	assert.Equal(t, t0, *rec.FirstAcceptedAt)
	assert.Equal(t, t0, *rec.LastReviewedAt)
}

func TestAcceptWithoutTrackCreatesRecord(t *testing.T) {
	tr, _ := newTracker(t)
	require.NoError(t, tr.Accept(context.Background(), "fresh", t0))
	assert.Equal(t, models.StatusYellow, mustRecord(t, tr, "fresh").Status)
}

func TestReviewIntervalsFollowSequence(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	require.NoError(t, tr.Accept(ctx, "w", t0))

	want := []time.Duration{3 * day, 7 * day, 30 * day, 30 * day}
	now := t0
	for i, interval := range want {
		now = now.Add(day)
		require.NoError(t, tr.ReviewPassed(ctx, "w", now))
		rec := mustRecord(t, tr, "w")
		assert.Equal(t, i+1, rec.ReviewCount)
		require.NotNil(t, rec.NextDueAt, "review %d", i+1)
		assert.Equal(t, interval, rec.NextDueAt.Sub(*rec.LastReviewedAt), "review %d", i+1)
	}
}

func TestGreenRequiresCountAgeAndAccuracy(t *testing.T) {
	ctx := context.Background()

	t.Run("too young stays yellow", func(t *testing.T) {
		tr, _ := newTracker(t)
		require.NoError(t, tr.Accept(ctx, "w", t0))
		for i := 1; i <= 6; i++ {
			require.NoError(t, tr.ReviewPassed(ctx, "w", t0.Add(time.Duration(i)*day)))
		}
		rec := mustRecord(t, tr, "w")
		assert.Equal(t, models.StatusYellow, rec.Status)
		assert.NotNil(t, rec.NextDueAt)
	})

	t.Run("five reviews after thirty days turns green", func(t *testing.T) {
		tr, _ := newTracker(t)
		require.NoError(t, tr.Accept(ctx, "w", t0))
		for i := 1; i <= 5; i++ {
			require.NoError(t, tr.ReviewPassed(ctx, "w", t0.Add(time.Duration(i*7)*day)))
		}
		rec := mustRecord(t, tr, "w")
		assert.Equal(t, models.StatusGreen, rec.Status)
		assert.Nil(t, rec.NextDueAt)
		assert.GreaterOrEqual(t, rec.ReviewCount, 5)
	})

	t.Run("low accuracy stays yellow", func(t *testing.T) {
		tr, store := newTracker(t)
		require.NoError(t, tr.Accept(ctx, "w", t0))
		rec := mustRecord(t, tr, "w")
		rec.ReviewCount = 4
		rec.RecentOutcomes = []bool{true, false, true, false, true, true, true, true, true}
		require.NoError(t, store.Save(ctx, rec))

		require.NoError(t, tr.ReviewPassed(ctx, "w", t0.Add(40*day)))
		assert.Equal(t, models.StatusYellow, mustRecord(t, tr, "w").Status)
	})
}

func TestGreenWordsNeverRescheduled(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	require.NoError(t, tr.Accept(ctx, "w", t0))
	for i := 1; i <= 5; i++ {
		require.NoError(t, tr.ReviewPassed(ctx, "w", t0.Add(time.Duration(i*7)*day)))
	}
	err := tr.ReviewPassed(ctx, "w", t0.Add(60*day))
	assert.ErrorIs(t, err, ErrIllegalTransition)

	due, err := tr.DueWords(ctx, t0.Add(365*day))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestReviewDegradedResetsCycle(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	require.NoError(t, tr.Accept(ctx, "w", t0))
	require.NoError(t, tr.ReviewPassed(ctx, "w", t0.Add(3*day)))
	require.NoError(t, tr.ReviewPassed(ctx, "w", t0.Add(6*day)))

	now := t0.Add(13 * day)
	require.NoError(t, tr.ReviewDegraded(ctx, "w", "wrod", now))
	rec := mustRecord(t, tr, "w")
	assert.Equal(t, models.StatusYellow, rec.Status)
	assert.Equal(t, 0, rec.ReviewCount)
	assert.Equal(t, now.Add(3*day), *rec.NextDueAt)
	assert.Equal(t, 1, rec.ErrorCount)
	assert.Equal(t, []string{"wrod"}, rec.ErrorPatterns)
}

func TestReviewFailedLapsesToRedKeepingCount(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	require.NoError(t, tr.Accept(ctx, "w", t0))
	require.NoError(t, tr.ReviewPassed(ctx, "w", t0.Add(3*day)))

	require.NoError(t, tr.ReviewFailed(ctx, "w", "xyz", t0.Add(6*day)))
	rec := mustRecord(t, tr, "w")
	assert.Equal(t, models.StatusRed, rec.Status)
	assert.Nil(t, rec.NextDueAt)
	assert.Equal(t, 1, rec.ReviewCount)

	reds, err := tr.RedWords(ctx)
	require.NoError(t, err)
	require.Len(t, reds, 1)
	assert.Equal(t, "w", reds[0].WordID)
}

func TestRemediation(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	require.NoError(t, tr.Accept(ctx, "w", t0))
	require.NoError(t, tr.ReviewFailed(ctx, "w", "", t0.Add(3*day)))

	require.NoError(t, tr.RemediationFailed(ctx, "w", []string{"a", "b"}, t0.Add(4*day)))
	rec := mustRecord(t, tr, "w")
	assert.Equal(t, models.StatusRed, rec.Status)
	assert.Nil(t, rec.NextDueAt)
	assert.Equal(t, 3, rec.ErrorCount)

	now := t0.Add(5 * day)
	require.NoError(t, tr.RemediationPassed(ctx, "w", now))
	rec = mustRecord(t, tr, "w")
	assert.Equal(t, models.StatusYellow, rec.Status)
	assert.Equal(t, now.Add(3*day), *rec.NextDueAt)
	assert.Equal(t, t0, *rec.FirstAcceptedAt)
}

func TestIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	require.NoError(t, tr.Track(ctx, "p"))

	assert.ErrorIs(t, tr.ReviewPassed(ctx, "p", t0), ErrIllegalTransition)
	assert.ErrorIs(t, tr.RemediationPassed(ctx, "p", t0), ErrIllegalTransition)
	assert.ErrorIs(t, tr.ReviewPassed(ctx, "missing", t0), ErrUnknownWord)

	require.NoError(t, tr.Accept(ctx, "p", t0))
	assert.ErrorIs(t, tr.Accept(ctx, "p", t0), ErrIllegalTransition)
	assert.ErrorIs(t, tr.QueueRetrain(ctx, "p", nil, t0), ErrIllegalTransition)

	require.NoError(t, tr.ReviewFailed(ctx, "p", "", t0))
	assert.ErrorIs(t, tr.ReviewPassed(ctx, "p", t0), ErrIllegalTransition)
	assert.ErrorIs(t, tr.Accept(ctx, "p", t0), ErrIllegalTransition)
}

func TestQueueRetrain(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	require.NoError(t, tr.QueueRetrain(ctx, "w", []string{"wrd", "wodr"}, t0))

	queue, err := tr.RetrainQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, models.StatusPending, queue[0].Status)
	assert.Nil(t, queue[0].NextDueAt)

	require.NoError(t, tr.Accept(ctx, "w", t0.Add(day)))
	queue, err = tr.RetrainQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestObserverAndStats(t *testing.T) {
	ctx := context.Background()
	var seen []string
	tr, _ := newTracker(t, WithObserver(func(id string, from, to models.Status) {
		seen = append(seen, id+":"+from.String()+">"+to.String())
	}))

	require.NoError(t, tr.Track(ctx, "a"))
	require.NoError(t, tr.Accept(ctx, "a", t0))
	require.NoError(t, tr.Accept(ctx, "b", t0))
	require.NoError(t, tr.ReviewFailed(ctx, "b", "", t0.Add(3*day)))
	require.NoError(t, tr.Track(ctx, "c"))

	assert.Equal(t, []string{"a:pending>pending", "a:pending>yellow", "b:pending>yellow", "b:yellow>red", "c:pending>pending"}, seen)

	stats, err := tr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, Yellow: 1, Red: 1}, stats)
}

func TestDueWordsOrder(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t)
	require.NoError(t, tr.Accept(ctx, "late", t0.Add(day)))
	require.NoError(t, tr.Accept(ctx, "early", t0))
	require.NoError(t, tr.Accept(ctx, "future", t0.Add(10*day)))

	due, err := tr.DueWords(ctx, t0.Add(4*day))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].WordID)
	assert.Equal(t, "late", due[1].WordID)
}

func TestPolicyInterval(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3*day, p.Interval(0))
	assert.Equal(t, 3*day, p.Interval(1))
	assert.Equal(t, 7*day, p.Interval(2))
	assert.Equal(t, 30*day, p.Interval(3))
	assert.Equal(t, 30*day, p.Interval(12))
	assert.Equal(t, 3*day, p.Interval(-1))
}
