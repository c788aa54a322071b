package training

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/engclass/internal/drill"
)

func answerAll(e *Engine, correct bool) {
	for {
		if _, _, ok := e.Current(); !ok {
			return
		}
		e.Report(correct)
		if e.State().Cursor == 0 {
			return
		}
	}
}

func TestEmptyWorkingSetIsDone(t *testing.T) {
	e := New(nil)
	assert.True(t, e.Done())
	_, _, ok := e.Current()
	assert.False(t, ok)
}

func TestAllCorrectRunsThreeModalities(t *testing.T) {
	e := New([]string{"a", "b", "a"})
	assert.Equal(t, []string{"a", "b"}, e.Words())

	for m := drill.ModalityAudioToForm; m <= drill.ModalitySkeletonSpelling; m++ {
		w, got, ok := e.Current()
		require.True(t, ok)
		assert.Equal(t, "a", w)
		assert.Equal(t, m, got)
		answerAll(e, true)
	}
	assert.True(t, e.Done())
	assert.False(t, e.Aborted())
	assert.Len(t, e.History(), 3)
}

// An intake miss fails modality 1 once, is retried alone in modality 1,
// then modality 2 runs over the full original set.
func TestRetryRepeatsModalityThenAdvancesWithFullSet(t *testing.T) {
	e := New([]string{"x", "y"})

	e.Report(false) // x
	e.Report(true)  // y

	st := e.State()
	assert.Equal(t, drill.ModalityAudioToForm, st.RoundNumber)
	assert.True(t, st.IsRetryRound)
	assert.Equal(t, []string{"x"}, st.FixedWordSet)
	assert.Empty(t, st.MissedThisRound)

	w, m, ok := e.Current()
	require.True(t, ok)
	assert.Equal(t, "x", w)
	assert.Equal(t, drill.ModalityAudioToForm, m)
	e.Report(true)

	st = e.State()
	assert.Equal(t, drill.ModalityFlashToMeaning, st.RoundNumber)
	assert.False(t, st.IsRetryRound)
	assert.Equal(t, []string{"x", "y"}, st.FixedWordSet)
	assert.Equal(t, 3, st.Pass)
}

func TestMissedWordsRecordedOnce(t *testing.T) {
	e := New([]string{"a"})
	e.Report(false)
	e.Report(false)
	h := e.History()
	require.Len(t, h, 2)
	assert.Equal(t, []string{"a"}, h[0].Missed)
	assert.Equal(t, []string{"a"}, h[1].Missed)
	assert.True(t, h[1].Retry)
}

func TestSkipIsNotRetried(t *testing.T) {
	e := New([]string{"a", "b"})
	e.Skip()
	e.Report(true)

	st := e.State()
	assert.Equal(t, drill.ModalityFlashToMeaning, st.RoundNumber)
	assert.Equal(t, []string{"a", "b"}, st.FixedWordSet)
	assert.Equal(t, []string{"a"}, e.History()[0].Skipped)
}

func TestAbortEndsStuckLoop(t *testing.T) {
	e := New([]string{"a", "b"})
	for i := 0; i < 20; i++ {
		e.Report(false)
	}
	assert.False(t, e.Done())
	e.Abort()
	assert.True(t, e.Done())
	assert.True(t, e.Aborted())
	_, _, ok := e.Current()
	assert.False(t, ok)

	e.Report(true)
	completed, total := e.Progress()
	assert.Equal(t, 2, completed)
	assert.Equal(t, 2, total)
}

func isSubset(sub, super []string) bool {
	set := make(map[string]bool, len(super))
	for _, s := range super {
		set[s] = true
	}
	for _, s := range sub {
		if !set[s] {
			return false
		}
	}
	return true
}

func TestRandomOutcomesConverge(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	words := []string{"w1", "w2", "w3", "w4", "w5", "w6"}

	for run := 0; run < 200; run++ {
		n := 1 + rnd.Intn(len(words))
		pCorrect := 0.3 + rnd.Float64()*0.6
		e := New(words[:n])

		steps := 0
		for !e.Done() {
			require.Less(t, steps, 100000, "run %d did not converge", run)
			_, m, ok := e.Current()
			require.True(t, ok)
			require.LessOrEqual(t, int(m), drill.Modalities)
			e.Report(rnd.Float64() < pCorrect)
			steps++
		}

		h := e.History()
		require.NotEmpty(t, h)
		last := h[len(h)-1]
		assert.Equal(t, drill.ModalitySkeletonSpelling, last.Modality)
		assert.Empty(t, last.Missed)

		for i, p := range h {
			if !p.Retry {
				assert.Equal(t, words[:n], p.Words, "run %d pass %d", run, i)
				continue
			}
			prev := h[i-1]
			assert.Equal(t, prev.Modality, p.Modality)
			assert.Equal(t, prev.Missed, p.Words)
			assert.True(t, isSubset(p.Words, prev.Words))
		}
		for i := 1; i < len(h); i++ {
			if h[i].Modality != h[i-1].Modality {
				assert.Empty(t, h[i-1].Missed, "modality advanced with misses")
				assert.Equal(t, h[i-1].Modality+1, h[i].Modality)
			}
		}
	}
}
