package catalog

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/engclass/pkg/models"
)

type staticRed []string

func (s staticRed) RedWordIDs(context.Context) ([]string, error) { return s, nil }

func sample() []models.Word {
	return []models.Word{
		{ID: "a", Form: "apple", Meaning: "fruit"},
		{ID: "b", Form: "bread", Meaning: "food"},
		{ID: "c", Form: "cloud", Meaning: "sky thing"},
	}
}

func TestMemoryGetWordByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(sample()...)

	w, err := m.GetWordByID(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "bread", w.Form)

	w, err = m.GetWordByID(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestMemoryGetRandomWords(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(sample()...).WithRand(rand.New(rand.NewSource(1)))

	words, err := m.GetRandomWords(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, words, 2)
	assert.NotEqual(t, words[0].ID, words[1].ID)

	words, err = m.GetRandomWords(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, words, 3)
}

func TestMemoryGetRedWords(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(sample()...)
	words, err := m.GetRedWords(ctx)
	require.NoError(t, err)
	assert.Empty(t, words)

	m.WithRedSource(staticRed{"c", "a", "missing"})
	words, err = m.GetRedWords(ctx)
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "a", words[0].ID)
	assert.Equal(t, "c", words[1].ID)
}
