// Package catalog provides read-only access to word content.
package catalog

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/example/engclass/pkg/models"
)

// Catalog is the word content provider consumed by a session
type Catalog interface {
	// GetWordByID returns nil, nil when the word does not exist
	GetWordByID(ctx context.Context, id string) (*models.Word, error)
	// GetRandomWords returns up to n words for intake
	GetRandomWords(ctx context.Context, n int) ([]models.Word, error)
	// GetRedWords returns words pending remediation
	GetRedWords(ctx context.Context) ([]models.Word, error)
}

// RedSource lists the ids of words currently marked red
type RedSource interface {
	RedWordIDs(ctx context.Context) ([]string, error)
}

// Memory is an in-process catalog
type Memory struct {
	mu    sync.RWMutex
	words map[string]models.Word
	order []string
	red   RedSource
	rnd   *rand.Rand
}

// NewMemory creates a catalog holding the given words
func NewMemory(words ...models.Word) *Memory {
	m := &Memory{
		words: make(map[string]models.Word, len(words)),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, w := range words {
		m.add(w)
	}
	return m
}

// WithRand makes random selection deterministic
func (m *Memory) WithRand(rnd *rand.Rand) *Memory {
	m.rnd = rnd
	return m
}

// WithRedSource sets where red word ids come from
func (m *Memory) WithRedSource(src RedSource) *Memory {
	m.red = src
	return m
}

// Add inserts or replaces a word
func (m *Memory) Add(w models.Word) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(w)
}

func (m *Memory) add(w models.Word) {
	if _, ok := m.words[w.ID]; !ok {
		m.order = append(m.order, w.ID)
	}
	m.words[w.ID] = w
}

func (m *Memory) GetWordByID(_ context.Context, id string) (*models.Word, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.words[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *Memory) GetRandomWords(_ context.Context, n int) ([]models.Word, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.order...)
	m.rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if n < len(ids) {
		ids = ids[:n]
	}
	words := make([]models.Word, 0, len(ids))
	for _, id := range ids {
		words = append(words, m.words[id])
	}
	return words, nil
}

func (m *Memory) GetRedWords(ctx context.Context) ([]models.Word, error) {
	if m.red == nil {
		return nil, nil
	}
	ids, err := m.red.RedWordIDs(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	m.mu.RLock()
	defer m.mu.RUnlock()
	words := make([]models.Word, 0, len(ids))
	for _, id := range ids {
		if w, ok := m.words[id]; ok {
			words = append(words, w)
		}
	}
	return words, nil
}
