package spaced_repetition

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/engclass/pkg/models"
)

// Store persists mastery records for one student
type Store interface {
	// Get returns nil, nil when the word has no record
	Get(ctx context.Context, wordID string) (*models.MasteryRecord, error)
	Save(ctx context.Context, rec *models.MasteryRecord) error
	List(ctx context.Context) ([]models.MasteryRecord, error)
	ListByStatus(ctx context.Context, status models.Status) ([]models.MasteryRecord, error)
	// ListDue returns yellow records due at now, most overdue first
	ListDue(ctx context.Context, now time.Time) ([]models.MasteryRecord, error)
}

// MemoryStore keeps records in a map
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.MasteryRecord
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.MasteryRecord)}
}

func (s *MemoryStore) Get(_ context.Context, wordID string) (*models.MasteryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[wordID]
	if !ok {
		return nil, nil
	}
	c := rec.Clone()
	return &c, nil
}

func (s *MemoryStore) Save(_ context.Context, rec *models.MasteryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.WordID] = rec.Clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.MasteryRecord, error) {
	return s.filter(func(models.MasteryRecord) bool { return true }), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.Status) ([]models.MasteryRecord, error) {
	return s.filter(func(r models.MasteryRecord) bool { return r.Status == status }), nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time) ([]models.MasteryRecord, error) {
	due := s.filter(func(r models.MasteryRecord) bool { return r.IsDue(now) })
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(*due[j].NextDueAt)
	})
	return due, nil
}

func (s *MemoryStore) filter(keep func(models.MasteryRecord) bool) []models.MasteryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MasteryRecord, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WordID < out[j].WordID })
	return out
}
