package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AppachchiCodes/The-Human-Monument/internal/model"
	"github.com/AppachchiCodes/The-Human-Monument/internal/spiral"
)

// MemoryStore is an in-memory Store used by tests and by database-less dev
// runs. It enforces the same position/code uniqueness under a single write
// lock that Postgres enforces with constraints, so the admission retry path
// behaves identically against either backend.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*model.Contribution
	byCode    map[string]*model.Contribution
	positions map[spiral.Position]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*model.Contribution),
		byCode:    make(map[string]*model.Contribution),
		positions: make(map[spiral.Position]string),
	}
}

// Insert stores a record, rejecting duplicate positions and codes.
func (m *MemoryStore) Insert(_ context.Context, c *model.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := spiral.Position{X: c.X, Y: c.Y}
	if _, taken := m.positions[pos]; taken {
		return ErrPositionTaken
	}
	if _, taken := m.byCode[c.PublicCode]; taken {
		return ErrCodeTaken
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	m.byID[cp.ID] = &cp
	m.byCode[cp.PublicCode] = &cp
	m.positions[pos] = cp.ID
	return nil
}

// OccupiedPositions returns the positions of all approved records.
func (m *MemoryStore) OccupiedPositions(_ context.Context) (map[spiral.Position]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[spiral.Position]struct{}, len(m.positions))
	for pos := range m.positions {
		out[pos] = struct{}{}
	}
	return out, nil
}

// GetByCode returns a record copy.
func (m *MemoryStore) GetByCode(_ context.Context, code string) (*model.Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// List returns one page ordered by creation time.
func (m *MemoryStore) List(_ context.Context, page, limit int) (*ListResult, error) {
	m.mu.RLock()
	all := make([]model.Contribution, 0, len(m.byID))
	for _, rec := range m.byID {
		all = append(all, *rec)
	}
	m.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &ListResult{
		Contributions: all[start:end],
		Page:          page,
		Limit:         limit,
		Total:         total,
		Pages:         PageCount(total, limit),
	}, nil
}

// Stats returns aggregate counts.
func (m *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &Stats{ByKind: make(map[string]int)}
	for _, rec := range m.byID {
		stats.Total++
		stats.ByKind[string(rec.Kind)]++
	}
	return stats, nil
}

// CodeExists reports whether a public code is already assigned.
func (m *MemoryStore) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byCode[code]
	return ok, nil
}
