// Package storage defines the contribution store contract shared by the
// Postgres repository and the in-memory implementation.
package storage

import (
	"context"
	"errors"

	"github.com/AppachchiCodes/The-Human-Monument/internal/model"
	"github.com/AppachchiCodes/The-Human-Monument/internal/spiral"
)

var (
	// ErrNotFound is returned when no contribution matches a lookup.
	ErrNotFound = errors.New("contribution not found")
	// ErrPositionTaken is returned by Insert when another record already
	// holds the requested lattice position. Admission treats it as a lost
	// allocation race and retries with fresh occupancy.
	ErrPositionTaken = errors.New("position already occupied")
	// ErrCodeTaken is returned by Insert when the public code collides.
	ErrCodeTaken = errors.New("public code already in use")
)

// ListResult is one page of contributions plus pagination metadata.
type ListResult struct {
	Contributions []model.Contribution `json:"contributions"`
	Page          int                  `json:"page"`
	Limit         int                  `json:"limit"`
	Total         int                  `json:"total"`
	Pages         int                  `json:"pages"`
}

// Stats summarizes the canvas.
type Stats struct {
	Total  int            `json:"total"`
	ByKind map[string]int `json:"byKind"`
}

// Store persists contribution records. Insert must enforce position and
// public-code uniqueness atomically; every read reflects only committed,
// approved records.
type Store interface {
	Insert(ctx context.Context, c *model.Contribution) error
	OccupiedPositions(ctx context.Context) (map[spiral.Position]struct{}, error)
	GetByCode(ctx context.Context, code string) (*model.Contribution, error)
	List(ctx context.Context, page, limit int) (*ListResult, error)
	Stats(ctx context.Context) (*Stats, error)
	CodeExists(ctx context.Context, code string) (bool, error)
}

// PageCount returns the number of pages needed for total records at the
// given limit.
func PageCount(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
