package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AppachchiCodes/The-Human-Monument/internal/model"
	"github.com/AppachchiCodes/The-Human-Monument/internal/spiral"
)

func record(i int, pos spiral.Position) *model.Contribution {
	return &model.Contribution{
		ID:         fmt.Sprintf("id-%d", i),
		PublicCode: fmt.Sprintf("HM-%06d", i),
		X:          pos.X,
		Y:          pos.Y,
		Kind:       model.KindText,
		Content:    fmt.Sprintf("tile %d", i),
		Status:     model.StatusApproved,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestInsertRejectsDuplicatePosition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, record(1, spiral.PositionAt(0))))

	dup := record(2, spiral.PositionAt(0))
	require.ErrorIs(t, store.Insert(ctx, dup), ErrPositionTaken)

	occ, err := store.OccupiedPositions(ctx)
	require.NoError(t, err)
	require.Len(t, occ, 1, "losing insert must leave no trace")
}

func TestInsertRejectsDuplicateCode(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, record(1, spiral.PositionAt(0))))

	dup := record(1, spiral.PositionAt(1))
	dup.ID = "other-id"
	require.ErrorIs(t, store.Insert(ctx, dup), ErrCodeTaken)
}

func TestGetByCode(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := record(7, spiral.PositionAt(0))
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.GetByCode(ctx, rec.PublicCode)
	require.NoError(t, err)
	require.Equal(t, rec.X, got.X)
	require.Equal(t, rec.Y, got.Y)

	_, err = store.GetByCode(ctx, "HM-MISSIN")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListOrderAndPages(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, store.Insert(ctx, record(i, spiral.PositionAt(i))))
	}

	page1, err := store.List(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, page1.Contributions, 3)
	require.Equal(t, 7, page1.Total)
	require.Equal(t, 3, page1.Pages)
	require.Equal(t, "tile 0", page1.Contributions[0].Content)

	page3, err := store.List(ctx, 3, 3)
	require.NoError(t, err)
	require.Len(t, page3.Contributions, 1)
	require.Equal(t, "tile 6", page3.Contributions[0].Content)

	empty, err := store.List(ctx, 9, 3)
	require.NoError(t, err)
	require.Empty(t, empty.Contributions)
}

func TestStatsCounts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(ctx, record(i, spiral.PositionAt(i))))
	}
	img := record(3, spiral.PositionAt(3))
	img.Kind = model.KindImage
	require.NoError(t, store.Insert(ctx, img))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Total)
	require.Equal(t, 3, stats.ByKind[string(model.KindText)])
	require.Equal(t, 1, stats.ByKind[string(model.KindImage)])
}

func TestCodeExists(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, record(1, spiral.PositionAt(0))))

	exists, err := store.CodeExists(ctx, record(1, spiral.Position{}).PublicCode)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.CodeExists(ctx, "HM-ABSENT")
	require.NoError(t, err)
	require.False(t, exists)
}
