package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AppachchiCodes/The-Human-Monument/internal/model"
	"github.com/AppachchiCodes/The-Human-Monument/internal/spiral"
	"github.com/AppachchiCodes/The-Human-Monument/internal/storage"
)

const uniqueViolation = "23505"

// ContributionRepository wraps all SQL used by the API and worker.
type ContributionRepository struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*ContributionRepository)(nil)

// New constructs a repository.
func New(pool *pgxpool.Pool) *ContributionRepository {
	return &ContributionRepository{pool: pool}
}

// Insert persists a new contribution. Duplicate positions and public codes
// are reported as storage.ErrPositionTaken and storage.ErrCodeTaken so the
// admission layer can retry; Postgres decides the race winner atomically via
// the table's unique constraints.
func (r *ContributionRepository) Insert(ctx context.Context, c *model.Contribution) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO contributions (id, public_code, x, y, kind, content, object_key, status, source_addr, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, c.ID, c.PublicCode, c.X, c.Y, c.Kind, c.Content, c.ObjectKey, c.Status, c.SourceAddr, c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "contributions_position_key":
				return storage.ErrPositionTaken
			case "contributions_public_code_key":
				return storage.ErrCodeTaken
			}
		}
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

// OccupiedPositions returns the lattice positions of all approved records.
func (r *ContributionRepository) OccupiedPositions(ctx context.Context) (map[spiral.Position]struct{}, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT x, y FROM contributions WHERE status=$1
	`, model.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("select positions: %w", err)
	}
	defer rows.Close()
	occupied := make(map[spiral.Position]struct{})
	for rows.Next() {
		var pos spiral.Position
		if err := rows.Scan(&pos.X, &pos.Y); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		occupied[pos] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return occupied, nil
}

// GetByCode returns the contribution with the given public code.
func (r *ContributionRepository) GetByCode(ctx context.Context, code string) (*model.Contribution, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, public_code, x, y, kind, content, object_key, status, created_at
		FROM contributions WHERE public_code=$1 AND status=$2
	`, code, model.StatusApproved)
	var c model.Contribution
	if err := row.Scan(&c.ID, &c.PublicCode, &c.X, &c.Y, &c.Kind, &c.Content, &c.ObjectKey, &c.Status, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("select contribution: %w", err)
	}
	return &c, nil
}

// List returns one page of approved contributions ordered by creation time,
// plus the total count for pagination metadata.
func (r *ContributionRepository) List(ctx context.Context, page, limit int) (*storage.ListResult, error) {
	offset := (page - 1) * limit
	rows, err := r.pool.Query(ctx, `
		SELECT id, public_code, x, y, kind, content, object_key, status, created_at
		FROM contributions WHERE status=$1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, model.StatusApproved, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select contributions: %w", err)
	}
	defer rows.Close()
	out := make([]model.Contribution, 0, limit)
	for rows.Next() {
		var c model.Contribution
		if err := rows.Scan(&c.ID, &c.PublicCode, &c.X, &c.Y, &c.Kind, &c.Content, &c.ObjectKey, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM contributions WHERE status=$1
	`, model.StatusApproved).Scan(&total); err != nil {
		return nil, fmt.Errorf("count contributions: %w", err)
	}
	return &storage.ListResult{
		Contributions: out,
		Page:          page,
		Limit:         limit,
		Total:         total,
		Pages:         storage.PageCount(total, limit),
	}, nil
}

// Stats returns the total and per-kind contribution counts.
func (r *ContributionRepository) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{ByKind: make(map[string]int)}
	rows, err := r.pool.Query(ctx, `
		SELECT kind, COUNT(*) FROM contributions WHERE status=$1 GROUP BY kind
	`, model.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByKind[kind] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// CodeExists reports whether a public code is already assigned.
func (r *ContributionRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM contributions WHERE public_code=$1)
	`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check public code: %w", err)
	}
	return exists, nil
}
