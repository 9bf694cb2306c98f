package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProviderStore = (*ProviderRepo)(nil)

// ProviderRepo is the read-only SQLite implementation of the
// ProviderStore port. Provider rows are seeded by migration.
type ProviderRepo struct {
	db *DB
}

// NewProviderRepo creates a new ProviderRepo.
func NewProviderRepo(db *DB) *ProviderRepo {
	return &ProviderRepo{db: db}
}

// GetByID returns the provider, or nil when it does not exist.
func (r *ProviderRepo) GetByID(ctx context.Context, id int64) (*model.Provider, error) {
	const query = `SELECT id, name, slug, capability, created_at FROM providers WHERE id = ?`
	p, err := scanProvider(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider %d: %w", id, err)
	}
	return p, nil
}

// GetBySlug returns the provider with the given slug, or nil.
func (r *ProviderRepo) GetBySlug(ctx context.Context, slug string) (*model.Provider, error) {
	const query = `SELECT id, name, slug, capability, created_at FROM providers WHERE slug = ?`
	p, err := scanProvider(r.db.Reader.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider %q: %w", slug, err)
	}
	return p, nil
}

// ListAll returns all providers ordered by slug.
func (r *ProviderRepo) ListAll(ctx context.Context) ([]model.Provider, error) {
	const query = `SELECT id, name, slug, capability, created_at FROM providers ORDER BY slug`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}

	return providers, nil
}

func scanProvider(row rowScanner) (*model.Provider, error) {
	var p model.Provider
	var capability, createdAt string

	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &capability, &createdAt); err != nil {
		return nil, err
	}

	p.Capability = model.Capability(capability)

	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &p, nil
}
