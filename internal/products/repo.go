package products

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines product persistence.
type Repository interface {
	Get(ctx context.Context, id string) (Product, error)
	OwnerOf(ctx context.Context, id string) (string, error)
	Update(ctx context.Context, id string, patch Patch) (Product, error)
	Delete(ctx context.Context, id string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const productColumns = `id, sku, name, COALESCE(description, ''), COALESCE(batch_number, ''), status, owner_id, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.BatchNumber, &p.Status, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// Get loads a product by id.
func (r *PGRepository) Get(ctx context.Context, id string) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id))
}

// OwnerOf returns the owning user id of a product.
func (r *PGRepository) OwnerOf(ctx context.Context, id string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT owner_id FROM products WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return owner, err
}

// Update applies patch and returns the updated product.
func (r *PGRepository) Update(ctx context.Context, id string, patch Patch) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `UPDATE products SET
	name = COALESCE($2, name),
	description = COALESCE($3, description),
	batch_number = COALESCE($4, batch_number),
	status = COALESCE($5, status),
	updated_at = NOW()
WHERE id = $1 AND deleted_at IS NULL
RETURNING `+productColumns, id, patch.Name, patch.Description, patch.BatchNumber, patch.Status))
}

// Delete soft-deletes a product.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
