package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tracechain/tracechain/internal/rbac"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectUser = `SELECT id, email, password_hash, role, COALESCE(wallet_address, ''), COALESCE(mfa_secret, ''), is_active, created_at, updated_at FROM users`

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectUser+` WHERE lower(email) = $1`, strings.ToLower(strings.TrimSpace(email))))
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.scanOne(r.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
}

func (r *PGRepository) scanOne(row pgx.Row) (*User, error) {
	var (
		user User
		role string
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &role, &user.WalletAddress, &user.MFASecret, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.Role = rbac.Role(strings.ToLower(role))
	return &user, nil
}

var _ Repository = (*PGRepository)(nil)
