package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserStore backs the admin API's magic-link login (store.UserStore).
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) FindOrCreate(ctx context.Context, email string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email)
		VALUES ($1)
		ON CONFLICT (email) DO UPDATE SET updated_at = NOW()
		RETURNING id, email, created_at, updated_at`, email)
	return scanUser(row)
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, email, created_at, updated_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *UserStore) CreateMagicToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO magic_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`,
		userID, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("create magic token: %w", err)
	}
	return nil
}

// ClaimMagicToken atomically marks the token used and returns it.
// Returns domain.ErrTokenInvalid if it does not exist, is already used,
// or is expired.
func (s *UserStore) ClaimMagicToken(ctx context.Context, tokenHash string) (*domain.MagicToken, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE magic_tokens
		SET used_at = NOW()
		WHERE token_hash = $1
		  AND used_at IS NULL
		  AND expires_at > NOW()
		RETURNING id, user_id, token_hash, expires_at, used_at, created_at`, tokenHash)
	return scanMagicToken(row)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func scanMagicToken(row pgx.Row) (*domain.MagicToken, error) {
	var t domain.MagicToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("scan magic token: %w", err)
	}
	return &t, nil
}
