package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/barnqueue/barn/internal/domain"
	"github.com/google/uuid"
)

// UserStore backs the admin API's magic-link login (store.UserStore).
// SQLite has no gen_random_uuid(), so IDs are minted in Go.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) FindOrCreate(ctx context.Context, email string) (*domain.User, error) {
	now := formatTime(time.Now())
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET updated_at = excluded.updated_at`,
		uuid.NewString(), email, now, now,
	); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT id, email, created_at, updated_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, email, created_at, updated_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *UserStore) CreateMagicToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO magic_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, tokenHash, formatTime(expiresAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("create magic token: %w", err)
	}
	return nil
}

func (s *UserStore) ClaimMagicToken(ctx context.Context, tokenHash string) (*domain.MagicToken, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE magic_tokens
		SET used_at = ?
		WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?`,
		formatTime(now), tokenHash, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("claim magic token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrTokenInvalid
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, used_at, created_at FROM magic_tokens WHERE token_hash = ?`,
		tokenHash,
	)
	return scanMagicToken(row)
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &u.Email, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}

func scanMagicToken(row rowScanner) (*domain.MagicToken, error) {
	var t domain.MagicToken
	var expiresAt, createdAt string
	var usedAt *string
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &usedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("scan magic token: %w", err)
	}
	var err error
	if t.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UsedAt, err = parseTimePtr(usedAt); err != nil {
		return nil, fmt.Errorf("parse used_at: %w", err)
	}
	return &t, nil
}
