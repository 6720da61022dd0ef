package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// User is a registered account. HashedPassword never leaves the service.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CreateUser inserts an account; the unique constraint on username surfaces
// duplicates as an error.
func (db *Database) CreateUser(ctx context.Context, username, email, hashedPassword string) (User, error) {
	var u User
	err := db.pool.QueryRow(ctx, `
INSERT INTO users (username, email, hashed_password)
VALUES ($1, $2, $3)
RETURNING id, username, email, hashed_password, is_active, created_at`,
		username, email, hashedPassword).
		Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.IsActive, &u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// UserByUsername looks up an account; ErrUserNotFound when absent.
func (db *Database) UserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := db.pool.QueryRow(ctx, `
SELECT id, username, email, hashed_password, is_active, created_at
FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("username %s: %w", username, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user by username: %w", err)
	}
	return u, nil
}
