package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/storefront/internal/notify"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("auth: username already taken")
)

// User is the public view of an account.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists user accounts.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (User, error)
	UserByUsername(ctx context.Context, username string) (User, string, error)
	UserByID(ctx context.Context, id int64) (User, error)
}

// Querier is the subset of pgxpool.Pool used by PGStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	Q Querier
}

const userColumns = `id, username, COALESCE(email, ''), created_at`

func (s *PGStore) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	var emailArg any
	if email = strings.TrimSpace(email); email != "" {
		emailArg = email
	}
	row := s.Q.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns, username, emailArg, passwordHash)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *PGStore) UserByUsername(ctx context.Context, username string) (User, string, error) {
	row := s.Q.QueryRow(ctx, `SELECT `+userColumns+`, password_hash FROM users WHERE username = $1`, username)
	var (
		u    User
		hash string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, "", ErrUserNotFound
		}
		return User{}, "", fmt.Errorf("select user: %w", err)
	}
	return u, hash, nil
}

func (s *PGStore) UserByID(ctx context.Context, id int64) (User, error) {
	row := s.Q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// Recipient resolves receipt recipients for the notify worker.
func (s *PGStore) Recipient(ctx context.Context, userID int64) (notify.Recipient, error) {
	u, err := s.UserByID(ctx, userID)
	if err != nil {
		return notify.Recipient{}, err
	}
	return notify.Recipient{Username: u.Username, Email: u.Email}, nil
}
