package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRecord is the persisted user row.
type UserRecord struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// Store is the persistence boundary for users.
type Store interface {
	CreateUser(ctx context.Context, u *UserRecord) error
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
}

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store on Postgres.
type PGStore struct {
	DB DB
}

// CreateUser inserts the user. Duplicate emails surface as SQLSTATE 23505
// from the unique index, which the service maps to a client error.
func (st *PGStore) CreateUser(ctx context.Context, u *UserRecord) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	row := st.DB.QueryRow(ctx,
		`INSERT INTO users (id, name, email, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		u.ID, u.Name, u.Email, u.PasswordHash)
	return row.Scan(&u.CreatedAt)
}

// GetUserByEmail fetches one user by normalised email.
func (st *PGStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	var u UserRecord
	row := st.DB.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`,
		email)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return UserRecord{}, err
	}
	return u, nil
}
