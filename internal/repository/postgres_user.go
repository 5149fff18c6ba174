package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"nexus/internal/model"
	"nexus/pkg/otel"
)

type PostgresUserStore struct {
	db *pgxpool.Pool
}

func NewPostgresUserStore(db *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, name, email, password_hash, google_id, avatar, created_at, updated_at`

// Create inserts a new user.
func (r *PostgresUserStore) Create(ctx context.Context, u *model.User) error {
	query := `
        INSERT INTO users (` + userColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	err := otel.Postgres(ctx, "insert", "users", func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query,
			u.ID, u.Name, u.Email, u.PasswordHash, u.GoogleID, u.Avatar, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("email %s: %w", u.Email, model.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PostgresUserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns user by email.
func (r *PostgresUserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email)
}

func (r *PostgresUserStore) getOne(ctx context.Context, query, key string) (*model.User, error) {
	var u model.User
	err := otel.Postgres(ctx, "select", "users", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, key).Scan(
			&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.GoogleID, &u.Avatar, &u.CreatedAt, &u.UpdatedAt,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", key, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *PostgresUserStore) Update(ctx context.Context, u *model.User) error {
	query := `
        UPDATE users
        SET name = $2, password_hash = $3, google_id = $4, avatar = $5, updated_at = $6
        WHERE id = $1
    `
	var affected int64
	err := otel.Postgres(ctx, "update", "users", func(ctx context.Context) error {
		ct, err := r.db.Exec(ctx, query, u.ID, u.Name, u.PasswordHash, u.GoogleID, u.Avatar, u.UpdatedAt)
		affected = ct.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", u.ID, model.ErrNotFound)
	}
	return nil
}
