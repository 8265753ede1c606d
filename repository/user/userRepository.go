package userrepo

import (
	"context"
	"database/sql"

	"github.com/mblazhko/library-service/model"
)

type Repo interface {
	Create(ctx context.Context, u *model.User) error
	ByEmail(ctx context.Context, email string) (*model.User, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (first_name, last_name, email, password_hash, role)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, q,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
}

func (r *repo) ByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `
SELECT id, first_name, last_name, email, password_hash, role, created_at
FROM users
WHERE email = $1`
	var u model.User
	err := r.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
