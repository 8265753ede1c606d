package bookrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mblazhko/library-service/model"
)

type Repo interface {
	CreateBook(ctx context.Context, title, author string, cover model.Cover, inventory int64, dailyFee float64) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int64) (int64, error)
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) CreateBook(ctx context.Context, title, author string, cover model.Cover, inventory int64, dailyFee float64) (int64, error) {
	const q = `
INSERT INTO books (title, author, cover, inventory, daily_fee)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, q, title, author, cover, inventory, dailyFee).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// AddInventory returns the inventory count after the adjustment.
func (r *repo) AddInventory(ctx context.Context, bookID int64, n int64) (int64, error) {
	if n <= 0 {
		return 0, errors.New("n must be > 0")
	}
	const q = `
UPDATE books
SET inventory = inventory + $2
WHERE id = $1
RETURNING inventory`
	var inv int64
	if err := r.db.QueryRowContext(ctx, q, bookID, n).Scan(&inv); err != nil {
		return 0, err
	}
	return inv, nil
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	const q = `
SELECT id, title, author, cover, inventory, daily_fee
FROM books
ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
SELECT id, title, author, cover, inventory, daily_fee
FROM books
WHERE id = $1`
	var b model.Book
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
		return nil, err
	}
	return &b, nil
}
