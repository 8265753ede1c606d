// repository/borrowing/repo.go
package borrowrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mblazhko/library-service/model"
)

// ErrNoCopies is reported by ReserveCopy when the conditional decrement
// touched no row: the book has zero inventory, or does not exist at all.
// Callers disambiguate with BookExists.
var ErrNoCopies = errors.New("no copies available")

// Filter narrows List. A nil field means "no restriction".
type Filter struct {
	IsActive *bool
	UserID   *int64
}

// DueRow is one sweep candidate: an active borrowing close to its
// expected return date, joined with the book title for the message.
type DueRow struct {
	BorrowingID        int64
	UserID             int64
	BookTitle          string
	ExpectedReturnDate time.Time
}

type Repo interface {
	// Inventory ledger. Both run inside the caller's transaction so the
	// count moves together with the borrowing row.
	ReserveCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
	ReleaseCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
	BookExists(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error)
	BookTitle(ctx context.Context, tx *sql.Tx, bookID int64) (string, error)

	// Borrowing rows.
	InsertBorrowing(ctx context.Context, tx *sql.Tx, userID, bookID int64, expectedReturn time.Time) (*model.Borrowing, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, borrowingID int64) (ownerID, bookID int64, active bool, err error)
	MarkReturned(ctx context.Context, tx *sql.Tx, borrowingID int64, returnedAt time.Time) error

	// Reads.
	List(ctx context.Context, f Filter) ([]model.Borrowing, error)
	Detail(ctx context.Context, borrowingID int64) (*model.BorrowingDetail, error)
	DueSoon(ctx context.Context, deadline time.Time) ([]DueRow, error)
}

type repo struct {
	db *sql.DB
}

func New(db *sql.DB) Repo { return &repo{db: db} }

// Inventory ledger

func (r *repo) ReserveCopy(ctx context.Context, tx *sql.Tx, bookID int64) error {
	// Guard: only decrement while stock remains. Postgres row locking on
	// the UPDATE serializes concurrent reservations of the last copy.
	const q = `
			UPDATE books
			SET inventory = inventory - 1
			WHERE id = $1
			AND inventory > 0`
	res, err := tx.ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return ErrNoCopies
	}
	return nil
}

func (r *repo) ReleaseCopy(ctx context.Context, tx *sql.Tx, bookID int64) error {
	const q = `
			UPDATE books
			SET inventory = inventory + 1
			WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, bookID)
	return err
}

func (r *repo) BookExists(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error) {
	const q = `
			SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`
	var exists bool
	err := tx.QueryRowContext(ctx, q, bookID).Scan(&exists)
	return exists, err
}

func (r *repo) BookTitle(ctx context.Context, tx *sql.Tx, bookID int64) (string, error) {
	const q = `
			SELECT title FROM books WHERE id = $1`
	var title string
	err := tx.QueryRowContext(ctx, q, bookID).Scan(&title)
	return title, err
}

// Borrowing rows

func (r *repo) InsertBorrowing(ctx context.Context, tx *sql.Tx, userID, bookID int64, expectedReturn time.Time) (*model.Borrowing, error) {
	const q = `
		INSERT INTO borrowings (user_id, book_id, expected_return_date, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, borrow_date`
	b := model.Borrowing{
		UserID:             userID,
		BookID:             bookID,
		ExpectedReturnDate: expectedReturn,
		IsActive:           true,
	}
	if err := tx.QueryRowContext(ctx, q, userID, bookID, expectedReturn).Scan(&b.ID, &b.BorrowDate); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) GetForUpdate(ctx context.Context, tx *sql.Tx, borrowingID int64) (int64, int64, bool, error) {
	const q = `
		SELECT user_id, book_id, is_active
		FROM borrowings
		WHERE id = $1
		FOR UPDATE`
	var ownerID, bookID int64
	var active bool
	err := tx.QueryRowContext(ctx, q, borrowingID).Scan(&ownerID, &bookID, &active)
	return ownerID, bookID, active, err
}

func (r *repo) MarkReturned(ctx context.Context, tx *sql.Tx, borrowingID int64, returnedAt time.Time) error {
	const q = `
		UPDATE borrowings
		SET actual_return_date = $2,
			is_active = FALSE
		WHERE id = $1`
	_, err := tx.ExecContext(ctx, q, borrowingID, returnedAt)
	return err
}

// Reads

func (r *repo) List(ctx context.Context, f Filter) ([]model.Borrowing, error) {
	const q = `
			SELECT id, borrow_date, expected_return_date, actual_return_date,
				book_id, user_id, is_active
			FROM borrowings
			WHERE ($1::BOOLEAN IS NULL OR is_active = $1)
			AND ($2::BIGINT IS NULL OR user_id = $2)
			ORDER BY borrow_date DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, f.IsActive, f.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Borrowing
	for rows.Next() {
		var b model.Borrowing
		if err := rows.Scan(
			&b.ID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate,
			&b.BookID, &b.UserID, &b.IsActive,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, borrowingID int64) (*model.BorrowingDetail, error) {
	const q = `
			SELECT br.id, br.borrow_date, br.expected_return_date, br.actual_return_date,
				br.book_id, br.user_id, br.is_active,
				b.id, b.title, b.author, b.cover, b.inventory, b.daily_fee
			FROM borrowings br
			JOIN books b ON b.id = br.book_id
			WHERE br.id = $1`
	var d model.BorrowingDetail
	err := r.db.QueryRowContext(ctx, q, borrowingID).Scan(
		&d.ID, &d.BorrowDate, &d.ExpectedReturnDate, &d.ActualReturnDate,
		&d.BookID, &d.UserID, &d.IsActive,
		&d.Book.ID, &d.Book.Title, &d.Book.Author, &d.Book.Cover, &d.Book.Inventory, &d.Book.DailyFee,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repo) DueSoon(ctx context.Context, deadline time.Time) ([]DueRow, error) {
	const q = `
			SELECT br.id, br.user_id, b.title, br.expected_return_date
			FROM borrowings br
			JOIN books b ON b.id = br.book_id
			WHERE br.is_active
			AND br.expected_return_date <= $1
			ORDER BY br.expected_return_date, br.id`
	rows, err := r.db.QueryContext(ctx, q, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DueRow
	for rows.Next() {
		var d DueRow
		if err := rows.Scan(&d.BorrowingID, &d.UserID, &d.BookTitle, &d.ExpectedReturnDate); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
