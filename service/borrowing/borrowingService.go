package borrowing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	borrowrepo "github.com/mblazhko/library-service/repository/borrowing"
	telegramrepo "github.com/mblazhko/library-service/repository/telegram"

	"github.com/mblazhko/library-service/model"
)

// errors used by controllers

type ErrCode string

const (
	ErrNoCopies        ErrCode = "NO_COPIES"
	ErrBookNotFound    ErrCode = "BOOK_NOT_FOUND"
	ErrNotOwner        ErrCode = "NOT_OWNER"
	ErrAlreadyReturned ErrCode = "ALREADY_RETURNED"
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrPastDue         ErrCode = "EXPECTED_RETURN_IN_PAST"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// Viewer identifies the caller of a read or return operation. Admin is
// an explicit capability: it widens List beyond the viewer's own rows
// and allows returning someone else's borrowing.
type Viewer struct {
	UserID int64
	Admin  bool
}

// Filter = repository shape
type Filter = borrowrepo.Filter

type Repo interface {
	ReserveCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
	ReleaseCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
	BookExists(ctx context.Context, tx *sql.Tx, bookID int64) (bool, error)
	BookTitle(ctx context.Context, tx *sql.Tx, bookID int64) (string, error)

	InsertBorrowing(ctx context.Context, tx *sql.Tx, userID, bookID int64, expectedReturn time.Time) (*model.Borrowing, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, borrowingID int64) (ownerID, bookID int64, active bool, err error)
	MarkReturned(ctx context.Context, tx *sql.Tx, borrowingID int64, returnedAt time.Time) error

	List(ctx context.Context, f Filter) ([]model.Borrowing, error)
	Detail(ctx context.Context, borrowingID int64) (*model.BorrowingDetail, error)
	DueSoon(ctx context.Context, deadline time.Time) ([]borrowrepo.DueRow, error)
}

type Service interface {
	// Create: reserve one copy of the book and open an active borrowing.
	Create(ctx context.Context, userID, bookID int64, expectedReturn time.Time) (*model.Borrowing, error)

	// Return: close an active borrowing and put the copy back in stock.
	Return(ctx context.Context, viewer Viewer, borrowingID int64) error

	// List: borrowings visible to the viewer, narrowed by the filter.
	List(ctx context.Context, viewer Viewer, f Filter) ([]model.Borrowing, error)

	// Get: one borrowing with its book embedded.
	Get(ctx context.Context, viewer Viewer, borrowingID int64) (*model.BorrowingDetail, error)
}

// ----- Service implementation -----

type service struct {
	db  *sql.DB
	r   Repo
	n   telegramrepo.Notifier
	log *slog.Logger
}

func New(db *sql.DB, r Repo, n telegramrepo.Notifier, log *slog.Logger) Service {
	return &service{db: db, r: r, n: n, log: log}
}

// Create reserves a copy and inserts the borrowing in one transaction,
// then dispatches the "created" notification outside of it.
func (s *service) Create(ctx context.Context, userID, bookID int64, expectedReturn time.Time) (b *model.Borrowing, err error) {
	if expectedReturn.Before(time.Now()) {
		return nil, makeErr(ErrPastDue)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.r.ReserveCopy(ctx, tx, bookID); err != nil {
		if errors.Is(err, borrowrepo.ErrNoCopies) {
			exists, exErr := s.r.BookExists(ctx, tx, bookID)
			if exErr != nil {
				return nil, exErr
			}
			if !exists {
				return nil, makeErr(ErrBookNotFound)
			}
			return nil, makeErr(ErrNoCopies)
		}
		return nil, err
	}

	title, err := s.r.BookTitle(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}

	b, err = s.r.InsertBorrowing(ctx, tx, userID, bookID, expectedReturn)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	s.notifyCreated(b, title)
	return b, nil
}

// notifyCreated is fire-and-forget: the borrowing is already committed,
// a delivery failure only gets logged.
func (s *service) notifyCreated(b *model.Borrowing, title string) {
	msg := fmt.Sprintf(
		"New borrowing created:\nBook: %s\nExpected Return Date: %s",
		title, b.ExpectedReturnDate.Format(time.RFC3339),
	)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.n.Send(ctx, msg); err != nil {
			s.log.Error("borrowing notification failed", "borrowing_id", b.ID, "err", err)
		}
	}()
}

// Return marks the borrowing inactive and releases the copy. Calling it
// again on the same borrowing fails with ALREADY_RETURNED and leaves the
// inventory untouched.
func (s *service) Return(ctx context.Context, viewer Viewer, borrowingID int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ownerID, bookID, active, err := s.r.GetForUpdate(ctx, tx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		return err
	}
	if ownerID != viewer.UserID && !viewer.Admin {
		return makeErr(ErrNotOwner)
	}
	if !active {
		return makeErr(ErrAlreadyReturned)
	}

	if err = s.r.MarkReturned(ctx, tx, borrowingID, time.Now().UTC()); err != nil {
		return err
	}
	if err = s.r.ReleaseCopy(ctx, tx, bookID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *service) List(ctx context.Context, viewer Viewer, f Filter) ([]model.Borrowing, error) {
	if !viewer.Admin {
		// non-admin callers only ever see their own rows
		f.UserID = &viewer.UserID
	}
	return s.r.List(ctx, f)
}

func (s *service) Get(ctx context.Context, viewer Viewer, borrowingID int64) (*model.BorrowingDetail, error) {
	d, err := s.r.Detail(ctx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if d.UserID != viewer.UserID && !viewer.Admin {
		return nil, makeErr(ErrNotOwner)
	}
	return d, nil
}
