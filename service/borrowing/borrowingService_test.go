package borrowing_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mblazhko/library-service/model"
	borrowrepo "github.com/mblazhko/library-service/repository/borrowing"
	"github.com/mblazhko/library-service/service/borrowing"
)

// ----- fake database/sql driver -----
//
// The service owns the transaction boundary (BeginTx/Commit/Rollback)
// while the repo mock owns the data, so the tests only need a driver
// whose transactions are no-ops.

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return &fakeConn{}, nil }

type fakeConn struct{}

func (*fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (*fakeConn) Close() error                        { return nil }
func (*fakeConn) Begin() (driver.Tx, error)           { return fakeTx{}, nil }

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

func init() { sql.Register("borrowingtest", fakeDriver{}) }

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("borrowingtest", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// ----- in-memory repo -----

type memBook struct {
	title     string
	inventory int64
}

type memRepo struct {
	mu         sync.Mutex
	books      map[int64]*memBook
	borrowings map[int64]*model.Borrowing
	nextID     int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		books:      make(map[int64]*memBook),
		borrowings: make(map[int64]*model.Borrowing),
	}
}

func (m *memRepo) addBook(id int64, title string, inventory int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[id] = &memBook{title: title, inventory: inventory}
}

func (m *memRepo) inventory(t *testing.T, bookID int64) int64 {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	require.True(t, ok, "book %d missing", bookID)
	return b.inventory
}

func (m *memRepo) ReserveCopy(_ context.Context, _ *sql.Tx, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok || b.inventory == 0 {
		return borrowrepo.ErrNoCopies
	}
	b.inventory--
	return nil
}

func (m *memRepo) ReleaseCopy(_ context.Context, _ *sql.Tx, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[bookID]; ok {
		b.inventory++
	}
	return nil
}

func (m *memRepo) BookExists(_ context.Context, _ *sql.Tx, bookID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.books[bookID]
	return ok, nil
}

func (m *memRepo) BookTitle(_ context.Context, _ *sql.Tx, bookID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return b.title, nil
}

func (m *memRepo) InsertBorrowing(_ context.Context, _ *sql.Tx, userID, bookID int64, expectedReturn time.Time) (*model.Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b := &model.Borrowing{
		ID:                 m.nextID,
		BorrowDate:         time.Now().UTC(),
		ExpectedReturnDate: expectedReturn,
		BookID:             bookID,
		UserID:             userID,
		IsActive:           true,
	}
	m.borrowings[b.ID] = b
	cp := *b
	return &cp, nil
}

func (m *memRepo) GetForUpdate(_ context.Context, _ *sql.Tx, borrowingID int64) (int64, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrowings[borrowingID]
	if !ok {
		return 0, 0, false, sql.ErrNoRows
	}
	return b.UserID, b.BookID, b.IsActive, nil
}

func (m *memRepo) MarkReturned(_ context.Context, _ *sql.Tx, borrowingID int64, returnedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrowings[borrowingID]
	if !ok {
		return sql.ErrNoRows
	}
	at := returnedAt
	b.ActualReturnDate = &at
	b.IsActive = false
	return nil
}

func (m *memRepo) List(_ context.Context, f borrowrepo.Filter) ([]model.Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Borrowing
	for _, b := range m.borrowings {
		if f.IsActive != nil && b.IsActive != *f.IsActive {
			continue
		}
		if f.UserID != nil && b.UserID != *f.UserID {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (m *memRepo) Detail(_ context.Context, borrowingID int64) (*model.BorrowingDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrowings[borrowingID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := model.BorrowingDetail{Borrowing: *b}
	if bk, ok := m.books[b.BookID]; ok {
		d.Book = model.Book{ID: b.BookID, Title: bk.title, Inventory: bk.inventory}
	}
	return &d, nil
}

func (m *memRepo) DueSoon(_ context.Context, deadline time.Time) ([]borrowrepo.DueRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []borrowrepo.DueRow
	for _, b := range m.borrowings {
		if !b.IsActive || b.ExpectedReturnDate.After(deadline) {
			continue
		}
		row := borrowrepo.DueRow{
			BorrowingID:        b.ID,
			UserID:             b.UserID,
			ExpectedReturnDate: b.ExpectedReturnDate,
		}
		if bk, ok := m.books[b.BookID]; ok {
			row.BookTitle = bk.title
		}
		out = append(out, row)
	}
	return out, nil
}

var _ borrowing.Repo = (*memRepo)(nil)

// ----- notifier mock -----

type chanNotifier struct{ ch chan string }

func newChanNotifier() *chanNotifier { return &chanNotifier{ch: make(chan string, 16)} }

func (n *chanNotifier) Send(_ context.Context, text string) error {
	n.ch <- text
	return nil
}

func (n *chanNotifier) wait(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-n.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return ""
	}
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, r borrowing.Repo, n *chanNotifier) borrowing.Service {
	t.Helper()
	return borrowing.New(newDB(t), r, n, discardLog())
}

// ----- tests -----

func TestCreate_PastDateRejected(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 3)
	svc := newService(t, m, newChanNotifier())

	_, err := svc.Create(context.Background(), 7, 1, time.Now().Add(-time.Hour))
	require.Error(t, err)
	require.Equal(t, borrowing.ErrPastDue, borrowing.Code(err))
	require.EqualValues(t, 3, m.inventory(t, 1))
	require.Empty(t, m.borrowings)
}

func TestCreate_NoCopies(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 0)
	svc := newService(t, m, newChanNotifier())

	_, err := svc.Create(context.Background(), 7, 1, time.Now().Add(7*24*time.Hour))
	require.Error(t, err)
	require.Equal(t, borrowing.ErrNoCopies, borrowing.Code(err))
	require.EqualValues(t, 0, m.inventory(t, 1))
	require.Empty(t, m.borrowings, "failed create must not persist a borrowing")
}

func TestCreate_BookNotFound(t *testing.T) {
	m := newMemRepo()
	svc := newService(t, m, newChanNotifier())

	_, err := svc.Create(context.Background(), 7, 99, time.Now().Add(24*time.Hour))
	require.Error(t, err)
	require.Equal(t, borrowing.ErrBookNotFound, borrowing.Code(err))
}

func TestCreate_Success(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 1)
	n := newChanNotifier()
	svc := newService(t, m, n)

	expected := time.Now().Add(7 * 24 * time.Hour).UTC()
	b, err := svc.Create(context.Background(), 7, 1, expected)
	require.NoError(t, err)
	require.True(t, b.IsActive)
	require.Nil(t, b.ActualReturnDate)
	require.Equal(t, expected, b.ExpectedReturnDate)
	require.EqualValues(t, 0, m.inventory(t, 1))

	msg := n.wait(t)
	require.Contains(t, msg, "Kobzar")
	require.Contains(t, msg, "New borrowing created")
}

func TestCreateThenReturn_RoundTrip(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 1)
	n := newChanNotifier()
	svc := newService(t, m, n)

	b, err := svc.Create(context.Background(), 7, 1, time.Now().Add(7*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 0, m.inventory(t, 1))
	n.wait(t)

	err = svc.Return(context.Background(), borrowing.Viewer{UserID: 7}, b.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.inventory(t, 1), "return must restore inventory exactly")

	stored := m.borrowings[b.ID]
	require.False(t, stored.IsActive)
	require.NotNil(t, stored.ActualReturnDate)
	require.False(t, stored.ActualReturnDate.Before(stored.BorrowDate))
}

func TestReturn_TwiceFails(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 1)
	n := newChanNotifier()
	svc := newService(t, m, n)

	b, err := svc.Create(context.Background(), 7, 1, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	n.wait(t)

	require.NoError(t, svc.Return(context.Background(), borrowing.Viewer{UserID: 7}, b.ID))

	err = svc.Return(context.Background(), borrowing.Viewer{UserID: 7}, b.ID)
	require.Error(t, err)
	require.Equal(t, borrowing.ErrAlreadyReturned, borrowing.Code(err))
	require.EqualValues(t, 1, m.inventory(t, 1), "inventory must be incremented exactly once")
}

func TestReturn_NotOwner(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 1)
	n := newChanNotifier()
	svc := newService(t, m, n)

	b, err := svc.Create(context.Background(), 7, 1, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	n.wait(t)

	err = svc.Return(context.Background(), borrowing.Viewer{UserID: 8}, b.ID)
	require.Error(t, err)
	require.Equal(t, borrowing.ErrNotOwner, borrowing.Code(err))

	// admin may return on behalf of the owner
	require.NoError(t, svc.Return(context.Background(), borrowing.Viewer{UserID: 8, Admin: true}, b.ID))
}

func TestReturn_NotFound(t *testing.T) {
	m := newMemRepo()
	svc := newService(t, m, newChanNotifier())

	err := svc.Return(context.Background(), borrowing.Viewer{UserID: 7}, 123)
	require.Error(t, err)
	require.Equal(t, borrowing.ErrNotFound, borrowing.Code(err))
}

func TestConcurrentCreate_LastCopy(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 1)
	n := newChanNotifier()
	svc := newService(t, m, n)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), uid, 1, time.Now().Add(24*time.Hour))
			errs <- err
		}(int64(i + 1))
	}
	wg.Wait()
	close(errs)

	var ok, noCopies int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case borrowing.Code(err) == borrowing.ErrNoCopies:
			noCopies++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok, "exactly one caller may win the last copy")
	require.Equal(t, callers-1, noCopies)
	require.EqualValues(t, 0, m.inventory(t, 1))
	require.Len(t, m.borrowings, 1)
}

func TestList_NonAdminSeesOwnOnly(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 10)
	n := newChanNotifier()
	svc := newService(t, m, n)

	ctx := context.Background()
	due := time.Now().Add(24 * time.Hour)
	_, err := svc.Create(ctx, 1, 1, due)
	require.NoError(t, err)
	b2, err := svc.Create(ctx, 2, 1, due)
	require.NoError(t, err)
	require.NoError(t, svc.Return(ctx, borrowing.Viewer{UserID: 2}, b2.ID))

	// own rows only, even with a foreign user_id filter
	other := int64(2)
	rows, err := svc.List(ctx, borrowing.Viewer{UserID: 1}, borrowing.Filter{UserID: &other})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 1, rows[0].UserID)

	// admin sees everything and may filter by user
	rows, err = svc.List(ctx, borrowing.Viewer{UserID: 99, Admin: true}, borrowing.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = svc.List(ctx, borrowing.Viewer{UserID: 99, Admin: true}, borrowing.Filter{UserID: &other})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 2, rows[0].UserID)

	// is_active filter
	active := true
	rows, err = svc.List(ctx, borrowing.Viewer{UserID: 99, Admin: true}, borrowing.Filter{IsActive: &active})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].IsActive)
}

func TestGet_OwnerAndAdmin(t *testing.T) {
	m := newMemRepo()
	m.addBook(1, "Kobzar", 1)
	n := newChanNotifier()
	svc := newService(t, m, n)

	ctx := context.Background()
	b, err := svc.Create(ctx, 7, 1, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	n.wait(t)

	d, err := svc.Get(ctx, borrowing.Viewer{UserID: 7}, b.ID)
	require.NoError(t, err)
	require.Equal(t, "Kobzar", d.Book.Title)

	_, err = svc.Get(ctx, borrowing.Viewer{UserID: 8}, b.ID)
	require.Equal(t, borrowing.ErrNotOwner, borrowing.Code(err))

	_, err = svc.Get(ctx, borrowing.Viewer{UserID: 8, Admin: true}, b.ID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, borrowing.Viewer{UserID: 7}, 999)
	require.Equal(t, borrowing.ErrNotFound, borrowing.Code(err))
}
