// service/book/book_service_test.go
package booksvc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mblazhko/library-service/model"
	booksvc "github.com/mblazhko/library-service/service/book"
)

type repoMock struct {
	createFn func(ctx context.Context, title, author string, cover model.Cover, inventory int64, dailyFee float64) (int64, error)
	addFn    func(ctx context.Context, bookID int64, n int64) (int64, error)
	listFn   func(ctx context.Context) ([]model.Book, error)
	detailFn func(ctx context.Context, id int64) (*model.Book, error)
}

func (m *repoMock) CreateBook(ctx context.Context, title, author string, cover model.Cover, inventory int64, dailyFee float64) (int64, error) {
	return m.createFn(ctx, title, author, cover, inventory, dailyFee)
}
func (m *repoMock) AddInventory(ctx context.Context, bookID int64, n int64) (int64, error) {
	return m.addFn(ctx, bookID, n)
}
func (m *repoMock) List(ctx context.Context) ([]model.Book, error) { return m.listFn(ctx) }
func (m *repoMock) Detail(ctx context.Context, id int64) (*model.Book, error) {
	return m.detailFn(ctx, id)
}

func TestCreate_Validation(t *testing.T) {
	s := booksvc.New(&repoMock{})
	ctx := context.Background()

	if _, err := s.Create(ctx, "", "Shevchenko", model.CoverHard, 1, 5.50); err == nil {
		t.Fatal("expected error for empty title")
	}
	if _, err := s.Create(ctx, "Kobzar", "", model.CoverHard, 1, 5.50); err == nil {
		t.Fatal("expected error for empty author")
	}
	if _, err := s.Create(ctx, "Kobzar", "Shevchenko", model.Cover("LEATHER"), 1, 5.50); err == nil {
		t.Fatal("expected error for invalid cover")
	}
	if _, err := s.Create(ctx, "Kobzar", "Shevchenko", model.CoverHard, -1, 5.50); err == nil {
		t.Fatal("expected error for negative inventory")
	}
	if _, err := s.Create(ctx, "Kobzar", "Shevchenko", model.CoverHard, 1, -0.01); err == nil {
		t.Fatal("expected error for negative fee")
	}
}

func TestCreate_Success(t *testing.T) {
	m := &repoMock{
		createFn: func(ctx context.Context, title, author string, cover model.Cover, inventory int64, dailyFee float64) (int64, error) {
			if title != "Kobzar" || author != "Shevchenko" || cover != model.CoverSoft || inventory != 3 || dailyFee != 6.99 {
				return 0, errors.New("bad args")
			}
			return 42, nil
		},
	}
	s := booksvc.New(m)
	id, err := s.Create(context.Background(), "Kobzar", "Shevchenko", model.CoverSoft, 3, 6.99)
	if err != nil || id != 42 {
		t.Fatalf("got id=%v err=%v; want 42 nil", id, err)
	}
}

func TestAddInventory_Validation(t *testing.T) {
	s := booksvc.New(&repoMock{})
	if _, err := s.AddInventory(context.Background(), 1, 0); err == nil {
		t.Fatal("expected error for zero count")
	}
	if _, err := s.AddInventory(context.Background(), 1, -2); err == nil {
		t.Fatal("expected error for negative count")
	}
}

func TestPassThroughs(t *testing.T) {
	m := &repoMock{
		addFn:    func(ctx context.Context, bookID int64, n int64) (int64, error) { return 5, nil },
		listFn:   func(ctx context.Context) ([]model.Book, error) { return nil, nil },
		detailFn: func(ctx context.Context, id int64) (*model.Book, error) { return &model.Book{}, nil },
	}
	s := booksvc.New(m)

	if inv, err := s.AddInventory(context.Background(), 7, 3); err != nil || inv != 5 {
		t.Fatalf("AddInventory got %v %v; want 5 nil", inv, err)
	}
	if _, err := s.List(context.Background()); err != nil {
		t.Fatalf("List error: %v", err)
	}
	if _, err := s.Detail(context.Background(), 99); err != nil {
		t.Fatalf("Detail error: %v", err)
	}
}
