package booksvc

import (
	"context"
	"errors"
	"strings"

	"github.com/mblazhko/library-service/model"
)

var ErrBadInput = errors.New("invalid payload")

type Repo interface {
	CreateBook(ctx context.Context, title, author string, cover model.Cover, inventory int64, dailyFee float64) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int64) (int64, error)
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type Service interface {
	Create(ctx context.Context, title, author string, cover model.Cover, inventory int64, dailyFee float64) (int64, error)
	AddInventory(ctx context.Context, bookID int64, n int64) (int64, error)
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type service struct{ r Repo }

func New(r Repo) Service { return &service{r: r} }

func (s *service) Create(ctx context.Context, title, author string, cover model.Cover, inventory int64, dailyFee float64) (int64, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" || !cover.Valid() || inventory < 0 || dailyFee < 0 {
		return 0, ErrBadInput
	}
	return s.r.CreateBook(ctx, title, author, cover, inventory, dailyFee)
}

func (s *service) AddInventory(ctx context.Context, bookID int64, n int64) (int64, error) {
	if n <= 0 {
		return 0, ErrBadInput
	}
	return s.r.AddInventory(ctx, bookID, n)
}

func (s *service) List(ctx context.Context) ([]model.Book, error)            { return s.r.List(ctx) }
func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) { return s.r.Detail(ctx, id) }
