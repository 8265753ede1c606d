// model/book.go
package model

type Cover string

const (
	CoverHard Cover = "HARD"
	CoverSoft Cover = "SOFT"
)

func (c Cover) Valid() bool { return c == CoverHard || c == CoverSoft }

type Book struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Cover     Cover   `json:"cover"`
	Inventory int64   `json:"inventory"`
	DailyFee  float64 `json:"daily_fee"`
}
