// model/borrowing.go
package model

import "time"

// Borrowing is one loan of a single book copy. IsActive is true until
// ActualReturnDate is set; both flip together at return time.
type Borrowing struct {
	ID                 int64      `json:"id"`
	BorrowDate         time.Time  `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty"`
	BookID             int64      `json:"book_id"`
	UserID             int64      `json:"user_id"`
	IsActive           bool       `json:"is_active"`
}

// BorrowingDetail embeds the borrowed book for the retrieve endpoint.
type BorrowingDetail struct {
	Borrowing
	Book Book `json:"book"`
}
