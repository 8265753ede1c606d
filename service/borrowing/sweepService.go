package borrowing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	telegramrepo "github.com/mblazhko/library-service/repository/telegram"
)

// SweepReport summarizes one due-date sweep run.
type SweepReport struct {
	Due    int `json:"due"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Sweeper reports every active borrowing due within the next 24 hours.
// The run is stateless: invoking it twice on the same day re-sends the
// same messages.
type Sweeper interface {
	SweepDueSoon(ctx context.Context, now time.Time) (SweepReport, error)
}

type sweeper struct {
	r   Repo
	n   telegramrepo.Notifier
	log *slog.Logger
}

func NewSweeper(r Repo, n telegramrepo.Notifier, log *slog.Logger) Sweeper {
	return &sweeper{r: r, n: n, log: log}
}

// SweepDueSoon takes the reference time as a parameter so the schedule
// stays outside the testable surface.
func (s *sweeper) SweepDueSoon(ctx context.Context, now time.Time) (SweepReport, error) {
	deadline := now.Add(24 * time.Hour)

	due, err := s.r.DueSoon(ctx, deadline)
	if err != nil {
		return SweepReport{}, err
	}

	rep := SweepReport{Due: len(due)}
	if len(due) == 0 {
		if err := s.n.Send(ctx, "No borrowings due tomorrow!"); err != nil {
			s.log.Error("sweep notification failed", "err", err)
			rep.Failed++
		} else {
			rep.Sent++
		}
		return rep, nil
	}

	// One message per borrowing; a failed send must not starve the rest.
	for _, d := range due {
		msg := fmt.Sprintf(
			"Borrowing due tomorrow:\nBook: %s\nExpected Return Date: %s\nIt's last day to return the book!",
			d.BookTitle, d.ExpectedReturnDate.Format(time.RFC3339),
		)
		if err := s.n.Send(ctx, msg); err != nil {
			s.log.Error("sweep notification failed",
				"borrowing_id", d.BorrowingID, "err", err)
			rep.Failed++
			continue
		}
		rep.Sent++
	}
	return rep, nil
}
