// Runs the periodic publishing jobs.

package publish

import (
	"context"
	"log/slog"
	"time"
)

// ReviewNotifier sends the list of projects waiting in review to staff.
type ReviewNotifier interface {
	SendStaffSummary(ctx context.Context, q *ReviewQueue) error
}

// Scheduler publishes due projects and periodically reminds staff of the
// review queue.
type Scheduler struct {
	Machine *Machine
	// SweepInterval is the period of PublishDue. Zero disables it.
	SweepInterval time.Duration
	// SummaryInterval is the period of the staff summary. Zero or a nil
	// Notifier disables it.
	SummaryInterval time.Duration
	SummaryLimit    int
	Notifier        ReviewNotifier
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	var sweep, summary <-chan time.Time
	if s.SweepInterval > 0 {
		t := time.NewTicker(s.SweepInterval)
		defer t.Stop()
		sweep = t.C
		// Catch up on projects that became due while the server was down.
		s.sweep(ctx)
	}
	if s.SummaryInterval > 0 && s.Notifier != nil {
		t := time.NewTicker(s.SummaryInterval)
		defer t.Stop()
		summary = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweep:
			s.sweep(ctx)
		case <-summary:
			s.SendSummary(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.Machine.PublishDue(ctx); err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "Publish sweep failed", "err", err)
	}
}

// SendSummary sends the review queue to staff when it is not empty.
func (s *Scheduler) SendSummary(ctx context.Context) {
	q := s.Machine.InReview(s.SummaryLimit)
	if q.Total == 0 {
		return
	}
	if err := s.Notifier.SendStaffSummary(ctx, q); err != nil {
		slog.WarnContext(ctx, "Failed to send review summary", "err", err)
		return
	}
	slog.InfoContext(ctx, "Sent review summary", "total", q.Total)
}
