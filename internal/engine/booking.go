package engine

import (
	"context"

	"go.uber.org/zap"

	"subwatch/internal/domain"
)

// ExecuteBookings drives every book_requested entry to a terminal outcome.
func (e *Engine) ExecuteBookings(ctx context.Context) error {
	entries, err := e.repo.ListByStatus(ctx, domain.StatusBookRequested)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		e.bookEntry(ctx, entry)
	}
	return nil
}

// bookEntry runs one booking attempt. The entry is durably marked `booking`
// before the provider call so a crash mid-attempt is recoverable (startup
// force-fails stranded `booking` rows). A failed attempt is terminal for this
// entry: recovery happens only if a later scrape re-surfaces the job after
// the entry is purged.
func (e *Engine) bookEntry(ctx context.Context, entry domain.Entry) {
	ok, err := e.repo.Transition(ctx, entry.Fingerprint, domain.StatusBookRequested, domain.StatusBooking)
	if err != nil {
		e.log.Error("transition to booking failed", zap.String("fingerprint", entry.Fingerprint), zap.Error(err))
		return
	}
	if !ok {
		return // already moved on; nothing to do
	}

	outcome, bookErr := e.actuator.Book(ctx, entry.Job)

	switch outcome {
	case domain.OutcomeBooked:
		e.finishBooking(ctx, entry, domain.StatusBooked, bookedText(entry))
		e.counters.Booked++
		e.log.Info("booking succeeded",
			zap.String("fingerprint", entry.Fingerprint),
			zap.String("job_number", entry.Job.JobNumber))

	case domain.OutcomeTaken:
		e.finishBooking(ctx, entry, domain.StatusFailed, takenText(entry))
		e.counters.Taken++
		e.log.Info("job already taken",
			zap.String("fingerprint", entry.Fingerprint),
			zap.String("job_number", entry.Job.JobNumber))

	default:
		e.finishBooking(ctx, entry, domain.StatusFailed, bookingErrorText(entry, e.opts.PortalURL))
		e.counters.Failed++
		e.log.Error("booking failed",
			zap.String("fingerprint", entry.Fingerprint),
			zap.String("job_number", entry.Job.JobNumber),
			zap.Error(bookErr))
	}
}

func (e *Engine) finishBooking(ctx context.Context, entry domain.Entry, to domain.Status, text string) {
	if _, err := e.repo.Transition(ctx, entry.Fingerprint, domain.StatusBooking, to); err != nil {
		e.log.Error("transition from booking failed",
			zap.String("fingerprint", entry.Fingerprint),
			zap.String("to", string(to)), zap.Error(err))
	}
	if err := e.ch.Edit(entry.MessageID, text); err != nil {
		e.log.Warn("notification edit failed",
			zap.String("fingerprint", entry.Fingerprint), zap.Error(err))
	}
}
