package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"subwatch/internal/domain"
	"subwatch/internal/store"
)

// Dispatch classifies the scraped jobs and routes new matches: eligible ones
// straight into an auto-booking attempt, the rest into a confirmation
// request. Jobs already present in the store (by fingerprint) are skipped;
// at most one entry ever exists per fingerprint.
func (e *Engine) Dispatch(ctx context.Context, jobs []domain.Job) error {
	now := e.now().UTC()
	var created, notified, autoBooked, uncertain int

	for _, job := range jobs {
		res := e.rules.Classify(job)
		if !res.Match {
			e.log.Debug("job rejected",
				zap.String("school", job.School),
				zap.String("position", job.Position),
				zap.String("reason", res.Reason))
			continue
		}

		fp := domain.Fingerprint(job)
		exists, err := e.repo.HasEntry(ctx, fp)
		if err != nil {
			return err
		}
		if exists {
			e.log.Debug("job already handled", zap.String("fingerprint", fp))
			continue
		}

		daysAhead := domain.DaysAhead(job, now, e.loc)
		auto := !res.Uncertain && daysAhead >= e.opts.MinLeadDays

		entry := domain.Entry{
			Fingerprint: fp,
			CreatedAt:   now,
			Job:         job,
			Uncertain:   res.Uncertain,
		}

		if auto {
			msgID, sendErr := e.ch.Send(autoBookText(job), nil)
			if sendErr != nil {
				e.log.Warn("auto-book notification failed", zap.Error(sendErr))
			}
			entry.Status = domain.StatusBookRequested
			entry.AutoBooked = true
			entry.MessageID = msgID
		} else {
			expires := now.Add(e.opts.ConfirmTTL)
			msgID, sendErr := e.ch.Send(confirmText(job, res.Reason, daysAhead, e.opts.ConfirmTTL), bookIgnoreActions(fp))
			if sendErr != nil {
				// Entry is still created: it will expire on its own, and the
				// next cycle's re-scrape must not re-notify.
				e.log.Warn("confirmation notification failed", zap.Error(sendErr))
			}
			entry.Status = domain.StatusNotified
			entry.ExpiresAt = &expires
			entry.MessageID = msgID
		}

		if err := e.repo.CreateEntry(ctx, &entry); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			return err
		}

		created++
		e.counters.Matched++
		if res.Uncertain {
			uncertain++
			e.counters.UncertainMatched++
		}
		e.log.Info("new match dispatched",
			zap.String("fingerprint", fp),
			zap.String("school", job.School),
			zap.String("position", job.Position),
			zap.String("status", string(entry.Status)),
			zap.Int("days_ahead", daysAhead),
			zap.Bool("uncertain", res.Uncertain))

		if auto {
			autoBooked++
			e.counters.AutoBooked++
			// Do not wait for the next cycle: the whole point of auto-booking
			// is beating other substitutes to the job.
			e.bookEntry(ctx, entry)
		} else {
			notified++
			e.counters.Notified++
		}
	}

	if created > 0 {
		if _, err := e.ch.Send(summaryText(created, notified, autoBooked, uncertain), nil); err != nil {
			e.log.Warn("summary notification failed", zap.Error(err))
		}
	}
	return nil
}
