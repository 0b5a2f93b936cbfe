package engine

import (
	"context"

	"go.uber.org/zap"

	"subwatch/internal/domain"
)

// SweepExpired transitions stale confirmation requests to expired and strips
// their buttons. The guarded transition makes the sweep exactly-once: an
// entry already moved by a racing button press is skipped silently.
func (e *Engine) SweepExpired(ctx context.Context) error {
	entries, err := e.repo.ListExpiredNotified(ctx, e.now().UTC())
	if err != nil {
		return err
	}

	for _, entry := range entries {
		ok, err := e.repo.Transition(ctx, entry.Fingerprint, domain.StatusNotified, domain.StatusExpired)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.ch.Edit(entry.MessageID, expiredText(entry)); err != nil {
			e.log.Warn("expiry edit failed", zap.String("fingerprint", entry.Fingerprint), zap.Error(err))
		}
		e.counters.Expired++
		e.log.Info("confirmation expired", zap.String("fingerprint", entry.Fingerprint))
	}
	return nil
}
