package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"subwatch/internal/domain"
	"subwatch/internal/store"
)

// ProcessCallbacks drains pending user events, oldest first, and applies the
// resulting state transitions. The cursor is persisted afterwards so drained
// events are never redelivered, even across restarts.
func (e *Engine) ProcessCallbacks(ctx context.Context) error {
	cursor, err := e.repo.Cursor(ctx)
	if err != nil {
		return err
	}

	events, next, err := e.ch.Poll(cursor)
	if err != nil {
		return fmt.Errorf("poll events: %w", err)
	}

	for _, ev := range events {
		switch ev.Action {
		case "book", "ignore":
			e.handleButton(ctx, ev)
		case "status":
			e.handleStatus(ctx)
		case "pause":
			e.handlePauseToggle(ctx, true)
		case "resume":
			e.handlePauseToggle(ctx, false)
		}
	}

	if next != cursor {
		if err := e.repo.SetCursor(ctx, next); err != nil {
			return fmt.Errorf("persist cursor: %w", err)
		}
	}
	return nil
}

func (e *Engine) handleButton(ctx context.Context, ev domain.Event) {
	entry, err := e.repo.GetEntry(ctx, ev.Fingerprint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.ack(ev, "Job not found — probably purged.")
			return
		}
		e.log.Error("entry lookup failed", zap.String("fingerprint", ev.Fingerprint), zap.Error(err))
		return
	}

	// Only a pending confirmation is actionable. Anything else just reports
	// where the entry ended up.
	if entry.Status != domain.StatusNotified {
		e.ack(ev, "Already "+string(entry.Status)+".")
		return
	}

	switch ev.Action {
	case "book":
		ok, err := e.repo.Transition(ctx, ev.Fingerprint, domain.StatusNotified, domain.StatusBookRequested)
		if err != nil {
			e.log.Error("book transition failed", zap.String("fingerprint", ev.Fingerprint), zap.Error(err))
			return
		}
		if !ok {
			e.ack(ev, "Already handled.")
			return
		}
		e.ack(ev, "Booking…")
		e.log.Info("booking confirmed by user", zap.String("fingerprint", ev.Fingerprint))

	case "ignore":
		ok, err := e.repo.Transition(ctx, ev.Fingerprint, domain.StatusNotified, domain.StatusIgnored)
		if err != nil {
			e.log.Error("ignore transition failed", zap.String("fingerprint", ev.Fingerprint), zap.Error(err))
			return
		}
		if !ok {
			e.ack(ev, "Already handled.")
			return
		}
		if err := e.ch.Edit(entry.MessageID, ignoredText(*entry)); err != nil {
			e.log.Warn("ignore edit failed", zap.Error(err))
		}
		e.counters.Ignored++
		e.ack(ev, "Ignored.")
		e.log.Info("job ignored by user", zap.String("fingerprint", ev.Fingerprint))
	}
}

func (e *Engine) handleStatus(ctx context.Context) {
	byStatus, err := e.repo.CountByStatus(ctx)
	if err != nil {
		e.log.Error("status counts failed", zap.Error(err))
		return
	}
	heartbeat, err := e.repo.LastHeartbeat(ctx)
	if err != nil {
		e.log.Error("heartbeat read failed", zap.Error(err))
		return
	}
	paused, err := e.repo.Paused(ctx)
	if err != nil {
		e.log.Error("paused read failed", zap.Error(err))
		return
	}
	if _, err := e.ch.Send(statusText(e.counters, byStatus, heartbeat, paused), nil); err != nil {
		e.log.Warn("status send failed", zap.Error(err))
	}
}

func (e *Engine) handlePauseToggle(ctx context.Context, paused bool) {
	if err := e.repo.SetPaused(ctx, paused); err != nil {
		e.log.Error("pause toggle failed", zap.Bool("paused", paused), zap.Error(err))
		return
	}
	text := "▶️ Resumed — scraping again."
	if paused {
		text = "⏸ Paused — existing entries still tracked, no new scraping."
	}
	if _, err := e.ch.Send(text, nil); err != nil {
		e.log.Warn("pause confirmation send failed", zap.Error(err))
	}
}

func (e *Engine) ack(ev domain.Event, toast string) {
	if err := e.ch.Ack(ev.ID, toast); err != nil {
		e.log.Warn("ack failed", zap.String("event_id", ev.ID), zap.Error(err))
	}
}
