// Package engine holds the job lifecycle core: classification dispatch, the
// notification state machine, callback handling, booking execution, and the
// daemon loop that runs them as strictly serial cycles.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"subwatch/internal/classify"
	"subwatch/internal/domain"
	"subwatch/internal/store"
)

// Channel is the minimal notification surface the engine needs.
// telegram.Channel implements it.
type Channel interface {
	Send(text string, actions []domain.Action) (int, error)
	Edit(messageID int, text string) error
	Poll(cursor int) ([]domain.Event, int, error)
	Ack(eventID, toast string) error
}

// Actuator performs the provider-side booking action. provider.Actuator
// implements it.
type Actuator interface {
	Book(ctx context.Context, job domain.Job) (domain.Outcome, error)
}

// Scraper produces the current postings. provider.Scraper implements it.
type Scraper interface {
	Fetch(ctx context.Context) ([]domain.Job, error)
}

// Options tunes the lifecycle rules that are not part of the filter rule set.
type Options struct {
	ConfirmTTL  time.Duration // how long a confirmation request stays actionable
	MinLeadDays int           // auto-book only this many calendar days out, for cancellation slack
	PortalURL   string        // manual fallback link shown on booking errors
}

// Engine applies lifecycle transitions against the store. All methods are
// called from the single daemon goroutine; nothing here is safe for
// concurrent use and nothing needs to be.
type Engine struct {
	repo     store.Repo
	ch       Channel
	actuator Actuator
	rules    *classify.Rules
	opts     Options
	loc      *time.Location
	log      *zap.Logger

	counters domain.Counters
	now      func() time.Time
}

// New creates an engine. loc is the operating timezone used for lead-day math.
func New(repo store.Repo, ch Channel, actuator Actuator, rules *classify.Rules,
	opts Options, loc *time.Location, log *zap.Logger,
) *Engine {
	if opts.ConfirmTTL <= 0 {
		opts.ConfirmTTL = 5 * time.Minute
	}
	if opts.MinLeadDays <= 0 {
		opts.MinLeadDays = 3
	}
	return &Engine{
		repo:     repo,
		ch:       ch,
		actuator: actuator,
		rules:    rules,
		opts:     opts,
		loc:      loc,
		log:      log,
		now:      time.Now,
	}
}

// Counters returns the current run statistics.
func (e *Engine) Counters() domain.Counters { return e.counters }

// RestoreCounters seeds counters from persisted stats at process start.
func (e *Engine) RestoreCounters(c domain.Counters) { e.counters = c }
