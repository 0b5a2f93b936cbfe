package store

import (
	"context"
	"errors"
	"time"

	"subwatch/internal/domain"
)

var (
	// ErrNotFound is returned when no entry exists for a fingerprint.
	ErrNotFound = errors.New("entry not found")
	// ErrDuplicate is returned when creating an entry whose fingerprint already exists.
	ErrDuplicate = errors.New("entry already exists")
)

// Repo defines storage operations for lifecycle entries, daemon state and
// run statistics.
type Repo interface {
	GetEntry(ctx context.Context, fingerprint string) (*domain.Entry, error)
	HasEntry(ctx context.Context, fingerprint string) (bool, error)
	CreateEntry(ctx context.Context, e *domain.Entry) error
	// Transition moves an entry from one status to another. Returns false
	// without error when the entry is not currently in `from`, so callers can
	// treat a lost race as a no-op instead of a failure.
	Transition(ctx context.Context, fingerprint string, from, to domain.Status) (bool, error)
	SetMessageID(ctx context.Context, fingerprint string, messageID int) error
	ListByStatus(ctx context.Context, s domain.Status) ([]domain.Entry, error)
	// ListExpiredNotified returns notified entries whose expiry deadline has passed.
	ListExpiredNotified(ctx context.Context, now time.Time) ([]domain.Entry, error)
	// RecoverInFlight force-fails entries stranded in `booking` by a dead
	// process. Run once at startup, before the first cycle.
	RecoverInFlight(ctx context.Context) (int64, error)
	// Purge removes entries created before the cutoff, regardless of status.
	Purge(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)

	Cursor(ctx context.Context) (int, error)
	SetCursor(ctx context.Context, cursor int) error
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
	Heartbeat(ctx context.Context, at time.Time) error
	LastHeartbeat(ctx context.Context) (*time.Time, error)

	LoadCounters(ctx context.Context) (domain.Counters, error)
	SaveCounters(ctx context.Context, c domain.Counters) error
	// BeginRun records a fresh run identity while keeping cumulative counters.
	BeginRun(ctx context.Context, runID string, at time.Time) error

	Close() error
}
