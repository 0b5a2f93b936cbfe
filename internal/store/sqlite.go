package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"subwatch/internal/domain"
)

const entryColumns = `fingerprint, created_at, status, expires_at, message_id, job_json, uncertain, auto_booked`

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

// scanEntry reads one entry row. Legacy rows written before the lifecycle
// migration carry a NULL status and no job snapshot; they load as expired
// with the expiry pinned to creation time, never as an error.
func scanEntry(row scannable) (*domain.Entry, error) {
	var (
		fingerprint string
		createdAt   int64
		status      sql.NullString
		expiresNS   sql.NullInt64
		messageID   int
		jobJSON     sql.NullString
		uncertain   int
		autoBooked  int
	)
	if err := row.Scan(
		&fingerprint, &createdAt, &status, &expiresNS,
		&messageID, &jobJSON, &uncertain, &autoBooked,
	); err != nil {
		return nil, err
	}

	e := &domain.Entry{
		Fingerprint: fingerprint,
		CreatedAt:   time.Unix(createdAt, 0).UTC(),
		ExpiresAt:   fromNullInt64(expiresNS),
		MessageID:   messageID,
		Uncertain:   uncertain != 0,
		AutoBooked:  autoBooked != 0,
	}
	if status.Valid && status.String != "" {
		e.Status = domain.Status(status.String)
	} else {
		e.Status = domain.StatusExpired
		created := e.CreatedAt
		e.ExpiresAt = &created
	}
	if jobJSON.Valid && jobJSON.String != "" {
		// A corrupt snapshot degrades to an empty job rather than failing the load.
		_ = json.Unmarshal([]byte(jobJSON.String), &e.Job)
	}
	return e, nil
}

// GetEntry returns the entry for a fingerprint, or ErrNotFound.
func (r *SQLiteRepo) GetEntry(ctx context.Context, fingerprint string) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE fingerprint = ?`, fingerprint)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// HasEntry reports whether any entry exists for a fingerprint.
func (r *SQLiteRepo) HasEntry(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE fingerprint = ?`, fingerprint).Scan(&n)
	return n > 0, err
}

// CreateEntry inserts a new entry. The fingerprint primary key enforces the
// at-most-one-entry invariant; a duplicate returns ErrDuplicate untouched.
func (r *SQLiteRepo) CreateEntry(ctx context.Context, e *domain.Entry) error {
	if e == nil {
		return errors.New("nil entry")
	}
	jobJSON, err := json.Marshal(e.Job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entries (
			fingerprint, created_at, status, expires_at,
			message_id, job_json, uncertain, auto_booked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Fingerprint, e.CreatedAt.UTC().Unix(), string(e.Status), toNullInt64(e.ExpiresAt),
		e.MessageID, string(jobJSON), boolToInt(e.Uncertain), boolToInt(e.AutoBooked),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// Transition performs a guarded status change. The WHERE clause carries the
// state-machine check: nothing moves unless the entry is in `from`.
func (r *SQLiteRepo) Transition(ctx context.Context, fingerprint string, from, to domain.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE entries SET status = ?
		WHERE fingerprint = ? AND status = ?`,
		string(to), fingerprint, string(from),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetMessageID records the channel message handle for later edits.
func (r *SQLiteRepo) SetMessageID(ctx context.Context, fingerprint string, messageID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE entries SET message_id = ? WHERE fingerprint = ?`, messageID, fingerprint)
	return err
}

// ListByStatus returns all entries in the given status, oldest first.
func (r *SQLiteRepo) ListByStatus(ctx context.Context, s domain.Status) ([]domain.Entry, error) {
	return r.listWhere(ctx, `status = ?`, string(s))
}

// ListExpiredNotified returns notified entries whose expiry deadline has passed.
func (r *SQLiteRepo) ListExpiredNotified(ctx context.Context, now time.Time) ([]domain.Entry, error) {
	return r.listWhere(ctx,
		`status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		string(domain.StatusNotified), now.UTC().Unix())
}

func (r *SQLiteRepo) listWhere(ctx context.Context, where string, args ...any) ([]domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE `+where+` ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// RecoverInFlight force-fails entries a previous process left in `booking`.
// The provider-side outcome of those attempts is unknown; failing them means
// a possible duplicate manual check instead of a silently lost booking.
func (r *SQLiteRepo) RecoverInFlight(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE entries SET status = ?
		WHERE status = ?`,
		string(domain.StatusFailed), string(domain.StatusBooking),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Purge removes entries created before the cutoff, regardless of status.
func (r *SQLiteRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM entries WHERE created_at < ?`, before.UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByStatus returns entry counts grouped by status (legacy NULL-status
// rows count as expired).
func (r *SQLiteRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(status, ''), ?), COUNT(*)
		FROM entries GROUP BY 1`,
		string(domain.StatusExpired),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[domain.Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		res[domain.Status(s)] += n
	}
	return res, rows.Err()
}

// --- daemon state ---

// Cursor returns the persisted update cursor for the notification channel.
func (r *SQLiteRepo) Cursor(ctx context.Context) (int, error) {
	var c int
	err := r.db.QueryRowContext(ctx, `SELECT update_cursor FROM state WHERE id = 1`).Scan(&c)
	return c, err
}

// SetCursor persists the update cursor so drained events are never redelivered.
func (r *SQLiteRepo) SetCursor(ctx context.Context, cursor int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE state SET update_cursor = ? WHERE id = 1`, cursor)
	return err
}

// Paused reports the operator pause toggle.
func (r *SQLiteRepo) Paused(ctx context.Context) (bool, error) {
	var p int
	err := r.db.QueryRowContext(ctx, `SELECT paused FROM state WHERE id = 1`).Scan(&p)
	return p != 0, err
}

// SetPaused persists the operator pause toggle.
func (r *SQLiteRepo) SetPaused(ctx context.Context, paused bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE state SET paused = ? WHERE id = 1`, boolToInt(paused))
	return err
}

// Heartbeat records liveness at the end of a cycle.
func (r *SQLiteRepo) Heartbeat(ctx context.Context, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE state SET heartbeat_at = ? WHERE id = 1`, at.UTC().Unix())
	return err
}

// LastHeartbeat returns the last recorded heartbeat, or nil if none yet.
func (r *SQLiteRepo) LastHeartbeat(ctx context.Context) (*time.Time, error) {
	var ns sql.NullInt64
	if err := r.db.QueryRowContext(ctx,
		`SELECT heartbeat_at FROM state WHERE id = 1`).Scan(&ns); err != nil {
		return nil, err
	}
	return fromNullInt64(ns), nil
}

// --- run statistics ---

// LoadCounters reads the cumulative counters.
func (r *SQLiteRepo) LoadCounters(ctx context.Context) (domain.Counters, error) {
	var c domain.Counters
	err := r.db.QueryRowContext(ctx, `
		SELECT matched, uncertain_matched, notified, auto_booked,
		       booked, taken, failed, ignored, expired
		FROM stats WHERE id = 1`).
		Scan(&c.Matched, &c.UncertainMatched, &c.Notified, &c.AutoBooked,
			&c.Booked, &c.Taken, &c.Failed, &c.Ignored, &c.Expired)
	return c, err
}

// SaveCounters persists the cumulative counters.
func (r *SQLiteRepo) SaveCounters(ctx context.Context, c domain.Counters) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE stats SET
			matched = ?, uncertain_matched = ?, notified = ?, auto_booked = ?,
			booked = ?, taken = ?, failed = ?, ignored = ?, expired = ?
		WHERE id = 1`,
		c.Matched, c.UncertainMatched, c.Notified, c.AutoBooked,
		c.Booked, c.Taken, c.Failed, c.Ignored, c.Expired,
	)
	return err
}

// BeginRun records a fresh run identity, keeping cumulative counters.
func (r *SQLiteRepo) BeginRun(ctx context.Context, runID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE stats SET run_id = ?, started_at = ? WHERE id = 1`,
		runID, at.UTC().Unix())
	return err
}
