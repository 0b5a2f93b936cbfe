package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"subwatch/internal/domain"
	"subwatch/internal/provider"
	"subwatch/internal/store"
)

// Session is the portal session lifecycle the daemon manages.
// provider.Session implements it.
type Session interface {
	Open() error
	Login(ctx context.Context) error
	Refresh(ctx context.Context) error
	Close()
	Age() time.Duration
}

// DaemonConfig tunes scheduling and recovery.
type DaemonConfig struct {
	CycleInterval   time.Duration
	OffHoursRecheck time.Duration
	SessionRestart  time.Duration // close and reopen the session after this long
	MaxCycleErrors  int           // consecutive cycle failures before a forced session restart
	ActiveFromM     int           // operating window, minutes since midnight in loc
	ActiveToM       int
	RetentionDays   int
}

// Daemon runs the outer session loop and the inner cycle loop. One logical
// thread of control: cycles never overlap and all store mutation happens here.
type Daemon struct {
	cfg     DaemonConfig
	eng     *Engine
	repo    store.Repo
	sess    Session
	scraper Scraper
	loc     *time.Location
	log     *zap.Logger
	now     func() time.Time
}

// NewDaemon wires the daemon. loc is the operating timezone for the
// active-hours gate.
func NewDaemon(cfg DaemonConfig, eng *Engine, repo store.Repo, sess Session,
	scraper Scraper, loc *time.Location, log *zap.Logger,
) *Daemon {
	return &Daemon{
		cfg:     cfg,
		eng:     eng,
		repo:    repo,
		sess:    sess,
		scraper: scraper,
		loc:     loc,
		log:     log,
		now:     time.Now,
	}
}

// Run loops {open session → login → cycles → close session} until ctx is
// canceled. A restart condition (session age, error threshold) closes the
// session and comes back with a fresh one; only shutdown exits.
func (d *Daemon) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := d.sess.Open(); err != nil {
			d.log.Error("session open failed", zap.Error(err))
			sleepCtx(ctx, 30*time.Second)
			continue
		}
		if err := d.sess.Login(ctx); err != nil {
			d.log.Error("login failed", zap.Error(err))
			d.sess.Close()
			sleepCtx(ctx, time.Minute)
			continue
		}

		reason := d.runCycles(ctx)
		d.sess.Close()
		d.log.Info("session closed", zap.String("reason", reason))
	}
	return nil
}

func (d *Daemon) runCycles(ctx context.Context) string {
	consecutive := 0
	for {
		if ctx.Err() != nil {
			return "shutdown"
		}

		// Off hours: no scraping, no notification traffic, no session churn.
		// Checked before the restart interval so an aged session idles here
		// instead of being cycled through a middle-of-the-night re-login.
		if !domain.InWindow(domain.MinuteOfDay(d.now(), d.loc), d.cfg.ActiveFromM, d.cfg.ActiveToM) {
			d.log.Debug("outside operating hours, idling")
			if !sleepCtx(ctx, d.cfg.OffHoursRecheck) {
				return "shutdown"
			}
			continue
		}

		if d.cfg.SessionRestart > 0 && d.sess.Age() >= d.cfg.SessionRestart {
			return "session restart interval"
		}

		if err := d.cycle(ctx); err != nil {
			consecutive++
			d.log.Error("cycle failed",
				zap.Int("consecutive_errors", consecutive), zap.Error(err))
			if consecutive >= d.cfg.MaxCycleErrors {
				// The session may be corrupt; a fresh one is cheaper than guessing.
				return "consecutive cycle error threshold"
			}
		} else {
			consecutive = 0
		}

		if !sleepCtx(ctx, d.cfg.CycleInterval) {
			return "shutdown"
		}
	}
}

// cycle is one full pass, in fixed order: session refresh, callbacks,
// bookings, expiry, scrape+dispatch, purge, persist stats, heartbeat.
func (d *Daemon) cycle(ctx context.Context) error {
	if err := d.sess.Refresh(ctx); err != nil {
		if !provider.IsSessionExpired(err) {
			return fmt.Errorf("session refresh: %w", err)
		}
		d.log.Info("session expired, re-authenticating")
		if err := d.sess.Login(ctx); err != nil {
			return fmt.Errorf("re-login: %w", err)
		}
	}

	if err := d.eng.ProcessCallbacks(ctx); err != nil {
		return fmt.Errorf("process callbacks: %w", err)
	}
	if err := d.eng.ExecuteBookings(ctx); err != nil {
		return fmt.Errorf("execute bookings: %w", err)
	}
	if err := d.eng.SweepExpired(ctx); err != nil {
		return fmt.Errorf("sweep expired: %w", err)
	}

	paused, err := d.repo.Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		d.log.Debug("paused, skipping scrape")
	} else {
		jobs, err := d.scraper.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("scrape: %w", err)
		}
		if err := d.eng.Dispatch(ctx, jobs); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}

	cutoff := d.now().UTC().AddDate(0, 0, -d.cfg.RetentionDays)
	if n, err := d.repo.Purge(ctx, cutoff); err != nil {
		return fmt.Errorf("purge: %w", err)
	} else if n > 0 {
		d.log.Info("purged old entries", zap.Int64("count", n))
	}

	if err := d.repo.SaveCounters(ctx, d.eng.Counters()); err != nil {
		return fmt.Errorf("persist counters: %w", err)
	}
	return d.repo.Heartbeat(ctx, d.now().UTC())
}

// sleepCtx sleeps for d or until ctx is canceled; returns false on cancel so
// a pending shutdown never waits out a full interval.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
