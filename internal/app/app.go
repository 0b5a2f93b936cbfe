package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"subwatch/internal/classify"
	"subwatch/internal/config"
	"subwatch/internal/domain"
	"subwatch/internal/engine"
	"subwatch/internal/provider"
	"subwatch/internal/store"
	"subwatch/internal/telegram"
)

// App wires configuration, storage, the Telegram channel, the portal session
// and the daemon together.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
}

// New validates config-level wiring that needs no I/O beyond the bot
// handshake.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

// Run starts the daemon and blocks until a termination signal. Shutdown is
// cooperative: the signal cancels the context, every sleep and cycle step
// checks it, and the session is released before exit.
func (a *App) Run(ctx context.Context) error {
	loc, err := time.LoadLocation(a.cfg.TZ)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", a.cfg.TZ, err)
	}
	fromM, toM, err := domain.ParseActiveWindow(a.cfg.ActiveHours)
	if err != nil {
		return fmt.Errorf("parse ACTIVE_HOURS: %w", err)
	}

	rules, err := classify.LoadRules(a.cfg.RulesPath)
	if err != nil {
		return err
	}

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	a.repo = repo
	defer func() { _ = repo.Close() }()
	a.log.Info("sqlite ready", zap.String("path", a.cfg.DBPath))

	// A previous process may have died mid-booking; the provider-side outcome
	// of those attempts is unknown, so fail them before the first cycle.
	if n, err := repo.RecoverInFlight(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	} else if n > 0 {
		a.log.Warn("recovered in-flight bookings as failed", zap.Int64("count", n))
	}

	counters, err := repo.LoadCounters(ctx)
	if err != nil {
		return fmt.Errorf("load counters: %w", err)
	}
	runID := uuid.NewString()
	if err := repo.BeginRun(ctx, runID, time.Now()); err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	channel := telegram.New(a.bot, a.cfg.ChatID, a.log)
	sess := provider.NewSession(a.cfg.PortalURL, a.cfg.PortalUser, a.cfg.PortalPass, a.log)
	scraper := provider.NewScraper(sess, a.log)
	actuator := provider.NewActuator(sess, a.log)

	eng := engine.New(repo, channel, actuator, rules, engine.Options{
		ConfirmTTL:  a.cfg.ConfirmTTL,
		MinLeadDays: a.cfg.MinLeadDays,
		PortalURL:   a.cfg.PortalURL,
	}, loc, a.log)
	eng.RestoreCounters(counters)

	daemon := engine.NewDaemon(engine.DaemonConfig{
		CycleInterval:   a.cfg.CycleInterval,
		OffHoursRecheck: a.cfg.OffHoursRecheck,
		SessionRestart:  a.cfg.SessionRestart,
		MaxCycleErrors:  a.cfg.MaxCycleErrors,
		ActiveFromM:     fromM,
		ActiveToM:       toM,
		RetentionDays:   a.cfg.RetentionDays,
	}, eng, repo, sess, scraper, loc, a.log)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("starting subwatch",
		zap.String("run_id", runID),
		zap.String("tz", a.cfg.TZ),
		zap.String("active_hours", a.cfg.ActiveHours),
		zap.Duration("cycle_interval", a.cfg.CycleInterval))

	runErr := daemon.Run(ctx)

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := a.httpSrv.Shutdown(shCtx); err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	cancel()

	a.log.Info("shutdown complete")
	return runErr
}
