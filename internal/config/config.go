package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
// Filter rules live in a separate YAML file (see classify.LoadRules).
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	ChatID   int64  `envconfig:"CHAT_ID" required:"true"` // the single chat all notifications go to

	PortalURL  string `envconfig:"PORTAL_URL" required:"true"` // base URL of the substitute portal
	PortalUser string `envconfig:"PORTAL_USER" required:"true"`
	PortalPass string `envconfig:"PORTAL_PASS" required:"true"`

	DBPath    string `envconfig:"DB_PATH" default:"./data/subwatch.db"`
	RulesPath string `envconfig:"RULES_PATH" default:""` // empty: embedded default rules

	TZ          string `envconfig:"TZ_NAME" default:"America/Denver"`
	ActiveHours string `envconfig:"ACTIVE_HOURS" default:"05:30-22:00"` // HH:MM-HH:MM, portal TZ

	CycleInterval   time.Duration `envconfig:"CYCLE_INTERVAL" default:"45s"`
	OffHoursRecheck time.Duration `envconfig:"OFF_HOURS_RECHECK" default:"5m"`
	SessionRestart  time.Duration `envconfig:"SESSION_RESTART" default:"4h"` // fresh login session after this long
	MaxCycleErrors  int           `envconfig:"MAX_CYCLE_ERRORS" default:"5"` // consecutive failures before session restart

	ConfirmTTL    time.Duration `envconfig:"CONFIRM_TTL" default:"5m"` // how long a confirmation request stays actionable
	MinLeadDays   int           `envconfig:"MIN_LEAD_DAYS" default:"3"`
	RetentionDays int           `envconfig:"RETENTION_DAYS" default:"7"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // liveness endpoint
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
