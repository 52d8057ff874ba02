package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/campus-scheduler/internal/alarm"
	"github.com/example/campus-scheduler/internal/period"
)

const (
	// StorageSQLite keeps all state in a SQLite file.
	StorageSQLite = "sqlite"
	// StorageMemory keeps all state in process memory; nothing survives a restart.
	StorageMemory = "memory"

	maxConfigurablePeriods = 24
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort          int
	Storage           string
	SQLitePath        string
	MigrationsEnabled bool
	Location          *time.Location
	Rules             period.Rules
	AllDayAnchor      time.Duration
	EventLinkBase     string
	JanitorSpec       string
	AlarmGrace        time.Duration
	// RateLimit is the sustained requests per second; zero disables limiting.
	RateLimit float64
	RateBurst int
	LogLevel  slog.Level
}

// Load reads an optional .env file from the working directory and then
// parses the process environment. Variables already set in the environment
// win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env 파일을 읽을 수 없습니다: %w", err)
	}
	return FromEnvironment()
}

// FromEnvironment parses configuration values from the current process environment.
//
// Optional fields fall back to defaults. Every invalid value is collected so
// one error names all offending keys.
func FromEnvironment() (Config, error) {
	cfg := Config{
		HTTPPort:          8080,
		Storage:           StorageSQLite,
		SQLitePath:        "scheduler.db",
		MigrationsEnabled: true,
		Rules:             period.DefaultRules(),
		AllDayAnchor:      9 * time.Hour,
		EventLinkBase:     alarm.DefaultLinkBase,
		JanitorSpec:       alarm.DefaultJanitorSpec,
		AlarmGrace:        alarm.DefaultGrace,
		RateLimit:         50,
		RateBurst:         100,
		LogLevel:          slog.LevelInfo,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := env("SCHEDULER_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if storage := strings.ToLower(env("SCHEDULER_STORAGE")); storage != "" {
		switch storage {
		case StorageSQLite, StorageMemory:
			cfg.Storage = storage
		default:
			invalid = append(invalid, "SCHEDULER_STORAGE")
		}
	}

	if path, ok := os.LookupEnv("SCHEDULER_SQLITE_PATH"); ok {
		cfg.SQLitePath = strings.TrimSpace(path)
		if cfg.SQLitePath == "" && cfg.Storage == StorageSQLite {
			missing = append(missing, "SCHEDULER_SQLITE_PATH")
		}
	}

	if value := env("SCHEDULER_MIGRATIONS_ENABLED"); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_MIGRATIONS_ENABLED")
		} else {
			cfg.MigrationsEnabled = enabled
		}
	}

	tz := env("SCHEDULER_TIMEZONE")
	if tz == "" {
		tz = "Asia/Seoul"
	}
	if loc, err := time.LoadLocation(tz); err != nil {
		invalid = append(invalid, "SCHEDULER_TIMEZONE")
	} else {
		cfg.Location = loc
	}

	if path := env("SCHEDULER_RULES_FILE"); path != "" {
		rules, err := LoadRules(path)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_RULES_FILE")
		} else {
			cfg.Rules = rules
		}
	}

	if value := env("SCHEDULER_ALLDAY_ANCHOR"); value != "" {
		anchor, err := period.ParseTimeOfDay(value)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_ALLDAY_ANCHOR")
		} else {
			cfg.AllDayAnchor = anchor
		}
	}

	if base := env("SCHEDULER_EVENT_LINK_BASE"); base != "" {
		cfg.EventLinkBase = base
	}

	if spec := env("SCHEDULER_JANITOR_SPEC"); spec != "" {
		cfg.JanitorSpec = spec
	}

	if value := env("SCHEDULER_ALARM_GRACE"); value != "" {
		grace, err := time.ParseDuration(value)
		if err != nil || grace <= 0 {
			invalid = append(invalid, "SCHEDULER_ALARM_GRACE")
		} else {
			cfg.AlarmGrace = grace
		}
	}

	if value := env("SCHEDULER_RATE_LIMIT"); value != "" {
		limit, err := strconv.ParseFloat(value, 64)
		if err != nil || limit < 0 {
			invalid = append(invalid, "SCHEDULER_RATE_LIMIT")
		} else {
			cfg.RateLimit = limit
		}
	}

	if value := env("SCHEDULER_RATE_BURST"); value != "" {
		burst, err := strconv.Atoi(value)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "SCHEDULER_RATE_BURST")
		} else {
			cfg.RateBurst = burst
		}
	}

	if value := env("SCHEDULER_LOG_LEVEL"); value != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(value)); err != nil {
			invalid = append(invalid, "SCHEDULER_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("필수 환경 변수가 설정되지 않았습니다: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("환경 변수 값이 올바르지 않습니다: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// ruleFile is the YAML shape of a period rule file:
//
//	anchor: "09:00"
//	period_minutes: 60
//	max_period: 12
type ruleFile struct {
	Anchor        string `yaml:"anchor"`
	PeriodMinutes int    `yaml:"period_minutes"`
	MaxPeriod     int    `yaml:"max_period"`
}

// LoadRules reads a YAML period rule file. Omitted keys keep their defaults.
func LoadRules(path string) (period.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return period.Rules{}, fmt.Errorf("read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return period.Rules{}, fmt.Errorf("parse rules file: %w", err)
	}

	rules := period.DefaultRules()
	if strings.TrimSpace(file.Anchor) != "" {
		anchor, err := period.ParseTimeOfDay(file.Anchor)
		if err != nil {
			return period.Rules{}, fmt.Errorf("rules anchor %q: %w", file.Anchor, err)
		}
		rules.Anchor = anchor
	}
	if file.PeriodMinutes != 0 {
		rules.Duration = time.Duration(file.PeriodMinutes) * time.Minute
	}
	if file.MaxPeriod != 0 {
		rules.MaxPeriod = file.MaxPeriod
	}
	if rules.MaxPeriod > maxConfigurablePeriods {
		return period.Rules{}, fmt.Errorf("%w: at most %d periods", period.ErrInvalidRules, maxConfigurablePeriods)
	}
	if err := rules.Validate(); err != nil {
		return period.Rules{}, err
	}
	return rules, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
