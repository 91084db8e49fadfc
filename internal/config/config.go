package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/BatmanBruc/olymp-quiz-bot/internal/billing"
	"github.com/BatmanBruc/olymp-quiz-bot/types"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	BotToken string

	Postgres PostgresConfig
	Redis    RedisConfig

	Timezone string
	Location *time.Location

	Pack10Stars         int
	Unlimited30Stars    int
	TestMode            bool
	MonetizationEnabled bool
	AdminIDs            []int64
	DailyLimit          int

	LogLevel  string
	LogFormat string
}

type PostgresConfig struct {
	DSN      string
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

type RedisConfig struct {
	Host            string
	Port            string
	Password        string
	DB              int
	Prefix          string
	SessionTTLHours int
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// ConnString returns POSTGRES_DSN when set, otherwise a URL assembled from
// the individual POSTGRES_* settings.
func (p PostgresConfig) ConnString() string {
	if dsn := strings.TrimSpace(p.DSN); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(p.User), urlEscape(p.Password), p.Host, p.Port, p.Database)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (c *Config) Policy() billing.Policy {
	return billing.Policy{
		MonetizationEnabled: c.MonetizationEnabled,
		TestMode:            c.TestMode,
		AdminIDs:            c.AdminIDs,
		Prices: map[types.Product]int{
			types.ProductPack10:      c.Pack10Stars,
			types.ProductUnlimited30: c.Unlimited30Stars,
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_DB", "quizbot")
	v.SetDefault("POSTGRES_USER", "quizbot")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "quizbot")
	v.SetDefault("SESSION_TTL_HOURS", 24)

	v.SetDefault("TIMEZONE", "Europe/Berlin")
	v.SetDefault("PACK10_STARS", 300)
	v.SetDefault("UNLIMITED30_STARS", 1500)
	v.SetDefault("TEST_MODE", "false")
	v.SetDefault("MONETIZATION_ENABLED", "false")
	v.SetDefault("DAILY_LIMIT", types.DailyLimit)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads envFile (if it exists) into the process environment without
// overriding variables that are already set, then resolves the settings.
func Load(envFile string) (*Config, error) {
	if envFile = strings.TrimSpace(envFile); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		BotToken: strings.TrimSpace(v.GetString("BOT_TOKEN")),
		Postgres: PostgresConfig{
			DSN:      v.GetString("POSTGRES_DSN"),
			Host:     strings.TrimSpace(v.GetString("POSTGRES_HOST")),
			Port:     strings.TrimSpace(v.GetString("POSTGRES_PORT")),
			Database: strings.TrimSpace(v.GetString("POSTGRES_DB")),
			User:     strings.TrimSpace(v.GetString("POSTGRES_USER")),
			Password: v.GetString("POSTGRES_PASSWORD"),
		},
		Redis: RedisConfig{
			Host:            v.GetString("REDIS_HOST"),
			Port:            v.GetString("REDIS_PORT"),
			Password:        v.GetString("REDIS_PASSWORD"),
			DB:              v.GetInt("REDIS_DB"),
			Prefix:          v.GetString("REDIS_PREFIX"),
			SessionTTLHours: v.GetInt("SESSION_TTL_HOURS"),
		},
		Timezone:            strings.TrimSpace(v.GetString("TIMEZONE")),
		Pack10Stars:         v.GetInt("PACK10_STARS"),
		Unlimited30Stars:    v.GetInt("UNLIMITED30_STARS"),
		TestMode:            parseFlag(v.GetString("TEST_MODE")),
		MonetizationEnabled: parseFlag(v.GetString("MONETIZATION_ENABLED")),
		DailyLimit:          v.GetInt("DAILY_LIMIT"),
		LogLevel:            strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogFormat:           strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
	}

	ids, err := ParseIDList(v.GetString("ADMIN_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_USER_IDS: %w", err)
	}
	cfg.AdminIDs = ids

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.Pack10Stars <= 0 || cfg.Unlimited30Stars <= 0 {
		return nil, errors.New("product prices must be positive")
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = types.DailyLimit
	}
	return cfg, nil
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "y":
		return true
	}
	return false
}

// ParseIDList accepts Telegram ids separated by commas and/or whitespace.
func ParseIDList(s string) ([]int64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
