package configs

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tradeguard/internal/utils"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Broker    BrokerConfig    `yaml:"broker"`
	PriceFeed PriceFeedConfig `yaml:"price_feed"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

// DatabaseConfig holds position store configuration
type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // postgres | sqlite
	URL           string `yaml:"url"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Name          string `yaml:"name"`
	SQLitePath    string `yaml:"sqlite_path"`
	RunMigrations bool   `yaml:"run_migrations"`
}

// RedisConfig holds the pass lock configuration. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// BrokerConfig holds Dhan brokerage credentials
type BrokerConfig struct {
	ClientID        string `yaml:"client_id"`
	AccessToken     string `yaml:"access_token"`
	BaseURL         string `yaml:"base_url"`
	ExchangeSegment string `yaml:"exchange_segment"`
	DryRun          bool   `yaml:"dry_run"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// PriceFeedConfig holds the primary and fallback price endpoints
type PriceFeedConfig struct {
	PrimaryURL     string `yaml:"primary_url"`
	SecondaryURL   string `yaml:"secondary_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ScheduleConfig holds the poll interval and trading-hours window
type ScheduleConfig struct {
	StartTime     string `yaml:"start_time"`
	EndTime       string `yaml:"end_time"`
	CheckInterval int    `yaml:"check_interval"` // seconds
	Timezone      string `yaml:"timezone"`
}

// MonitorConfig holds trigger engine tuning
type MonitorConfig struct {
	LookbackDays      int           `yaml:"lookback_days"`
	ClosingGuard      bool          `yaml:"closing_guard"`
	StuckClosingAfter time.Duration `yaml:"stuck_closing_after"`
}

// TelegramConfig holds notification settings. Empty values disable it.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// AuthConfig holds admin API credentials
type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"`
	AdminUsername     string `yaml:"admin_username"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
}

// LoggingConfig configures the application logger
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: "8080",
			Env:  "development",
		},
		Database: DatabaseConfig{
			Driver:     "postgres",
			Port:       5432,
			SQLitePath: "tradeguard.db",
		},
		Redis: RedisConfig{
			LockTTL: 5 * time.Minute,
		},
		Broker: BrokerConfig{
			BaseURL:         "https://api.dhan.co",
			ExchangeSegment: "NSE_FNO",
			TimeoutSeconds:  15,
		},
		PriceFeed: PriceFeedConfig{
			TimeoutSeconds: 10,
		},
		Schedule: ScheduleConfig{
			StartTime:     "05:14:00",
			EndTime:       "15:30:00",
			CheckInterval: 100,
			Timezone:      utils.DefaultMarketTimezone,
		},
		Monitor: MonitorConfig{
			LookbackDays:      3,
			ClosingGuard:      true,
			StuckClosingAfter: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file at path,
// and environment variables, in increasing priority. The result is not
// validated; call Validate before use.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides overrides fields whose environment variable is set.
// Variable names follow the deployment's existing .env files.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Env = getEnv("GO_ENV", cfg.Server.Env)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.Host = getEnv("RDS_HOST", cfg.Database.Host)
	collect(setInt(&cfg.Database.Port, "RDS_PORT"))
	cfg.Database.User = getEnv("RDS_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("RDS_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("RDS_DATABASE", cfg.Database.Name)
	cfg.Database.SQLitePath = getEnv("SQLITE_PATH", cfg.Database.SQLitePath)
	collect(setBool(&cfg.Database.RunMigrations, "RUN_MIGRATIONS"))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	collect(setInt(&cfg.Redis.DB, "REDIS_DB"))
	collect(setDuration(&cfg.Redis.LockTTL, "PASS_LOCK_TTL"))

	cfg.Broker.ClientID = getEnv("DHAN_CLIENT_ID", cfg.Broker.ClientID)
	cfg.Broker.AccessToken = getEnv("DHAN_ACCESS_TOKEN", cfg.Broker.AccessToken)
	cfg.Broker.BaseURL = getEnv("DHAN_BASE_URL", cfg.Broker.BaseURL)
	cfg.Broker.ExchangeSegment = getEnv("EXCHANGE_SEGMENT", cfg.Broker.ExchangeSegment)
	collect(setBool(&cfg.Broker.DryRun, "DRY_RUN"))
	collect(setInt(&cfg.Broker.TimeoutSeconds, "DHAN_TIMEOUT_SECONDS"))

	cfg.PriceFeed.PrimaryURL = getEnv("PRICE_FEED_PRIMARY_URL", cfg.PriceFeed.PrimaryURL)
	cfg.PriceFeed.SecondaryURL = getEnv("PRICE_FEED_SECONDARY_URL", cfg.PriceFeed.SecondaryURL)
	collect(setInt(&cfg.PriceFeed.TimeoutSeconds, "PRICE_FEED_TIMEOUT_SECONDS"))

	cfg.Schedule.StartTime = getEnv("START_TIME", cfg.Schedule.StartTime)
	cfg.Schedule.EndTime = getEnv("END_TIME", cfg.Schedule.EndTime)
	collect(setInt(&cfg.Schedule.CheckInterval, "CHECK_INTERVAL"))
	cfg.Schedule.Timezone = getEnv("MARKET_TIMEZONE", cfg.Schedule.Timezone)

	collect(setInt(&cfg.Monitor.LookbackDays, "LOOKBACK_DAYS"))
	collect(setBool(&cfg.Monitor.ClosingGuard, "CLOSING_GUARD"))
	collect(setDuration(&cfg.Monitor.StuckClosingAfter, "STUCK_CLOSING_AFTER"))

	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			collect(fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		} else {
			cfg.Telegram.ChatID = id
		}
	}

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AdminUsername = getEnv("ADMIN_USERNAME", cfg.Auth.AdminUsername)
	cfg.Auth.AdminPasswordHash = getEnv("ADMIN_PASSWORD_HASH", cfg.Auth.AdminPasswordHash)

	return errors.Join(errs...)
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	var errs []error

	loc, err := utils.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		errs = append(errs, err)
	} else if _, err := utils.NewTradingWindow(c.Schedule.StartTime, c.Schedule.EndTime, loc); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	if c.Schedule.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("schedule: CHECK_INTERVAL must be positive, got %d", c.Schedule.CheckInterval))
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" && (c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "") {
			errs = append(errs, errors.New("database: DATABASE_URL or RDS_HOST, RDS_USER and RDS_DATABASE are required"))
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database: SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database: unknown driver %q", c.Database.Driver))
	}

	if !c.Broker.DryRun && (c.Broker.ClientID == "" || c.Broker.AccessToken == "") {
		errs = append(errs, errors.New("broker: DHAN_CLIENT_ID and DHAN_ACCESS_TOKEN are required unless DRY_RUN is set"))
	}
	if c.Broker.ExchangeSegment == "" {
		errs = append(errs, errors.New("broker: EXCHANGE_SEGMENT must not be empty"))
	}

	for name, raw := range map[string]string{
		"PRICE_FEED_PRIMARY_URL":   c.PriceFeed.PrimaryURL,
		"PRICE_FEED_SECONDARY_URL": c.PriceFeed.SecondaryURL,
	} {
		if raw == "" {
			errs = append(errs, fmt.Errorf("price feed: %s is required", name))
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("price feed: %s is not an absolute URL: %q", name, raw))
		}
	}

	if c.Monitor.LookbackDays < 0 {
		errs = append(errs, fmt.Errorf("monitor: LOOKBACK_DAYS must not be negative, got %d", c.Monitor.LookbackDays))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New("redis: PASS_LOCK_TTL must be positive"))
	}
	if c.Auth.AdminUsername != "" && (c.Auth.JWTSecret == "" || c.Auth.AdminPasswordHash == "") {
		errs = append(errs, errors.New("auth: JWT_SECRET and ADMIN_PASSWORD_HASH are required when ADMIN_USERNAME is set"))
	}

	return errors.Join(errs...)
}

// PostgresDSN returns DATABASE_URL or builds one from the RDS_* parts.
func (d DatabaseConfig) PostgresDSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	return u.String()
}

// Interval returns the poll interval as a duration.
func (s ScheduleConfig) Interval() time.Duration {
	return time.Duration(s.CheckInterval) * time.Second
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
