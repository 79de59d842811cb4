package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var (
	ErrInvalidAttempts     = errors.New("invalid OCR_MAX_ATTEMPTS: must be positive")
	ErrInvalidTimeout      = errors.New("invalid timeout: must be positive")
	ErrInvalidDelay        = errors.New("invalid delay: must be non-negative")
	ErrInvalidScheduleMode = errors.New("invalid SCHEDULE_MODE: must be cron or interval")
)

// Config holds the application configuration.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	PortalBaseURL    string        `mapstructure:"PORTAL_BASE_URL"`
	CityCode         string        `mapstructure:"CITY_CODE"`
	OCREndpoint      string        `mapstructure:"OCR_ENDPOINT"`
	OCRTimeout       time.Duration `mapstructure:"OCR_TIMEOUT"`
	OCRMaxAttempts   int           `mapstructure:"OCR_MAX_ATTEMPTS"`
	PageDelay        time.Duration `mapstructure:"PAGE_DELAY"`
	DistrictDelay    time.Duration `mapstructure:"DISTRICT_DELAY"`
	NegotiateTimeout time.Duration `mapstructure:"NEGOTIATE_TIMEOUT"`
	QueryTimeout     time.Duration `mapstructure:"QUERY_TIMEOUT"`
	CaptchaTimeout   time.Duration `mapstructure:"CAPTCHA_TIMEOUT"`
	BrowserWarmup    bool          `mapstructure:"BROWSER_WARMUP"`
	BrowserTimeout   time.Duration `mapstructure:"BROWSER_TIMEOUT"`
	PortalProxies    []string      `mapstructure:"PORTAL_PROXIES"`
	PortalUserAgents []string      `mapstructure:"PORTAL_USER_AGENTS"`

	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	RunLockTTL    time.Duration `mapstructure:"RUN_LOCK_TTL"`
	JobPollEvery  time.Duration `mapstructure:"JOB_POLL_INTERVAL"`

	EnableScheduler       bool   `mapstructure:"ENABLE_SCHEDULER"`
	ScheduleMode          string `mapstructure:"SCHEDULE_MODE"`
	ScheduleHour          string `mapstructure:"SCHEDULE_HOUR"`
	ScheduleMinute        string `mapstructure:"SCHEDULE_MINUTE"`
	ScheduleIntervalHours int    `mapstructure:"SCHEDULE_INTERVAL_HOURS"`
	ScheduleTimezone      string `mapstructure:"SCHEDULE_TIMEZONE"`
	ScheduleStartDate     string `mapstructure:"SCHEDULE_START_DATE"`
	ScheduleEndDate       string `mapstructure:"SCHEDULE_END_DATE"`
	ScheduleRegisterKind  string `mapstructure:"SCHEDULE_REGISTER_KIND"`

	NotificationEnabled bool   `mapstructure:"NOTIFICATION_ENABLED"`
	SMTPHost            string `mapstructure:"SMTP_HOST"`
	SMTPPort            int    `mapstructure:"SMTP_PORT"`
	SMTPUser            string `mapstructure:"SMTP_USER"`
	SMTPPassword        string `mapstructure:"SMTP_PASSWORD"`
}

var defaults = map[string]any{
	"SERVER_PORT": "8000",
	"LOG_LEVEL":   "info",

	"PORTAL_BASE_URL":   "https://www.ris.gov.tw",
	"CITY_CODE":         "63000000",
	"OCR_ENDPOINT":      "http://localhost:9898/ocr/b",
	"OCR_TIMEOUT":       10 * time.Second,
	"OCR_MAX_ATTEMPTS":  10,
	"PAGE_DELAY":        300 * time.Millisecond,
	"DISTRICT_DELAY":    500 * time.Millisecond,
	"NEGOTIATE_TIMEOUT": 15 * time.Second,
	"QUERY_TIMEOUT":     30 * time.Second,
	"CAPTCHA_TIMEOUT":   15 * time.Second,
	"BROWSER_WARMUP":    false,
	"BROWSER_TIMEOUT":   45 * time.Second,

	"PORTAL_PROXIES":     []string{},
	"PORTAL_USER_AGENTS": []string{},

	"POSTGRES_HOST":     "localhost",
	"POSTGRES_PORT":     "5432",
	"POSTGRES_USER":     "user",
	"POSTGRES_PASSWORD": "password",
	"POSTGRES_DB":       "household",

	"REDIS_ADDR":        "localhost:6379",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,
	"RUN_LOCK_TTL":      30 * time.Minute,
	"JOB_POLL_INTERVAL": 5 * time.Second,

	"ENABLE_SCHEDULER":        true,
	"SCHEDULE_MODE":           "cron",
	"SCHEDULE_HOUR":           "9",
	"SCHEDULE_MINUTE":         "0",
	"SCHEDULE_INTERVAL_HOURS": 1,
	"SCHEDULE_TIMEZONE":       "Asia/Taipei",
	"SCHEDULE_START_DATE":     "114-09-01",
	"SCHEDULE_END_DATE":       "114-11-30",
	"SCHEDULE_REGISTER_KIND":  "1",

	"NOTIFICATION_ENABLED": false,
	"SMTP_HOST":            "smtp.gmail.com",
	"SMTP_PORT":            587,
	"SMTP_USER":            "",
	"SMTP_PASSWORD":        "",
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// The file is optional; production runs on environment variables alone.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the knobs the crawler engine depends on.
func (c *Config) Validate() error {
	if c.OCRMaxAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.NegotiateTimeout <= 0 || c.QueryTimeout <= 0 || c.CaptchaTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.PageDelay < 0 || c.DistrictDelay < 0 {
		return ErrInvalidDelay
	}
	if c.ScheduleMode != "cron" && c.ScheduleMode != "interval" {
		return ErrInvalidScheduleMode
	}
	return nil
}

// PostgresDSN builds the pgx connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}
