// Package config содержит логику чтения конфигурации сервиса бронирования.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var prefixPattern = regexp.MustCompile(`^[A-Z0-9]+$`)

// Config содержит параметры конфигурации сервиса бронирования.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	RedisAddr    string `env:"REDIS_ADDR"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE"`
	JWTSecret    string `env:"JWT_SECRET"`
	LogLevel     string `env:"LOG_LEVEL"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL"`
	CancelWindow  time.Duration `env:"CANCEL_WINDOW"`
	MaxUnits      int           `env:"MAX_UNITS"`
	CodePrefix    string        `env:"CODE_PREFIX"`
	CodeAttempts  int           `env:"CODE_ATTEMPTS"`
	AutoConfirm   bool          `env:"AUTO_CONFIRM"`
	CascadeCancel bool          `env:"CASCADE_CANCEL"`

	BookingRateLimit float64 `env:"BOOKING_RATE_LIMIT"`
	BookingRateBurst int     `env:"BOOKING_RATE_BURST"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами; файл .env, если он есть,
// дополняет окружение, не перезаписывая уже заданные переменные.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.RedisAddr, "r", "", "redis address for the shared seat ledger")
	flag.StringVar(&cfg.AMQPURL, "q", "", "AMQP broker URL for domain events")
	flag.StringVar(&cfg.AMQPExchange, "exchange", "booking.events", "AMQP exchange for domain events")
	flag.StringVar(&cfg.JWTSecret, "s", "", "HMAC secret for bearer tokens")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.DurationVar(&cfg.SweepInterval, "i", time.Hour, "interval between lifecycle sweeps")
	flag.DurationVar(&cfg.CancelWindow, "cancel-window", 48*time.Hour, "minimal time before start to cancel a booking")
	flag.IntVar(&cfg.MaxUnits, "max-units", 10, "maximal units per booking")
	flag.StringVar(&cfg.CodePrefix, "code-prefix", "EVT", "booking code prefix")
	flag.IntVar(&cfg.CodeAttempts, "code-attempts", 10, "booking code candidates tried per booking")
	flag.BoolVar(&cfg.AutoConfirm, "auto-confirm", false, "create bookings already confirmed")
	flag.BoolVar(&cfg.CascadeCancel, "cascade-cancel", false, "cancel bookings together with their resource")
	flag.Float64Var(&cfg.BookingRateLimit, "rate", 5, "booking requests per second per user, 0 disables the limit")
	flag.IntVar(&cfg.BookingRateBurst, "burst", 10, "booking request burst per user")

	flag.Parse()

	// Незаданные переменные окружения оставляют значения флагов.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет согласованность параметров.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.MaxUnits < 1 {
		errs = append(errs, fmt.Errorf("max units must be positive, got %d", c.MaxUnits))
	}
	if !prefixPattern.MatchString(c.CodePrefix) {
		errs = append(errs, fmt.Errorf("code prefix %q must consist of upper-case letters and digits", c.CodePrefix))
	}
	if c.CodeAttempts < 1 {
		errs = append(errs, fmt.Errorf("code attempts must be positive, got %d", c.CodeAttempts))
	}
	if c.CancelWindow < 0 {
		errs = append(errs, errors.New("cancel window must not be negative"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.BookingRateLimit < 0 || c.BookingRateBurst < 1 {
		errs = append(errs, errors.New("booking rate limit must not be negative and burst must be positive"))
	}
	return errors.Join(errs...)
}
