// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server, CLI and background sweeper read.
type Config struct {
	Port   string
	AppEnv string

	Database DatabaseConfig

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	Currency              string
	GatewayTimeout        time.Duration

	JWTAccessSecret string

	ResendAPIKey string
	EmailFrom    string
	FrontendURL  string

	RedisURL string

	ReminderInterval   time.Duration
	ReminderThreshold  time.Duration
	ReminderStartDelay time.Duration
	ReminderBatch      int

	AutoMigrate bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// DSN returns DATABASE_URL when set, otherwise a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "symposium")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 20)

	v.SetDefault("PAYMENT_CURRENCY", "INR")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")

	v.SetDefault("EMAIL_FROM", "Symposium <noreply@symposium.local>")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")

	v.SetDefault("REMINDER_INTERVAL", "5m")
	v.SetDefault("REMINDER_THRESHOLD", "30m")
	v.SetDefault("REMINDER_START_DELAY", "10s")
	v.SetDefault("REMINDER_BATCH", 100)

	v.SetDefault("AUTO_MIGRATE", false)
}

// Load reads .env (when present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] no .env file found, using process environment")
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Port:   v.GetString("PORT"),
		AppEnv: v.GetString("APP_ENV"),
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
		},
		RazorpayKeyID:         v.GetString("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     v.GetString("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: v.GetString("RAZORPAY_WEBHOOK_SECRET"),
		Currency:              strings.ToUpper(v.GetString("PAYMENT_CURRENCY")),
		GatewayTimeout:        v.GetDuration("GATEWAY_TIMEOUT"),
		JWTAccessSecret:       v.GetString("JWT_ACCESS_SECRET"),
		ResendAPIKey:          v.GetString("RESEND_API_KEY"),
		EmailFrom:             v.GetString("EMAIL_FROM"),
		FrontendURL:           strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		RedisURL:              v.GetString("REDIS_URL"),
		ReminderInterval:      v.GetDuration("REMINDER_INTERVAL"),
		ReminderThreshold:     v.GetDuration("REMINDER_THRESHOLD"),
		ReminderStartDelay:    v.GetDuration("REMINDER_START_DELAY"),
		ReminderBatch:         v.GetInt("REMINDER_BATCH"),
		AutoMigrate:           v.GetBool("AUTO_MIGRATE"),
	}
}

// Validate reports every setting the HTTP server cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.RazorpayKeyID == "" {
		missing = append(missing, "RAZORPAY_KEY_ID")
	}
	if c.RazorpayKeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	if c.RazorpayWebhookSecret == "" {
		missing = append(missing, "RAZORPAY_WEBHOOK_SECRET")
	}
	if len(c.JWTAccessSecret) < 32 {
		missing = append(missing, "JWT_ACCESS_SECRET (min 32 chars)")
	}
	// Without it CORS falls back to "*" and email links have no host.
	if c.IsProduction() && c.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL (required in production)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	return nil
}

// IsProduction returns true when APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
