package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string         `yaml:"env"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Auth     AuthConfig     `yaml:"auth"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
}

type HTTPConfig struct {
	Address         string `yaml:"address"`
	SwaggerDir      string `yaml:"swagger_dir"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Name           string `yaml:"name"`
	SSLMode        string `yaml:"ssl_mode"`
	QueryTimeoutMs int    `yaml:"query_timeout_ms"`
	AutoMigrate    bool   `yaml:"auto_migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func (d DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(d.QueryTimeoutMs) * time.Millisecond
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingTopic       string   `yaml:"booking_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type BookingConfig struct {
	HoldTTLMinutes        int    `yaml:"hold_ttl_minutes"`
	LeadTimeHours         int    `yaml:"lead_time_hours"`
	SlotMinutes           int    `yaml:"slot_minutes"`
	Timezone              string `yaml:"timezone"`
	DefaultWindowStart    string `yaml:"default_window_start"`
	DefaultWindowEnd      string `yaml:"default_window_end"`
	DefaultPrice          int64  `yaml:"default_price"`
	InitialStatus         string `yaml:"initial_status"`
	SlotsCacheTTLSeconds  int    `yaml:"slots_cache_ttl_seconds"`
	IdempotencyTTLMinutes int    `yaml:"idempotency_ttl_minutes"`
}

func (b BookingConfig) HoldTTL() time.Duration {
	return time.Duration(b.HoldTTLMinutes) * time.Minute
}

func (b BookingConfig) LeadTime() time.Duration {
	return time.Duration(b.LeadTimeHours) * time.Hour
}

func (b BookingConfig) SlotLength() time.Duration {
	return time.Duration(b.SlotMinutes) * time.Minute
}

func (b BookingConfig) SlotsCacheTTL() time.Duration {
	return time.Duration(b.SlotsCacheTTLSeconds) * time.Second
}

func (b BookingConfig) IdempotencyTTL() time.Duration {
	return time.Duration(b.IdempotencyTTLMinutes) * time.Minute
}

func (b BookingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(b.Timezone)
}

type WorkerConfig struct {
	ExpirationSweepSeconds int `yaml:"expiration_sweep_seconds"`
}

// LoadConfig reads the YAML file at path. ${VAR} references are expanded
// from the environment, which is first populated from .env if present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ShutdownSeconds == 0 {
		c.HTTP.ShutdownSeconds = 5
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.QueryTimeoutMs == 0 {
		c.Database.QueryTimeoutMs = 800
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "mentorbooking-notifier"
	}
	b := &c.Booking
	if b.HoldTTLMinutes == 0 {
		b.HoldTTLMinutes = 15
	}
	if b.LeadTimeHours == 0 {
		b.LeadTimeHours = 48
	}
	if b.SlotMinutes == 0 {
		b.SlotMinutes = 30
	}
	if b.Timezone == "" {
		b.Timezone = "UTC"
	}
	if b.DefaultWindowStart == "" {
		b.DefaultWindowStart = "08:00"
	}
	if b.DefaultWindowEnd == "" {
		b.DefaultWindowEnd = "22:00"
	}
	if b.InitialStatus == "" {
		b.InitialStatus = "CONFIRMED"
	}
	if b.SlotsCacheTTLSeconds == 0 {
		b.SlotsCacheTTLSeconds = 30
	}
	if b.IdempotencyTTLMinutes == 0 {
		b.IdempotencyTTLMinutes = 24 * 60
	}
	if c.Worker.ExpirationSweepSeconds == 0 {
		c.Worker.ExpirationSweepSeconds = 60
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Booking.InitialStatus != "PENDING" && c.Booking.InitialStatus != "CONFIRMED" {
		return fmt.Errorf("booking.initial_status must be PENDING or CONFIRMED, got %q", c.Booking.InitialStatus)
	}
	if _, err := c.Booking.Location(); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	if _, err := ParseClock(c.Booking.DefaultWindowStart); err != nil {
		return fmt.Errorf("booking.default_window_start: %w", err)
	}
	if _, err := ParseClock(c.Booking.DefaultWindowEnd); err != nil {
		return fmt.Errorf("booking.default_window_end: %w", err)
	}
	if c.Booking.HoldTTLMinutes < 0 {
		return fmt.Errorf("booking.hold_ttl_minutes must be positive, got %d", c.Booking.HoldTTLMinutes)
	}
	if c.Worker.ExpirationSweepSeconds < 0 {
		return fmt.Errorf("worker.expiration_sweep_seconds must be positive, got %d", c.Worker.ExpirationSweepSeconds)
	}
	return nil
}

// ParseClock converts "HH:MM" into minutes from midnight. "24:00" is
// accepted as the end of the day.
func ParseClock(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
