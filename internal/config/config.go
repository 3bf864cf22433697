package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AWS      AWSConfig      `yaml:"aws"`
	JWT      JWTConfig      `yaml:"jwt"`
	Auth     AuthConfig     `yaml:"auth"`
	Push     PushConfig     `yaml:"push"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds S3 configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`   // custom endpoint for S3-compatible stores
	PublicURL string `yaml:"public_url"` // base URL objects are served from
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// AuthConfig holds the access gate configuration.
type AuthConfig struct {
	// AllowedEmails restricts sign-in to these addresses (case-insensitive).
	// An empty list disables the gate.
	AllowedEmails []string `yaml:"allowed_emails"`
	// InactivityTimeout forces re-authentication after this much idle time.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
}

// PushConfig holds push messaging configuration.
type PushConfig struct {
	FirebaseCredentialsFile string `yaml:"firebase_credentials_file"`
	APNs                    struct {
		CertFile string `yaml:"cert_file"`
		CertPass string `yaml:"cert_pass"`
		Topic    string `yaml:"topic"`
		Prod     bool   `yaml:"prod"`
	} `yaml:"apns"`
}

// ScheduleConfig holds the scheduled fan-out configuration. All jobs run in
// one fixed timezone.
type ScheduleConfig struct {
	Timezone         string        `yaml:"timezone"`
	ReminderHour     int           `yaml:"reminder_hour"`
	ReminderInterval time.Duration `yaml:"reminder_interval"`
}

// AdminConfig holds the out-of-band authoring token.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Auth.InactivityTimeout <= 0 {
		c.Auth.InactivityTimeout = 5 * time.Minute
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Europe/Rome"
	}
	if c.Schedule.ReminderHour == 0 {
		c.Schedule.ReminderHour = 13
	}
	if c.Schedule.ReminderInterval <= 0 {
		c.Schedule.ReminderInterval = 3 * time.Hour
	}
}

// Location resolves the configured scheduler timezone.
func (c *ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
