package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	RemoteURL   string `env:"REMOTE_URL,required"`
	RemoteToken string `env:"REMOTE_TOKEN"`

	RecordingsDir string `env:"RECORDINGS_DIR" envDefault:"./recordings"`
	DataDir       string `env:"DATA_DIR" envDefault:"./data"`

	CaptureBackend string `env:"CAPTURE_BACKEND" envDefault:"pulse"`
	CaptureInput   string `env:"CAPTURE_INPUT" envDefault:"default"`
	CaptureFormat  string `env:"CAPTURE_FORMAT" envDefault:"m4a"`

	UploadTimeout  time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"60s"`
	UploadAttempts int           `env:"UPLOAD_ATTEMPTS" envDefault:"3"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	PollDeadline   time.Duration `env:"POLL_DEADLINE" envDefault:"30m"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8090"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"lecture-agent"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"lecture-agent"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	ArchiveBucket    string `env:"ARCHIVE_S3_BUCKET"`
	ArchiveRegion    string `env:"ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	ArchiveEndpoint  string `env:"ARCHIVE_S3_ENDPOINT"`
	ArchiveAccessKey string `env:"ARCHIVE_S3_ACCESS_KEY"`
	ArchiveSecretKey string `env:"ARCHIVE_S3_SECRET_KEY"`
	ArchivePrefix    string `env:"ARCHIVE_S3_PREFIX"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// ArchiveEnabled reports whether S3 archival of completed recordings is configured.
func (c *Config) ArchiveEnabled() bool { return c.ArchiveBucket != "" }

// MQTTEnabled reports whether event publishing to an MQTT broker is configured.
func (c *Config) MQTTEnabled() bool { return c.MQTTBrokerURL != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	RemoteURL     string
	RecordingsDir string
	DataDir       string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.RemoteURL != "" {
		cfg.RemoteURL = overrides.RemoteURL
	}
	if overrides.RecordingsDir != "" {
		cfg.RecordingsDir = overrides.RecordingsDir
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}

	return cfg, nil
}
