// Package config loads the service configuration from a single YAML
// file. Environment variables are expanded before parsing so secrets
// can stay out of the file, and unknown fields are rejected so typos
// fail fast at startup.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Speech   SpeechConfig   `yaml:"speech"`
	Storage  StorageConfig  `yaml:"storage"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Quota    QuotaConfig    `yaml:"quota"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PublicURL       string        `yaml:"public_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// TwilioConfig configures the Twilio WhatsApp channel.
type TwilioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	// VerifySignature can be disabled for local tunnels where the
	// public URL seen by Twilio differs from the request URL.
	VerifySignature bool `yaml:"verify_signature"`
}

// WhatsAppConfig configures the direct whatsmeow channel.
type WhatsAppConfig struct {
	Enabled bool `yaml:"enabled"`
	// SessionPath is the sqlite file holding the pairing session.
	SessionPath string `yaml:"session_path"`
}

// OpenAIConfig configures transcription, translation, and language
// detection.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	// TranscribeModels are tried in order until one succeeds.
	TranscribeModels []string      `yaml:"transcribe_models"`
	TranslateModel   string        `yaml:"translate_model"`
	Timeout          time.Duration `yaml:"timeout"`
}

// SpeechConfig configures Google Cloud text-to-speech.
type SpeechConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	// DefaultVoice is the last-resort synthesis candidate.
	DefaultVoice    string        `yaml:"default_voice"`
	DefaultLanguage string        `yaml:"default_language"`
	Timeout         time.Duration `yaml:"timeout"`
}

// StorageConfig configures the S3 bucket for synthesized audio.
type StorageConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	// PublicBaseURL overrides the URL prefix returned for uploads.
	PublicBaseURL string `yaml:"public_base_url"`
}

// StripeConfig configures the billing gateway.
type StripeConfig struct {
	APIKey         string `yaml:"api_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
	MonthlyPriceID string `yaml:"monthly_price_id"`
	AnnualPriceID  string `yaml:"annual_price_id"`
	LifetimePrice  int64  `yaml:"lifetime_price_cents"`
	SuccessURL     string `yaml:"success_url"`
	CancelURL      string `yaml:"cancel_url"`
}

// QuotaConfig configures the free usage allowance.
type QuotaConfig struct {
	FreeTranslations int `yaml:"free_translations"`
}

// Load reads, env-expands, and strictly decodes the config at path,
// then applies defaults and validates.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes already-expanded YAML bytes.
func Parse(data []byte) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime <= 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if len(c.OpenAI.TranscribeModels) == 0 {
		c.OpenAI.TranscribeModels = []string{"gpt-4o-transcribe", "whisper-1"}
	}
	if c.OpenAI.TranslateModel == "" {
		c.OpenAI.TranslateModel = "gpt-4o-mini"
	}
	if c.OpenAI.Timeout <= 0 {
		c.OpenAI.Timeout = 60 * time.Second
	}
	if c.Speech.DefaultVoice == "" {
		c.Speech.DefaultVoice = "en-US-Wavenet-F"
	}
	if c.Speech.DefaultLanguage == "" {
		c.Speech.DefaultLanguage = "en-US"
	}
	if c.Speech.Timeout <= 0 {
		c.Speech.Timeout = 30 * time.Second
	}
	if c.WhatsApp.SessionPath == "" {
		c.WhatsApp.SessionPath = "whatsapp-session.db"
	}
	if c.Quota.FreeTranslations <= 0 {
		c.Quota.FreeTranslations = 5
	}
	if c.Stripe.LifetimePrice <= 0 {
		c.Stripe.LifetimePrice = 9900
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Twilio.Enabled {
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
			return fmt.Errorf("twilio.account_sid and twilio.auth_token are required when twilio is enabled")
		}
		if c.Twilio.FromNumber == "" {
			return fmt.Errorf("twilio.from_number is required when twilio is enabled")
		}
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Stripe.APIKey != "" {
		if c.Stripe.MonthlyPriceID == "" || c.Stripe.AnnualPriceID == "" {
			return fmt.Errorf("stripe.monthly_price_id and stripe.annual_price_id are required when stripe is configured")
		}
	}
	return nil
}
