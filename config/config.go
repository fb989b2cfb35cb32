// Package config provides environment-variable-first configuration loading
// with optional YAML file and .env fallbacks for mail transports.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize matches the limit most relays apply.
const defaultMaxMessageSize = "25MiB"

// Config holds the complete configuration.
type Config struct {
	// Transport names the transport to use. Empty means auto-detect.
	Transport string `yaml:"transport"`

	// MaxMessageSize caps the rendered message, e.g. "10MB" or "25MiB".
	MaxMessageSize string `yaml:"max_message_size"`

	SMTP     SMTPConfig     `yaml:"smtp"`
	SES      SESConfig      `yaml:"ses"`
	Graph    GraphConfig    `yaml:"graph"`
	Sendmail SendmailConfig `yaml:"sendmail"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SMTPConfig holds SMTP relay configuration.
type SMTPConfig struct {
	Address     string        `yaml:"address"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Sender      string        `yaml:"sender"`
	HeloName    string        `yaml:"helo_name"`
	ImplicitTLS bool          `yaml:"implicit_tls"`
	Timeout     time.Duration `yaml:"timeout"`
	TLS         TLSConfig     `yaml:"tls"`
}

// TLSConfig holds client TLS settings for the SMTP relay.
type TLSConfig struct {
	// StartTLS requires the relay to upgrade the connection. Disable it for
	// relays that only speak plain text.
	StartTLS           bool   `yaml:"starttls"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// SendmailConfig holds the local sendmail binary location.
type SendmailConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
// Variables found in envFiles are added to the environment first, without
// replacing variables that are already set. Missing env files are skipped.
func Load(envFiles ...string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SESConfigured returns true if the SES region and sender are set.
// Credentials may come from the default AWS chain.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// SMTPConfigured returns true if a relay address is set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Address != ""
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// MessageSizeLimit returns MaxMessageSize in bytes. Zero means no limit.
func (c *Config) MessageSizeLimit() (int64, error) {
	if c.MaxMessageSize == "" || c.MaxMessageSize == "0" {
		return 0, nil
	}
	n, err := units.RAMInBytes(c.MaxMessageSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max message size %q: %w", c.MaxMessageSize, err)
	}
	return n, nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.MaxMessageSize = defaultMaxMessageSize
	c.SMTP.HeloName = "localhost"
	c.SMTP.Timeout = 30 * time.Second
	c.SMTP.TLS.StartTLS = true
	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = b
		return nil
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}
	str("MAX_MESSAGE_SIZE", &c.MaxMessageSize)

	str("SMTP_ADDRESS", &c.SMTP.Address)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_SENDER", &c.SMTP.Sender)
	str("SMTP_HELO_NAME", &c.SMTP.HeloName)
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_TIMEOUT: %w", err)
		}
		c.SMTP.Timeout = d
	}
	str("SMTP_TLS_CERT_FILE", &c.SMTP.TLS.CertFile)
	str("SMTP_TLS_KEY_FILE", &c.SMTP.TLS.KeyFile)
	str("SMTP_TLS_CA_FILE", &c.SMTP.TLS.CAFile)
	for name, dst := range map[string]*bool{
		"SMTP_IMPLICIT_TLS":             &c.SMTP.ImplicitTLS,
		"SMTP_STARTTLS":                 &c.SMTP.TLS.StartTLS,
		"SMTP_TLS_INSECURE_SKIP_VERIFY": &c.SMTP.TLS.InsecureSkipVerify,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}

	str("SES_REGION", &c.SES.Region)
	str("SES_ACCESS_KEY_ID", &c.SES.AccessKeyID)
	str("SES_SECRET_ACCESS_KEY", &c.SES.SecretAccessKey)
	str("SES_SENDER", &c.SES.Sender)

	str("GRAPH_TENANT_ID", &c.Graph.TenantID)
	str("GRAPH_CLIENT_ID", &c.Graph.ClientID)
	str("GRAPH_CLIENT_SECRET", &c.Graph.ClientSecret)
	str("GRAPH_SENDER", &c.Graph.Sender)

	str("SENDMAIL_PATH", &c.Sendmail.Path)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	return nil
}
