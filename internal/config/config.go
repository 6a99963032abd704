// ABOUTME: Configuration loading and parsing for audit-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding field is left empty.
const (
	DefaultHTTPAddr       = "0.0.0.0:8001"
	DefaultRequestTimeout = 60 * time.Second
	DefaultSettleDelay    = 3 * time.Second
	DefaultPollTimeout    = 3 * time.Hour
	DefaultMaxRequests    = 20
	DefaultRegion         = "us-east-1"
)

// Config represents the complete audit-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Backend     BackendConfig     `yaml:"backend" toml:"backend"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Polling     PollingConfig     `yaml:"polling" toml:"polling"`
	LegalDocs   LegalDocsConfig   `yaml:"legaldocs" toml:"legaldocs"`
	MCP         MCPConfig         `yaml:"mcp" toml:"mcp"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// BackendConfig holds the endpoints of the session and audit APIs
type BackendConfig struct {
	// AuthURL serves /token and /sessions/*.
	AuthURL string `yaml:"auth_url" toml:"auth_url"`
	// APIURL serves /files/*, /ingest_data and /task/status.
	APIURL     string `yaml:"api_url" toml:"api_url"`
	BucketName string `yaml:"bucket_name" toml:"bucket_name"`
	Region     string `yaml:"region" toml:"region"`

	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// CredentialsConfig holds the static identity used against the backend
type CredentialsConfig struct {
	Username  string `yaml:"username" toml:"username"`
	Password  string `yaml:"password" toml:"password"`
	CompanyID int64  `yaml:"company_id" toml:"company_id"`
	UserID    int64  `yaml:"user_id" toml:"user_id"`
}

// PollingConfig holds task status polling limits
type PollingConfig struct {
	SettleDelay time.Duration `yaml:"-" toml:"-"`
	Timeout     time.Duration `yaml:"-" toml:"-"`
	MaxRequests int           `yaml:"max_requests" toml:"max_requests"`

	// Raw string values for unmarshaling
	SettleDelayRaw string `yaml:"settle_delay" toml:"settle_delay"`
	TimeoutRaw     string `yaml:"timeout" toml:"timeout"`
}

// LegalDocsConfig holds the document-generation service endpoint
type LegalDocsConfig struct {
	URL string `yaml:"url" toml:"url"`
}

// MCPConfig holds MCP transport options
type MCPConfig struct {
	// Stateless disables Mcp-Session-Id tracking.
	Stateless bool `yaml:"stateless" toml:"stateless"`
}

// AuthConfig holds inbound authentication configuration
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret" toml:"jwt_secret"`
	RequireAuth bool          `yaml:"require_auth" toml:"require_auth"`
	Tokens      []StaticToken `yaml:"tokens" toml:"tokens"`
}

// StaticToken maps a pre-shared MCP token to capabilities
type StaticToken struct {
	Token        string   `yaml:"token" toml:"token"`
	Capabilities []string `yaml:"capabilities" toml:"capabilities"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Backend.RequestTimeout == 0 {
		c.Backend.RequestTimeout = DefaultRequestTimeout
	}
	if c.Backend.Region == "" {
		c.Backend.Region = DefaultRegion
	}
	if c.Polling.SettleDelay == 0 {
		c.Polling.SettleDelay = DefaultSettleDelay
	}
	if c.Polling.Timeout == 0 {
		c.Polling.Timeout = DefaultPollTimeout
	}
	if c.Polling.MaxRequests == 0 {
		c.Polling.MaxRequests = DefaultMaxRequests
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validateURL("backend.auth_url", c.Backend.AuthURL); err != nil {
		return err
	}
	if err := validateURL("backend.api_url", c.Backend.APIURL); err != nil {
		return err
	}
	if c.Backend.BucketName == "" {
		return fmt.Errorf("backend.bucket_name is required")
	}
	if c.Credentials.Username == "" {
		return fmt.Errorf("credentials.username is required")
	}
	if c.Credentials.Password == "" {
		return fmt.Errorf("credentials.password is required")
	}
	if c.Credentials.CompanyID <= 0 {
		return fmt.Errorf("credentials.company_id must be positive")
	}
	if c.Credentials.UserID <= 0 {
		return fmt.Errorf("credentials.user_id must be positive")
	}
	if c.LegalDocs.URL != "" {
		if err := validateURL("legaldocs.url", c.LegalDocs.URL); err != nil {
			return err
		}
	}
	if c.Polling.MaxRequests < 1 {
		return fmt.Errorf("polling.max_requests must be at least 1")
	}
	if c.Auth.RequireAuth && c.Auth.JWTSecret == "" && len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("auth.require_auth needs auth.jwt_secret or auth.tokens")
	}
	for i, t := range c.Auth.Tokens {
		if t.Token == "" {
			return fmt.Errorf("auth.tokens[%d].token is required", i)
		}
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.RequestTimeoutRaw != "" {
		cfg.Backend.RequestTimeout, err = time.ParseDuration(cfg.Backend.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Backend.RequestTimeoutRaw, err)
		}
	}

	if cfg.Polling.SettleDelayRaw != "" {
		cfg.Polling.SettleDelay, err = time.ParseDuration(cfg.Polling.SettleDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing settle_delay %q: %w", cfg.Polling.SettleDelayRaw, err)
		}
	}

	if cfg.Polling.TimeoutRaw != "" {
		cfg.Polling.Timeout, err = time.ParseDuration(cfg.Polling.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Polling.TimeoutRaw, err)
		}
	}

	return nil
}
