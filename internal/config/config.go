package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "LINKSHELF"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = DatabaseDriverSQLite
	defaultDatabasePath      = "linkshelf.db"
	defaultLogLevel          = "info"
	defaultSessionIssuer     = "linkshelf-identity"
	defaultSessionCookieName = "__session"
	defaultMetadataTimeout   = 15 * time.Second
	defaultMetadataUserAgent = "linkshelf-metadata/1.0"
)

const (
	// DatabaseDriverSQLite selects the embedded SQLite store.
	DatabaseDriverSQLite = "sqlite"
	// DatabaseDriverPostgres selects a PostgreSQL store addressed by database.dsn.
	DatabaseDriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabaseDriver       string
	DatabasePath         string
	DatabaseDSN          string
	LogLevel             string
	WebhookSecret        string
	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	MetadataTimeout      time.Duration
	MetadataUserAgent    string
}

// SessionAuthEnabled reports whether write routes require an identity session.
func (c AppConfig) SessionAuthEnabled() bool {
	return strings.TrimSpace(c.SessionSigningSecret) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("webhook.secret", "")
	configViper.SetDefault("auth.session_signing_secret", "")
	configViper.SetDefault("auth.session_issuer", defaultSessionIssuer)
	configViper.SetDefault("auth.session_cookie_name", defaultSessionCookieName)
	configViper.SetDefault("metadata.timeout", defaultMetadataTimeout)
	configViper.SetDefault("metadata.user_agent", defaultMetadataUserAgent)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabaseDriver:       strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:         configViper.GetString("database.path"),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		LogLevel:             configViper.GetString("log.level"),
		WebhookSecret:        configViper.GetString("webhook.secret"),
		SessionSigningSecret: configViper.GetString("auth.session_signing_secret"),
		SessionIssuer:        configViper.GetString("auth.session_issuer"),
		SessionCookieName:    configViper.GetString("auth.session_cookie_name"),
		MetadataTimeout:      configViper.GetDuration("metadata.timeout"),
		MetadataUserAgent:    configViper.GetString("metadata.user_agent"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DatabaseDriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.SessionAuthEnabled() {
		if strings.TrimSpace(c.SessionIssuer) == "" {
			return fmt.Errorf("auth.session_issuer is required")
		}
		if strings.TrimSpace(c.SessionCookieName) == "" {
			return fmt.Errorf("auth.session_cookie_name is required")
		}
	}
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("metadata.timeout must be positive")
	}
	return nil
}
