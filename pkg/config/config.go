package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the publisher.
type Config struct {
	Log      LogConfig
	Registry RegistryConfig
	Publish  PublishConfig
	Build    BuildConfig
	History  HistoryConfig
	Events   EventsConfig
	Verify   VerifyConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// RegistryConfig holds registry endpoint and credential configuration.
// Credentials are resolved non-interactively from the named environment
// variable; a missing secret fails the publish instead of prompting.
type RegistryConfig struct {
	Endpoint        string
	Namespace       string
	Principal       string
	CredentialVar   string
	SessionValidity time.Duration
	ClientType      string
}

// PublishConfig holds publish executor tuning.
type PublishConfig struct {
	MaxAttempts    int
	ConcurrencyCap int
	PushTimeout    time.Duration
}

// BuildConfig holds image build configuration.
type BuildConfig struct {
	AppName         string
	PostgresVersion string
	DatabaseName    string
	Timeout         time.Duration
}

// HistoryConfig holds local publish history configuration.
type HistoryConfig struct {
	Enabled bool
	Path    string
}

// EventsConfig holds the optional Redis event sink configuration.
type EventsConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// VerifyConfig holds the connection parameters for seed verification
// against a running container of the published image.
type VerifyConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and env vars only
	}

	viper.SetEnvPrefix("PUBLISHER")
	viper.AutomaticEnv()

	config := &Config{
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		Registry: RegistryConfig{
			Endpoint:        viper.GetString("registry.endpoint"),
			Namespace:       viper.GetString("registry.namespace"),
			Principal:       viper.GetString("registry.principal"),
			CredentialVar:   viper.GetString("registry.credential_var"),
			SessionValidity: viper.GetDuration("registry.session_validity"),
			ClientType:      viper.GetString("registry.client_type"),
		},
		Publish: PublishConfig{
			MaxAttempts:    viper.GetInt("publish.max_attempts"),
			ConcurrencyCap: viper.GetInt("publish.concurrency_cap"),
			PushTimeout:    viper.GetDuration("publish.push_timeout"),
		},
		Build: BuildConfig{
			AppName:         viper.GetString("build.app_name"),
			PostgresVersion: viper.GetString("build.postgres_version"),
			DatabaseName:    viper.GetString("build.database_name"),
			Timeout:         viper.GetDuration("build.timeout"),
		},
		History: HistoryConfig{
			Enabled: viper.GetBool("history.enabled"),
			Path:    viper.GetString("history.path"),
		},
		Events: EventsConfig{
			Enabled:  viper.GetBool("events.enabled"),
			Addr:     viper.GetString("events.addr"),
			Password: viper.GetString("events.password"),
			DB:       viper.GetInt("events.db"),
		},
		Verify: VerifyConfig{
			Host:     viper.GetString("verify.host"),
			Port:     viper.GetInt("verify.port"),
			User:     viper.GetString("verify.user"),
			Password: viper.GetString("verify.password"),
			DBName:   viper.GetString("verify.dbname"),
			SSLMode:  viper.GetString("verify.sslmode"),
		},
	}

	return config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	// Logging defaults
	viper.SetDefault("log.level", "info")

	// Registry defaults
	viper.SetDefault("registry.endpoint", "docker.io")
	viper.SetDefault("registry.namespace", "")
	viper.SetDefault("registry.principal", "")
	viper.SetDefault("registry.credential_var", "REGISTRY_TOKEN")
	viper.SetDefault("registry.session_validity", 30*time.Minute)
	viper.SetDefault("registry.client_type", "docker")

	// Publish defaults
	viper.SetDefault("publish.max_attempts", 3)
	viper.SetDefault("publish.concurrency_cap", 4)
	viper.SetDefault("publish.push_timeout", 5*time.Minute)

	// Build defaults
	viper.SetDefault("build.app_name", "catsdb")
	viper.SetDefault("build.postgres_version", "16-alpine")
	viper.SetDefault("build.database_name", "catsdb")
	viper.SetDefault("build.timeout", 15*time.Minute)

	// History defaults
	viper.SetDefault("history.enabled", true)
	viper.SetDefault("history.path", "publisher-history.db")

	// Events defaults
	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.addr", "localhost:6379")
	viper.SetDefault("events.password", "")
	viper.SetDefault("events.db", 0)

	// Verify defaults
	viper.SetDefault("verify.host", "localhost")
	viper.SetDefault("verify.port", 5432)
	viper.SetDefault("verify.user", "postgres")
	viper.SetDefault("verify.password", "password")
	viper.SetDefault("verify.dbname", "catsdb")
	viper.SetDefault("verify.sslmode", "disable")
}

// GetVerifyDSN returns the PostgreSQL connection string for verification.
func (c *Config) GetVerifyDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Verify.Host,
		c.Verify.Port,
		c.Verify.User,
		c.Verify.Password,
		c.Verify.DBName,
		c.Verify.SSLMode,
	)
}
