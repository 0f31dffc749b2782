package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "LENSMIRROR"
	defaultHTTPAddress   = "0.0.0.0:5645"
	defaultDatabasePath  = "lensmirror.db"
	defaultStoragePath   = "storage"
	defaultLogLevel      = "info"
	defaultMaxOpenConns  = 10
	defaultRemoteTimeout = 30
	defaultCacheTTL      = 30
	defaultCacheSweep    = 10
)

// AppConfig captures runtime configuration for the mirror server.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	MaxOpenConns        int
	StoragePath         string
	RemoteBaseURL       string
	RemoteTimeout       time.Duration
	EnableWebSource     bool
	IgnoreAltMedia      bool
	IgnoreImageSequence bool
	CacheTTL            time.Duration
	CacheSweepInterval  time.Duration
	LogLevel            string
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	configViper.SetDefault("storage.path", defaultStoragePath)
	configViper.SetDefault("remote.base_url", "")
	configViper.SetDefault("remote.timeout_seconds", defaultRemoteTimeout)
	configViper.SetDefault("search.enable_web_source", false)
	configViper.SetDefault("search.ignore_alt_media", false)
	configViper.SetDefault("search.ignore_image_sequence", false)
	configViper.SetDefault("cache.ttl_minutes", defaultCacheTTL)
	configViper.SetDefault("cache.sweep_minutes", defaultCacheSweep)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		MaxOpenConns:        configViper.GetInt("database.max_open_conns"),
		StoragePath:         configViper.GetString("storage.path"),
		RemoteBaseURL:       configViper.GetString("remote.base_url"),
		RemoteTimeout:       time.Duration(configViper.GetInt("remote.timeout_seconds")) * time.Second,
		EnableWebSource:     configViper.GetBool("search.enable_web_source"),
		IgnoreAltMedia:      configViper.GetBool("search.ignore_alt_media"),
		IgnoreImageSequence: configViper.GetBool("search.ignore_image_sequence"),
		CacheTTL:            time.Duration(configViper.GetInt("cache.ttl_minutes")) * time.Minute,
		CacheSweepInterval:  time.Duration(configViper.GetInt("cache.sweep_minutes")) * time.Minute,
		LogLevel:            configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if strings.TrimSpace(c.RemoteBaseURL) == "" {
		return fmt.Errorf("remote.base_url is required")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	return nil
}
