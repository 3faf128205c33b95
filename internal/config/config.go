package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variables before they are
	// mapped onto config keys (STATUSLOG_DATABASE_HOST -> database.host).
	EnvPrefix = "STATUSLOG_"

	ServiceName    = "statuslog"
	ServiceVersion = "1.0.0"
)

type Config struct {
	Server        ServerConfig        `koanf:"server" validate:"required"`
	Database      DatabaseConfig      `koanf:"database" validate:"required"`
	Remote        RemoteConfig        `koanf:"remote"`
	Observability ObservabilityConfig `koanf:"observability"`
}

type ServerConfig struct {
	Port         string `koanf:"port" validate:"required"`
	ReadTimeout  int    `koanf:"readtimeout" validate:"min=1"`
	WriteTimeout int    `koanf:"writetimeout" validate:"min=1"`
	IdleTimeout  int    `koanf:"idletimeout" validate:"min=1"`
	CORSOrigins  string `koanf:"corsorigins"`
}

// DatabaseConfig carries credentials plus everything the candidate
// resolver needs: the public host (universal fallback), an optional
// private IP, and an optional Cloud SQL proxy connection name which
// redirects connections to the local proxy on loopback.
type DatabaseConfig struct {
	Host         string `koanf:"host" validate:"required"`
	Port         int    `koanf:"port" validate:"required"`
	User         string `koanf:"user" validate:"required"`
	Password     string `koanf:"password"`
	Name         string `koanf:"name" validate:"required"`
	SSLMode      string `koanf:"sslmode" validate:"required"`
	MaxConns     int    `koanf:"maxconns" validate:"min=1"`
	MinConns     int    `koanf:"minconns" validate:"min=1"`
	ConnTimeout  int    `koanf:"conntimeout" validate:"min=1"`  // seconds, per-connection connect budget
	ProbeTimeout int    `koanf:"probetimeout" validate:"min=1"` // seconds, single-connection liveness probe
	PrivateIP    string `koanf:"privateip"`
	UsePrivateIP bool   `koanf:"useprivateip"`
	ProxyConn    string `koanf:"proxyconn"` // Cloud SQL connection name; non-empty means a local proxy is expected
}

// RemoteConfig controls the client-side dispatcher's remote transport.
type RemoteConfig struct {
	Enabled      bool   `koanf:"enabled"`
	URL          string `koanf:"url"`
	Timeout      int    `koanf:"timeout" validate:"min=1"` // seconds
	TokenCommand string `koanf:"tokencommand"`
}

type ObservabilityConfig struct {
	Enabled bool   `koanf:"enabled"`
	License string `koanf:"license"`
	AppName string `koanf:"appname"`
}

// Default returns the configuration used when no environment overrides
// are present. The loopback host mirrors the common local-development
// setup; production deployments always override database.* keys.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  60,
			CORSOrigins:  "*",
		},
		Database: DatabaseConfig{
			Host:         "127.0.0.1",
			Port:         5432,
			User:         "statuslog",
			Name:         "statuslog",
			SSLMode:      "disable",
			MaxConns:     10,
			MinConns:     1,
			ConnTimeout:  60,
			ProbeTimeout: 5,
		},
		Remote: RemoteConfig{
			Timeout: 30,
		},
		Observability: ObservabilityConfig{
			AppName: ServiceName,
		},
	}
}

// Load reads STATUSLOG_* environment variables on top of the defaults and
// validates the result. Underscores in variable names map to key nesting,
// so every config key is a single token per level.
func Load() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
