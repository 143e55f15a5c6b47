package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/habedi/wanderlist/auth"
	"github.com/habedi/wanderlist/client"
	"github.com/habedi/wanderlist/db"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the CLI reads, e.g. WANDERLIST_BASE_URL.
const EnvPrefix = "WANDERLIST"

type Config struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	TokenURL       string        `mapstructure:"token_url" validate:"required,url"`
	ClientID       string        `mapstructure:"client_id" validate:"required"`
	ClientSecret   string        `mapstructure:"client_secret"`
	Storage        string        `mapstructure:"storage" validate:"oneof=sqlite redis memory"`
	DBPath         string        `mapstructure:"db_path"`
	RedisAddr      string        `mapstructure:"redis_addr" validate:"required_if=Storage redis"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisPrefix    string        `mapstructure:"redis_prefix"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout" validate:"min=1s"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their config key rather than the Go field name.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Dir is where config.yaml is looked up: $WANDERLIST_HOME or ~/.wanderlist.
func Dir() string {
	if home := os.Getenv(EnvPrefix + "_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wanderlist"
	}
	return filepath.Join(home, ".wanderlist")
}

// New returns a viper instance with defaults, environment binding and the
// default config file location set up. Callers may bind flags before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(Dir())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("base_url", "http://localhost:8080/api")
	v.SetDefault("token_url", "http://localhost:8080/oauth/token")
	v.SetDefault("client_id", "wanderlist-cli")
	v.SetDefault("client_secret", "")
	v.SetDefault("storage", db.BackendSQLite)
	v.SetDefault("db_path", "")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_prefix", db.DefaultRedisPrefix)
	v.SetDefault("request_timeout", client.DefaultRequestTimeout)
	v.SetDefault("refresh_timeout", auth.DefaultRefreshTimeout)
	return v
}

// Load reads the config file if there is one, applies environment overrides
// and validates the result. A missing default config file is not an error; a
// missing file set explicitly with SetConfigFile is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debug().Str("dir", Dir()).Msg("No config file found, using defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config and reports every offending key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			problems = append(problems, fmt.Sprintf("%s must satisfy %s (got %q)", fe.Field(), fe.Tag(), fmt.Sprint(fe.Value())))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// ClientConfig is the part of the config the HTTP client needs.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:        c.BaseURL,
		TokenURL:       c.TokenURL,
		ClientID:       c.ClientID,
		ClientSecret:   c.ClientSecret,
		RequestTimeout: c.RequestTimeout,
		RefreshTimeout: c.RefreshTimeout,
	}
}

// StorageOptions is the part of the config the session storage needs.
func (c *Config) StorageOptions() db.Options {
	return db.Options{
		Backend:       c.Storage,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisPrefix:   c.RedisPrefix,
	}
}
