// Package config loads the connector settings from, in increasing priority,
// defaults, a YAML file, a .env file and CICSYNC_* environment variables, and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const envPrefix = "CICSYNC"

type TwoFactor struct {
	Attempts  int           `mapstructure:"attempts"`
	FirstWait time.Duration `mapstructure:"first_wait"`
	Interval  time.Duration `mapstructure:"interval"`
}

type YNAB struct {
	TokenEnv string `mapstructure:"token_env"`
	BudgetID string `mapstructure:"budget_id"`
	// Accounts maps a bank account number to a YNAB account id.
	Accounts map[string]string `mapstructure:"accounts"`
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	Language      string        `mapstructure:"language"`
	Login         string        `mapstructure:"login"`
	Password      string        `mapstructure:"password"`
	BaseURL       string        `mapstructure:"base_url"`
	Database      string        `mapstructure:"database"`
	SecretKey     string        `mapstructure:"secret_key"`
	LogLevel      string        `mapstructure:"log_level"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Location      string        `mapstructure:"location"`
	Lexicon       string        `mapstructure:"lexicon"`
	SessionCookie string        `mapstructure:"session_cookie"`
	TwoFactor     TwoFactor     `mapstructure:"two_factor"`
	YNAB          YNAB          `mapstructure:"ynab"`
	Server        Server        `mapstructure:"server"`
}

var defaults = map[string]any{
	"language":              "fr",
	"login":                 "",
	"password":              "",
	"base_url":              "https://www.cic.fr/",
	"database":              "cicsync.db",
	"secret_key":            "",
	"log_level":             "info",
	"timeout":               "10m",
	"location":              "Europe/Paris",
	"lexicon":               "",
	"session_cookie":        "auth_client_state",
	"two_factor.attempts":   60,
	"two_factor.first_wait": "15s",
	"two_factor.interval":   "5s",
	"ynab.token_env":        "YNAB_TOKEN",
	"ynab.budget_id":        "",
	"server.addr":           "0.0.0.0:3000",
}

// Build loads the configuration. cfgFile may be empty, in which case an
// optional config.yaml in the working directory is used. Flags are bound by
// name with dots and underscores written as dashes ("base-url" sets base_url,
// "server-addr" sets server.addr).
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		keys := make(map[string]string, len(defaults))
		for k := range defaults {
			keys[flagName(k)] = k
		}
		flags.VisitAll(func(f *pflag.Flag) {
			key, known := keys[f.Name]
			if !known {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func flagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}

// Validate checks the settings a portal run cannot do without.
func (c *Config) Validate() error {
	var missing []string
	if c.Language == "" {
		missing = append(missing, "language")
	}
	if c.Login == "" {
		missing = append(missing, "login")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	if c.TwoFactor.Attempts <= 0 {
		return fmt.Errorf("two_factor.attempts must be positive")
	}
	return nil
}

// YNABToken reads the token from the environment variable named by ynab.token_env.
func (c *Config) YNABToken() string {
	if c.YNAB.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.YNAB.TokenEnv)
}

// YNABEnabled reports whether transactions should be pushed to YNAB.
func (c *Config) YNABEnabled() bool {
	return c.YNAB.BudgetID != "" && len(c.YNAB.Accounts) > 0
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger(prefix string) *log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          prefix,
		Level:           level,
	})
}
