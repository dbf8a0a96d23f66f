// Package config gathers bidwatch settings from the environment, an optional
// .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	DefaultBaseURL     = "http://localhost:8000"
	DefaultStatePath   = "bidwatch.db"
	DefaultHTTPTimeout = 15 * time.Second
)

type Config struct {
	BaseURL         string
	StatePath       string
	StatePassphrase string
	LogLevel        string
	LogFormat       string
	AutoReconnect   bool
	HTTPTimeout     time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
}

// LoadDotenv reads path into the process environment. Variables already set
// win over the file, and a missing file is not an error.
func LoadDotenv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// FromEnv builds a Config from lookup, which is normally os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		BaseURL:         strings.TrimRight(get("BIDWATCH_API_BASE_URL", DefaultBaseURL), "/"),
		StatePath:       get("BIDWATCH_STATE_PATH", DefaultStatePath),
		StatePassphrase: get("BIDWATCH_STATE_PASSPHRASE", ""),
		LogLevel:        get("BIDWATCH_LOG_LEVEL", "info"),
		LogFormat:       get("BIDWATCH_LOG_FORMAT", "text"),
		HTTPTimeout:     DefaultHTTPTimeout,
		VAPIDPublicKey:  get("BIDWATCH_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: get("BIDWATCH_VAPID_PRIVATE_KEY", ""),
		VAPIDSubscriber: get("BIDWATCH_VAPID_SUBSCRIBER", ""),
	}

	if v := get("BIDWATCH_AUTO_RECONNECT", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("BIDWATCH_AUTO_RECONNECT: %w", err)
		}
		cfg.AutoReconnect = b
	}

	if v := get("BIDWATCH_HTTP_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("BIDWATCH_HTTP_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("BIDWATCH_HTTP_TIMEOUT: must be positive, got %s", d)
		}
		cfg.HTTPTimeout = d
	}

	return cfg, nil
}

// Load reads the .env file and then the process environment.
func Load(dotenv string) (Config, error) {
	if err := LoadDotenv(dotenv); err != nil {
		return Config{}, err
	}
	return FromEnv(os.LookupEnv)
}

// BindFlags registers the persistent flags that override the environment.
func BindFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("api", "", "API base URL (env BIDWATCH_API_BASE_URL)")
	f.String("state", "", "path of the local state database (env BIDWATCH_STATE_PATH)")
	f.String("log-level", "", "debug, info, warn or error (env BIDWATCH_LOG_LEVEL)")
	f.String("log-format", "", "text or json (env BIDWATCH_LOG_FORMAT)")
	f.Bool("reconnect", false, "reconnect dropped real-time channels (env BIDWATCH_AUTO_RECONNECT)")
	f.String("env-file", ".env", "dotenv file to load")
}

// ApplyFlags overrides cfg with any flags set on cmd.
func (cfg *Config) ApplyFlags(cmd *cobra.Command) {
	cfg.BaseURL = strings.TrimRight(FlagOr(cmd, "api", cfg.BaseURL), "/")
	cfg.StatePath = FlagOr(cmd, "state", cfg.StatePath)
	cfg.LogLevel = FlagOr(cmd, "log-level", cfg.LogLevel)
	cfg.LogFormat = FlagOr(cmd, "log-format", cfg.LogFormat)
	if f := cmd.Flags().Lookup("reconnect"); f != nil && f.Changed {
		cfg.AutoReconnect, _ = cmd.Flags().GetBool("reconnect")
	}
}

// FlagOr returns the named string flag when it is set and non-empty, and
// def otherwise.
func FlagOr(cmd *cobra.Command, name, def string) string {
	if v, err := cmd.Flags().GetString(name); err == nil && v != "" {
		return v
	}
	return def
}
