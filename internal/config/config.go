// Package config loads ayda's configuration from defaults, a YAML file,
// AYDA_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable: zotero.api_key is read
// from AYDA_ZOTERO_API_KEY.
const EnvPrefix = "AYDA"

// AppName names the configuration directory.
const AppName = "ayda"

// ErrMissingCredentials is returned by Validate.
var ErrMissingCredentials = errors.New("missing required configuration")

// Config is the complete ayda configuration.
type Config struct {
	Zotero      ZoteroConfig      `mapstructure:"zotero"`
	AnythingLLM AnythingLLMConfig `mapstructure:"anythingllm"`
	Import      ImportConfig      `mapstructure:"import"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// ZoteroConfig configures the Zotero web API client.
type ZoteroConfig struct {
	UserID             string  `mapstructure:"user_id"`
	APIKey             string  `mapstructure:"api_key"`
	LibraryRoot        string  `mapstructure:"library_root"`
	BaseURL            string  `mapstructure:"base_url"`
	PageSize           int     `mapstructure:"page_size"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
	MaxPageConcurrency int     `mapstructure:"max_page_concurrency"`
}

// AnythingLLMConfig configures the AnythingLLM client.
type AnythingLLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFileSize int64         `mapstructure:"max_file_size"`
}

// ImportConfig configures the import pipeline.
type ImportConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	UploadTimeout  time.Duration `mapstructure:"upload_timeout"`
	ContentType    string        `mapstructure:"content_type"`
	LogDir         string        `mapstructure:"log_dir"`
}

// RedisConfig configures the optional shared Redis. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Size int           `mapstructure:"size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig configures the metrics endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Dir returns the ayda configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default of every key. Keys without a default
// are registered empty so that environment variables reach Unmarshal.
// Durations are strings so that WriteDefault renders them readably.
func SetDefaults(v *viper.Viper) {
	logDir, err := Dir()
	if err != nil {
		logDir = "."
	}

	v.SetDefault("zotero.user_id", "")
	v.SetDefault("zotero.api_key", "")
	v.SetDefault("zotero.library_root", "")
	v.SetDefault("zotero.base_url", "https://api.zotero.org")
	v.SetDefault("zotero.page_size", 100)
	v.SetDefault("zotero.requests_per_second", 5.0)
	v.SetDefault("zotero.max_page_concurrency", 1)

	v.SetDefault("anythingllm.base_url", "http://localhost:3001")
	v.SetDefault("anythingllm.api_key", "")
	v.SetDefault("anythingllm.timeout", "120s")
	v.SetDefault("anythingllm.max_file_size", int64(50<<20))

	v.SetDefault("import.max_concurrency", 100)
	v.SetDefault("import.upload_timeout", "0s")
	v.SetDefault("import.content_type", "application/pdf")
	v.SetDefault("import.log_dir", logDir)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.size", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("metrics.addr", "")
}

// BindFlags binds command-line flags to keys. Only flags that were set
// override lower layers.
func BindFlags(v *viper.Viper, flags map[string]*pflag.Flag) error {
	for key, f := range flags {
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s to %s: %w", f.Name, key, err)
		}
	}
	return nil
}

// Load reads path, or the default path when path is empty, and decodes the
// result. A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v.SetConfigFile(path)
	file := path
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		file = ""
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = file
	return &cfg, nil
}

// Need names the services a command talks to.
type Need int

// Needs.
const (
	NeedZotero Need = 1 << iota
	NeedAnythingLLM
	NeedLibrary
)

// Validate checks the keys a command needs and the ranges of numeric
// settings. Missing credentials are reported together.
func (c *Config) Validate(need Need) error {
	var missing []string
	if need&NeedZotero != 0 {
		if c.Zotero.UserID == "" {
			missing = append(missing, "zotero.user_id")
		}
		if c.Zotero.APIKey == "" {
			missing = append(missing, "zotero.api_key")
		}
	}
	if need&NeedLibrary != 0 && c.Zotero.LibraryRoot == "" {
		missing = append(missing, "zotero.library_root")
	}
	if need&NeedAnythingLLM != 0 && c.AnythingLLM.APIKey == "" {
		missing = append(missing, "anythingllm.api_key")
	}

	var errs []error
	if len(missing) > 0 {
		hints := make([]string, len(missing))
		for i, k := range missing {
			hints[i] = fmt.Sprintf("%s (%s)", k, EnvKey(k))
		}
		errs = append(errs, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(hints, ", ")))
	}
	if c.Import.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("import.max_concurrency must be at least 1, got %d", c.Import.MaxConcurrency))
	}
	if c.Import.UploadTimeout < 0 {
		errs = append(errs, fmt.Errorf("import.upload_timeout must not be negative"))
	}
	if c.Zotero.PageSize < 1 || c.Zotero.PageSize > 100 {
		errs = append(errs, fmt.Errorf("zotero.page_size must be between 1 and 100, got %d", c.Zotero.PageSize))
	}
	if c.Zotero.MaxPageConcurrency < 1 {
		errs = append(errs, fmt.Errorf("zotero.max_page_concurrency must be at least 1, got %d", c.Zotero.MaxPageConcurrency))
	}
	return errors.Join(errs...)
}

// EnvKey returns the environment variable that sets key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// WriteDefault writes a config file holding every default to path. It
// refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return fmt.Errorf("config file %s already exists", path)
		}
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
