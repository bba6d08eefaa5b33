package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for keygate.
type Config struct {
	ServiceName string            `yaml:"service_name" mapstructure:"service_name"`
	Rules       RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	DecisionLog DecisionLogConfig `yaml:"decision_log" mapstructure:"decision_log"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// RulesConfig locates the optional rule layers.
type RulesConfig struct {
	File   string `yaml:"file" mapstructure:"file"`       // user rules document (JSON or YAML)
	EnvVar string `yaml:"env_var" mapstructure:"env_var"` // variable holding "|"-separated patterns
}

// StoreConfig selects the secret store backend.
type StoreConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`     // auto, keychain, secret-tool, or file
	Path     string `yaml:"path" mapstructure:"path"`           // encrypted file; empty means <index_dir>/<service>.enc
	IndexDir string `yaml:"index_dir" mapstructure:"index_dir"` // holds <service>.keys
}

// DecisionLogConfig controls the validate decision log.
type DecisionLogConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Path          string `yaml:"path" mapstructure:"path"`
	MaxSizeMB     int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	SampleAllowed int    `yaml:"sample_allowed" mapstructure:"sample_allowed"` // log 1-in-N allowed decisions
}

// LoggingConfig holds logging preferences.
type LoggingConfig struct {
	Format string `yaml:"format" mapstructure:"format"` // text or json
	Level  string `yaml:"level" mapstructure:"level"`
}

// DefaultServiceName scopes secrets when nothing else is configured.
const DefaultServiceName = "claude-dev"

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", DefaultServiceName)
	v.SetDefault("rules.file", "~/.keychain/rules.json")
	v.SetDefault("rules.env_var", "KEYCHAIN_CUSTOM_RULES")
	v.SetDefault("store.backend", "auto")
	v.SetDefault("store.path", "")
	v.SetDefault("store.index_dir", "~/.keychain")
	v.SetDefault("decision_log.enabled", false)
	v.SetDefault("decision_log.path", "~/.keychain/decisions.jsonl")
	v.SetDefault("decision_log.max_size_mb", 10)
	v.SetDefault("decision_log.sample_allowed", 1)
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")
}

// envBindings maps every config key to its environment override.
var envBindings = map[string]string{
	"service_name":                "KEYGATE_SERVICE_NAME",
	"rules.file":                  "KEYGATE_RULES_FILE",
	"rules.env_var":               "KEYGATE_RULES_ENV_VAR",
	"store.backend":               "KEYGATE_STORE_BACKEND",
	"store.path":                  "KEYGATE_STORE_PATH",
	"store.index_dir":             "KEYGATE_STORE_INDEX_DIR",
	"decision_log.enabled":        "KEYGATE_DECISION_LOG_ENABLED",
	"decision_log.path":           "KEYGATE_DECISION_LOG_PATH",
	"decision_log.max_size_mb":    "KEYGATE_DECISION_LOG_MAX_SIZE_MB",
	"decision_log.sample_allowed": "KEYGATE_DECISION_LOG_SAMPLE_ALLOWED",
	"logging.format":              "KEYGATE_LOGGING_FORMAT",
	"logging.level":               "KEYGATE_LOGGING_LEVEL",
}

// bindEnvVars binds environment variable overrides with the KEYGATE_ prefix.
// AutomaticEnv only resolves keys viper already knows about, so nested keys
// are bound explicitly.
func bindEnvVars(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// ResolveHomeDir returns $HOME, falling back to the OS user home directory.
func ResolveHomeDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	return os.UserHomeDir()
}

// ExpandHome replaces a leading "~" with the home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := ResolveHomeDir()
	if err != nil {
		slog.Warn("could not determine home directory", "error", err)
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() (string, error) {
	home, err := ResolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "keygate"), nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	cfg.expandPaths()
	return &cfg
}

// Load reads the keygate configuration from disk, env vars, and defaults.
// If configPath is empty, it looks in ~/.config/keygate/config.yaml.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	v.SetEnvPrefix("KEYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if dir, err := DefaultConfigDir(); err != nil {
		slog.Warn("could not determine home directory", "error", err)
	} else {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		slog.Debug("no config file found, using defaults")
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	return &cfg, nil
}

func (c *Config) expandPaths() {
	c.Rules.File = ExpandHome(c.Rules.File)
	c.Store.Path = ExpandHome(c.Store.Path)
	c.Store.IndexDir = ExpandHome(c.Store.IndexDir)
	c.DecisionLog.Path = ExpandHome(c.DecisionLog.Path)
}

// StoreFilePath returns the encrypted store file for the current service.
func (c *Config) StoreFilePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.Store.IndexDir, c.ServiceName+".enc")
}

// WriteDefault creates a default config file at the given path (or the
// default location if path is empty). It does not overwrite an existing file.
func WriteDefault(path string) (string, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return "", err
		}
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := WriteTemplate("default", path, false); err != nil {
		return "", err
	}
	return path, nil
}
