package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Keys returns every settable config key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(envBindings))
	for k := range envBindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// convertValue parses a command-line value into the type stored under key.
func convertValue(key, value string) (interface{}, error) {
	switch key {
	case "decision_log.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false, got %q", key, value)
		}
		return b, nil
	case "decision_log.max_size_mb", "decision_log.sample_allowed":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer, got %q", key, value)
		}
		return n, nil
	default:
		return value, nil
	}
}

func checkKey(key string) error {
	if _, ok := envBindings[key]; !ok {
		return fmt.Errorf("unknown config key %q. Valid keys: %s", key, strings.Join(Keys(), ", "))
	}
	return nil
}

// Get returns the effective value of key: the config file at path (if any),
// KEYGATE_* overrides, and defaults.
func Get(path, key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return "", fmt.Errorf("reading config: %w", err)
			}
		}
	}

	return fmt.Sprint(v.Get(key)), nil
}

// Set writes key=value into the config file at path, creating the file from
// the default template when missing. The change is rejected if the resulting
// config does not validate.
func Set(path, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	typed, err := convertValue(key, value)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if _, err := WriteDefault(path); err != nil {
			return fmt.Errorf("creating default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	v.Set(key, typed)

	check := viper.New()
	setDefaults(check)
	if err := check.MergeConfigMap(v.AllSettings()); err != nil {
		return fmt.Errorf("merging config: %w", err)
	}
	var cfg Config
	if err := check.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}
	cfg.expandPaths()
	if result := Validate(&cfg); result.HasErrors() {
		return fmt.Errorf("refusing to set %s: %s", key, result.Errors[0])
	}

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
