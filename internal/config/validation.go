package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationIssue describes a single validation problem.
type ValidationIssue struct {
	Field   string // dotted config path, e.g. "store.backend"
	Value   string // the invalid value as a string
	Message string // human-readable description
}

func (i ValidationIssue) String() string {
	if i.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", i.Field, i.Message, i.Value)
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationResult collects errors and warnings from config validation.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a formatted summary of all errors and warnings.
func (r *ValidationResult) String() string {
	if !r.HasErrors() && !r.HasWarnings() {
		return "config validation passed"
	}

	var b strings.Builder
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "ERROR  %s\n", e.String())
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "WARN   %s\n", w.String())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *ValidationResult) addError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Field: field, Value: value, Message: message})
}

func (r *ValidationResult) addWarning(field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Field: field, Value: value, Message: message})
}

// Validate checks cfg against all known rules and returns a ValidationResult.
func Validate(cfg *Config) *ValidationResult {
	r := &ValidationResult{}

	// --- ERROR checks ---

	// service_name ends up in file names.
	switch {
	case strings.TrimSpace(cfg.ServiceName) == "":
		r.addError("service_name", "", "must not be empty")
	case strings.ContainsAny(cfg.ServiceName, `/\`) || cfg.ServiceName == "." || cfg.ServiceName == "..":
		r.addError("service_name", cfg.ServiceName, "must not contain path separators")
	}

	switch cfg.Store.Backend {
	case "auto", "keychain", "secret-tool", "file":
	default:
		r.addError("store.backend", cfg.Store.Backend, "must be \"auto\", \"keychain\", \"secret-tool\", or \"file\"")
	}

	if cfg.Store.IndexDir == "" && cfg.Store.Backend != "file" {
		r.addError("store.index_dir", "", "must not be empty for keychain backends")
	}

	if cfg.DecisionLog.Enabled && cfg.DecisionLog.Path == "" {
		r.addError("decision_log.path", "", "must be set when decision_log.enabled is true")
	}
	if cfg.DecisionLog.MaxSizeMB <= 0 {
		r.addError("decision_log.max_size_mb", fmt.Sprintf("%d", cfg.DecisionLog.MaxSizeMB), "must be greater than 0")
	}
	if cfg.DecisionLog.SampleAllowed < 0 {
		r.addError("decision_log.sample_allowed", fmt.Sprintf("%d", cfg.DecisionLog.SampleAllowed), "must not be negative")
	}

	// logging.format
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		r.addError("logging.format", cfg.Logging.Format, "must be \"text\" or \"json\"")
	}

	// logging.level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		r.addError("logging.level", cfg.Logging.Level, "must be \"debug\", \"info\", \"warn\", or \"error\"")
	}

	// --- WARNING checks ---

	if cfg.Rules.File == "" {
		r.addWarning("rules.file", "", "is empty; the config-file rule layer is disabled")
	} else {
		switch strings.ToLower(filepath.Ext(cfg.Rules.File)) {
		case ".json", ".yaml", ".yml":
		default:
			r.addWarning("rules.file", cfg.Rules.File, "has no .json, .yaml, or .yml extension and will be parsed as JSON")
		}
	}

	if cfg.Rules.EnvVar == "" {
		r.addWarning("rules.env_var", "", "is empty; the environment rule layer is disabled")
	}

	if cfg.DecisionLog.SampleAllowed > 1 && !cfg.DecisionLog.Enabled {
		r.addWarning("decision_log.sample_allowed", fmt.Sprintf("%d", cfg.DecisionLog.SampleAllowed), "has no effect while decision_log.enabled is false")
	}

	return r
}
