// Package support builds diagnostic bundles for issue reports.
package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/keygate/keygate/internal/checks"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/host"
	"github.com/keygate/keygate/internal/rules"
)

// BundleOptions controls bundle generation.
type BundleOptions struct {
	Redact  bool
	Version string
}

// RuleSummary identifies a loaded rule without its patterns.
type RuleSummary struct {
	ID      string      `json:"id"`
	Layer   rules.Layer `json:"layer"`
	Kind    string      `json:"type"`
	Enabled bool        `json:"enabled"`
}

// Bundle holds all diagnostic information for an issue report. It never
// contains secret values.
type Bundle struct {
	Version       string         `json:"version"`
	HostInfo      host.HostInfo  `json:"host_info"`
	ConfigSummary string         `json:"config_summary"`
	RulesVersion  string         `json:"rules_version"`
	Rules         []RuleSummary  `json:"rules"`
	Check         *checks.Report `json:"check"`
}

// RedactConfig returns a string summary of the config. With redact set, the
// service name is hidden and the home directory is shortened to "~".
func RedactConfig(cfg *config.Config, redact bool) string {
	service := cfg.ServiceName
	if redact {
		service = "***"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "service_name: %s\n", service)
	fmt.Fprintf(&b, "rules.file: %s\n", cfg.Rules.File)
	fmt.Fprintf(&b, "rules.env_var: %s\n", cfg.Rules.EnvVar)
	fmt.Fprintf(&b, "store.backend: %s\n", cfg.Store.Backend)
	fmt.Fprintf(&b, "store.path: %s\n", cfg.StoreFilePath())
	fmt.Fprintf(&b, "store.index_dir: %s\n", cfg.Store.IndexDir)
	fmt.Fprintf(&b, "decision_log.enabled: %v\n", cfg.DecisionLog.Enabled)
	fmt.Fprintf(&b, "decision_log.path: %s\n", cfg.DecisionLog.Path)
	fmt.Fprintf(&b, "logging: %s/%s\n", cfg.Logging.Format, cfg.Logging.Level)

	out := b.String()
	if redact {
		out = redactText(out, cfg.ServiceName)
	}
	return out
}

// redactText shortens the home directory and hides the service name.
func redactText(s, service string) string {
	if home, err := config.ResolveHomeDir(); err == nil && home != "" && home != "/" {
		s = strings.ReplaceAll(s, home, "~")
	}
	// Very short names would mangle unrelated text.
	if len(service) >= 3 {
		s = strings.ReplaceAll(s, service, "***")
	}
	return s
}

// GenerateBundle creates a diagnostic bundle from the config and a check run.
func GenerateBundle(ctx context.Context, cfg *config.Config, env checks.Env, opts BundleOptions) (*Bundle, error) {
	bundle := &Bundle{
		Version:       opts.Version,
		HostInfo:      env.Host,
		ConfigSummary: RedactConfig(cfg, opts.Redact),
	}

	if env.Engine != nil {
		bundle.RulesVersion = env.Engine.Version()
		for _, r := range env.Engine.Rules() {
			bundle.Rules = append(bundle.Rules, RuleSummary{
				ID:      r.ID,
				Layer:   r.Layer,
				Kind:    string(r.Kind),
				Enabled: r.Enabled,
			})
		}
	}

	report := checks.RunAll(ctx, env)
	if opts.Redact {
		report.Service = "***"
		for i := range report.Results {
			report.Results[i].Message = redactText(report.Results[i].Message, cfg.ServiceName)
		}
	}
	bundle.Check = report

	return bundle, nil
}
