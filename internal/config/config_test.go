package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate points HOME at an empty temp dir so Load("") cannot pick up the
// host's ~/.config/keygate/config.yaml.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestDefaultValues(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() with no config file: %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"service_name", cfg.ServiceName, "claude-dev"},
		{"rules.file", cfg.Rules.File, filepath.Join(home, ".keychain", "rules.json")},
		{"rules.env_var", cfg.Rules.EnvVar, "KEYCHAIN_CUSTOM_RULES"},
		{"store.backend", cfg.Store.Backend, "auto"},
		{"store.path", cfg.Store.Path, ""},
		{"store.index_dir", cfg.Store.IndexDir, filepath.Join(home, ".keychain")},
		{"decision_log.enabled", cfg.DecisionLog.Enabled, false},
		{"decision_log.path", cfg.DecisionLog.Path, filepath.Join(home, ".keychain", "decisions.jsonl")},
		{"decision_log.max_size_mb", cfg.DecisionLog.MaxSizeMB, 10},
		{"decision_log.sample_allowed", cfg.DecisionLog.SampleAllowed, 1},
		{"logging.format", cfg.Logging.Format, "text"},
		{"logging.level", cfg.Logging.Level, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("default %s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	home := isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	content := `service_name: work
rules:
  file: ~/rules.yaml
  env_var: MY_RULES
store:
  backend: file
  path: /tmp/keygate/work.enc
decision_log:
  enabled: true
  max_size_mb: 5
  sample_allowed: 20
logging:
  format: json
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load(%s): %v", cfgPath, err)
	}

	if cfg.ServiceName != "work" {
		t.Errorf("service_name = %q, want %q", cfg.ServiceName, "work")
	}
	if want := filepath.Join(home, "rules.yaml"); cfg.Rules.File != want {
		t.Errorf("rules.file = %q, want %q", cfg.Rules.File, want)
	}
	if cfg.Rules.EnvVar != "MY_RULES" {
		t.Errorf("rules.env_var = %q, want %q", cfg.Rules.EnvVar, "MY_RULES")
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("store.backend = %q, want file", cfg.Store.Backend)
	}
	if cfg.StoreFilePath() != "/tmp/keygate/work.enc" {
		t.Errorf("StoreFilePath() = %q", cfg.StoreFilePath())
	}
	if !cfg.DecisionLog.Enabled || cfg.DecisionLog.MaxSizeMB != 5 || cfg.DecisionLog.SampleAllowed != 20 {
		t.Errorf("decision_log = %+v", cfg.DecisionLog)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadFromDefaultLocation(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".config", "keygate")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("service_name: from-home\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if cfg.ServiceName != "from-home" {
		t.Errorf("service_name = %q, want from-home", cfg.ServiceName)
	}
}

func TestEnvVarOverrides(t *testing.T) {
	isolate(t)

	t.Setenv("KEYGATE_SERVICE_NAME", "ci")
	t.Setenv("KEYGATE_STORE_BACKEND", "file")
	t.Setenv("KEYGATE_DECISION_LOG_ENABLED", "true")
	t.Setenv("KEYGATE_DECISION_LOG_SAMPLE_ALLOWED", "7")
	t.Setenv("KEYGATE_RULES_FILE", "/etc/keygate/rules.yaml")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}

	if cfg.ServiceName != "ci" {
		t.Errorf("service_name = %q, want ci (from KEYGATE_SERVICE_NAME)", cfg.ServiceName)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("store.backend = %q, want file", cfg.Store.Backend)
	}
	if !cfg.DecisionLog.Enabled {
		t.Error("decision_log.enabled = false, want true")
	}
	if cfg.DecisionLog.SampleAllowed != 7 {
		t.Errorf("decision_log.sample_allowed = %d, want 7", cfg.DecisionLog.SampleAllowed)
	}
	if cfg.Rules.File != "/etc/keygate/rules.yaml" {
		t.Errorf("rules.file = %q", cfg.Rules.File)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() with missing explicit path should return error")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("service_name: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() with malformed YAML should return error")
	}
}

func TestDefault(t *testing.T) {
	home := isolate(t)
	cfg := Default()
	if cfg.ServiceName != DefaultServiceName {
		t.Errorf("service_name = %q", cfg.ServiceName)
	}
	if want := filepath.Join(home, ".keychain", "claude-dev.enc"); cfg.StoreFilePath() != want {
		t.Errorf("StoreFilePath() = %q, want %q", cfg.StoreFilePath(), want)
	}
}

func TestExpandHome(t *testing.T) {
	home := isolate(t)

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/x/y", filepath.Join(home, "x", "y")},
		{"/abs/path", "/abs/path"},
		{"~other/x", "~other/x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteDefault(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")

	path, err := WriteDefault(cfgPath)
	if err != nil {
		t.Fatalf("WriteDefault(): %v", err)
	}
	if path != cfgPath {
		t.Errorf("WriteDefault returned %q, want %q", path, cfgPath)
	}

	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if !strings.Contains(string(data), "service_name: claude-dev") {
		t.Errorf("default config missing service_name:\n%s", data)
	}

	// Should not overwrite existing file.
	if err := os.WriteFile(cfgPath, []byte("custom content"), 0o644); err != nil {
		t.Fatalf("writing custom content: %v", err)
	}
	if _, err := WriteDefault(cfgPath); err != nil {
		t.Fatalf("WriteDefault() on existing file: %v", err)
	}
	data, _ = os.ReadFile(cfgPath)
	if string(data) != "custom content" {
		t.Error("WriteDefault should not overwrite existing file")
	}
}

func TestTemplatesLoadAndValidate(t *testing.T) {
	isolate(t)
	for _, name := range ValidTemplates {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := WriteTemplate(name, path, false); err != nil {
				t.Fatalf("WriteTemplate: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if r := Validate(cfg); r.HasErrors() {
				t.Errorf("template %s has errors:\n%s", name, r)
			}
		})
	}
}

func TestWriteTemplate_NoOverwriteWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteTemplate("default", path, false); err == nil {
		t.Error("expected error when file exists")
	}
	if err := WriteTemplate("default", path, true); err != nil {
		t.Errorf("force write: %v", err)
	}
	if _, err := GetTemplate("enterprise"); err == nil {
		t.Error("expected error for unknown template")
	}
}
