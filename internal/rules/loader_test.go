package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRulesFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigRules_JSON(t *testing.T) {
	path := writeRulesFile(t, "rules.json", `{
  "rules": [
    {"id": "custom_1", "type": "substring", "pattern": "vault read", "description": "Vault", "enabled": true},
    {"id": "custom_2", "type": "contains_all", "patterns": ["kubectl", "secret"], "description": "K8s", "enabled": false},
    {"id": "custom_3", "type": "contains_any", "patterns": ["op read", "op item"], "description": "1Password", "enabled": true}
  ]
}`)

	rules, err := LoadConfigRules(path)
	if err != nil {
		t.Fatalf("LoadConfigRules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("got %d rules, want 3", len(rules))
	}
	if rules[0].Kind != MatchSubstring || rules[0].Pattern != "vault read" {
		t.Errorf("rules[0] = %+v", rules[0])
	}
	if rules[1].Enabled {
		t.Error("rules[1] should be disabled")
	}
	if len(rules[2].Patterns) != 2 || rules[2].Patterns[1] != "op item" {
		t.Errorf("rules[2].Patterns = %v", rules[2].Patterns)
	}
	for _, r := range rules {
		if r.Layer != LayerConfigFile {
			t.Errorf("rule %s layer = %q, want %q", r.ID, r.Layer, LayerConfigFile)
		}
	}
}

func TestLoadConfigRules_YAML(t *testing.T) {
	path := writeRulesFile(t, "rules.yaml", `rules:
  - id: custom_vault
    type: substring
    pattern: vault read
    description: Vault reads
    enabled: true
  - id: custom_gcloud
    type: contains_all
    patterns: [gcloud, print-access-token]
    description: gcloud tokens
    enabled: true
`)

	rules, err := LoadConfigRules(path)
	if err != nil {
		t.Fatalf("LoadConfigRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[1].ID != "custom_gcloud" || len(rules[1].Patterns) != 2 {
		t.Errorf("rules[1] = %+v", rules[1])
	}
}

func TestLoadConfigRules_MissingFile(t *testing.T) {
	rules, err := LoadConfigRules(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("got %d rules, want 0", len(rules))
	}
}

func TestLoadConfigRules_EmptyPath(t *testing.T) {
	rules, err := LoadConfigRules("")
	if err != nil || rules != nil {
		t.Errorf("LoadConfigRules(\"\") = %v, %v; want nil, nil", rules, err)
	}
}

func TestLoadConfigRules_EmptyRulesList(t *testing.T) {
	path := writeRulesFile(t, "rules.json", `{"rules": []}`)
	rules, err := LoadConfigRules(path)
	if err != nil {
		t.Fatalf("LoadConfigRules: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("got %d rules, want 0", len(rules))
	}
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		doc     string
		wantErr string
	}{
		{"not json", "json", `not json at all`, "invalid character"},
		{"truncated", "json", `{"rules": [`, "EOF"},
		{"missing rules", "json", `{}`, `missing field "rules"`},
		{"unknown top-level field", "json", `{"rules": [], "version": 2}`, "unknown field"},
		{"unknown rule field", "json", `{"rules": [{"id":"a","type":"substring","pattern":"x","description":"d","enabled":true,"severity":"high"}]}`, "unknown field"},
		{"missing id", "json", `{"rules": [{"type":"substring","pattern":"x","description":"d","enabled":true}]}`, "missing field(s): id"},
		{"missing enabled", "json", `{"rules": [{"id":"a","type":"substring","pattern":"x","description":"d"}]}`, "enabled"},
		{"missing pattern", "json", `{"rules": [{"id":"a","type":"substring","description":"d","enabled":true}]}`, "missing field: pattern"},
		{"missing patterns", "json", `{"rules": [{"id":"a","type":"contains_any","description":"d","enabled":true}]}`, "missing field: patterns"},
		{"pattern on list type", "json", `{"rules": [{"id":"a","type":"contains_all","pattern":"x","patterns":["y"],"description":"d","enabled":true}]}`, "unknown field pattern"},
		{"null in patterns", "json", `{"rules": [{"id":"a","type":"contains_any","patterns":["vault read",null],"description":"d","enabled":true}]}`, "patterns[1] is null"},
		{"null pattern", "json", `{"rules": [{"id":"a","type":"substring","pattern":null,"description":"d","enabled":true}]}`, "missing field: pattern"},
		{"null in yaml patterns", "yaml", "rules:\n  - id: a\n    type: contains_all\n    patterns: [kubectl, ~]\n    description: d\n    enabled: true\n", "patterns[1] is null"},
		{"unknown type", "json", `{"rules": [{"id":"a","type":"regex","pattern":"x","description":"d","enabled":true}]}`, `unknown type "regex"`},
		{"trailing data", "json", `{"rules": []} {"rules": []}`, "unexpected data"},
		{"empty yaml", "yaml", ``, "empty document"},
		{"unknown yaml field", "yaml", "rules: []\nextra: 1\n", "not found"},
		{"bad format", "toml", `rules = []`, "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.doc), tt.format)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigRules_ErrorMentionsPath(t *testing.T) {
	path := writeRulesFile(t, "rules.json", `{"rules": 5}`)
	_, err := LoadConfigRules(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q should mention %s", err, path)
	}
}

func TestParseEnvRules(t *testing.T) {
	rules := ParseEnvRules("vault read|kubectl get secret")
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].ID != "env_custom_0" || rules[0].Pattern != "vault read" {
		t.Errorf("rules[0] = %+v", rules[0])
	}
	if rules[1].ID != "env_custom_1" || rules[1].Pattern != "kubectl get secret" {
		t.Errorf("rules[1] = %+v", rules[1])
	}
	for _, r := range rules {
		if r.Kind != MatchSubstring || !r.Enabled || r.Layer != LayerEnv {
			t.Errorf("rule %s = %+v", r.ID, r)
		}
	}
}

func TestParseEnvRules_IndexCountsEmptySegments(t *testing.T) {
	rules := ParseEnvRules(" a ||  | b|")
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].ID != "env_custom_0" || rules[0].Pattern != "a" {
		t.Errorf("rules[0] = %s/%q", rules[0].ID, rules[0].Pattern)
	}
	if rules[1].ID != "env_custom_3" || rules[1].Pattern != "b" {
		t.Errorf("rules[1] = %s/%q", rules[1].ID, rules[1].Pattern)
	}
}

func TestParseEnvRules_DescriptionKeepsRawSegment(t *testing.T) {
	rules := ParseEnvRules(" vault ")
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	if rules[0].Description != "Custom rule from env:  vault " {
		t.Errorf("description = %q", rules[0].Description)
	}
}

func TestParseEnvRules_Empty(t *testing.T) {
	for _, raw := range []string{"", "|", " | | "} {
		if rules := ParseEnvRules(raw); len(rules) != 0 {
			t.Errorf("ParseEnvRules(%q) = %d rules, want 0", raw, len(rules))
		}
	}
}

func TestMarshalDocument_RoundTrip(t *testing.T) {
	in := []Rule{
		Substring("a", "Substring", ".env"),
		ContainsAll("b", "Empty all"),
		ContainsAny("c", "Any", "x", "y"),
	}
	in[2].Enabled = false

	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			data, err := MarshalDocument(in, format)
			if err != nil {
				t.Fatalf("MarshalDocument: %v", err)
			}
			out, err := ParseDocument(data, format)
			if err != nil {
				t.Fatalf("ParseDocument: %v\n%s", err, data)
			}
			if len(out) != len(in) {
				t.Fatalf("got %d rules, want %d", len(out), len(in))
			}
			if out[1].Kind != MatchContainsAll || len(out[1].Patterns) != 0 {
				t.Errorf("empty contains_all did not survive: %+v", out[1])
			}
			if out[2].Enabled {
				t.Error("disabled flag lost")
			}
			if out[0].Pattern != ".env" {
				t.Errorf("pattern = %q", out[0].Pattern)
			}
		})
	}
}
