package rules

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGateEvaluate_Blocked(t *testing.T) {
	g := NewGate(NewWithRules(BuiltinRules()), nil, "")

	d := g.Evaluate(context.Background(), "cat .env")
	if !d.Blocked {
		t.Fatal("expected cat .env to be blocked")
	}
	if d.RuleID != "env_file_access" {
		t.Errorf("RuleID = %q, want env_file_access", d.RuleID)
	}
	if d.Layer != LayerBuiltin {
		t.Errorf("Layer = %q, want %q", d.Layer, LayerBuiltin)
	}
	if !strings.Contains(d.Reason, `"env_file_access"`) {
		t.Errorf("Reason = %q", d.Reason)
	}
	if d.InputHash == "" || d.Timestamp.IsZero() {
		t.Error("hash and timestamp should be set")
	}
}

func TestGateEvaluate_Allowed(t *testing.T) {
	e := NewWithRules(BuiltinRules())
	g := NewGate(e, nil, "")

	d := g.Evaluate(context.Background(), "echo hello")
	if d.Blocked {
		t.Fatalf("echo hello blocked by %s", d.RuleID)
	}
	if d.RuleID != "" {
		t.Errorf("RuleID = %q, want empty", d.RuleID)
	}
	if !strings.Contains(d.Reason, "no rule matched") {
		t.Errorf("Reason = %q", d.Reason)
	}
}

func TestGateEnforce(t *testing.T) {
	g := NewGate(NewWithRules(BuiltinRules()), nil, "")

	if err := g.Enforce(context.Background(), "ls src/"); err != nil {
		t.Errorf("Enforce(ls src/) = %v, want nil", err)
	}

	err := g.Enforce(context.Background(), "grep PASSWORD ~")
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Enforce error = %v, want *BlockedError", err)
	}
	if blocked.Rule.ID != "grep_password" {
		t.Errorf("Rule.ID = %q, want grep_password", blocked.Rule.ID)
	}
	if blocked.Command != "grep PASSWORD ~" {
		t.Errorf("Command = %q", blocked.Command)
	}
}

func TestGateLogsDecisions(t *testing.T) {
	cfg := DecisionLogConfig{
		Path:          filepath.Join(t.TempDir(), "decisions.jsonl"),
		FlushInterval: 50 * time.Millisecond,
	}
	logger, err := NewDecisionLogger(cfg)
	if err != nil {
		t.Fatalf("NewDecisionLogger: %v", err)
	}

	e := NewWithRules(BuiltinRules())
	g := NewGate(e, logger, "hook")
	g.Evaluate(context.Background(), "cat .env")
	g.Evaluate(context.Background(), "echo hello")

	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := SearchDecisions(cfg.Path, DecisionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Decision != DecisionBlock || entries[0].Rule != "env_file_access" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Decision != DecisionAllow {
		t.Errorf("entries[1].Decision = %q", entries[1].Decision)
	}
	for _, entry := range entries {
		if entry.Caller != "hook" {
			t.Errorf("Caller = %q, want hook", entry.Caller)
		}
		if entry.RulesVer != e.Version() {
			t.Errorf("RulesVer = %q, want %q", entry.RulesVer, e.Version())
		}
	}
}

func TestGateSkipsLoggingWhenContextDone(t *testing.T) {
	cfg := DecisionLogConfig{Path: filepath.Join(t.TempDir(), "decisions.jsonl")}
	logger, err := NewDecisionLogger(cfg)
	if err != nil {
		t.Fatalf("NewDecisionLogger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGate(NewWithRules(BuiltinRules()), logger, "hook")
	if err := g.Enforce(ctx, "cat .env"); err == nil {
		t.Error("a cancelled context must not change the decision")
	}

	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	entries, err := SearchDecisions(cfg.Path, DecisionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestHashCommandStable(t *testing.T) {
	if hashCommand("cat .env") != hashCommand("cat .env") {
		t.Error("hash should be deterministic")
	}
	if hashCommand("cat .env") == hashCommand("cat .env ") {
		t.Error("different commands should hash differently")
	}
	if len(hashCommand("x")) != 16 {
		t.Errorf("hash length = %d, want 16", len(hashCommand("x")))
	}
}
