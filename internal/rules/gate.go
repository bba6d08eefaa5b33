package rules

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"
)

// BlockedError is returned by Gate.Enforce when a command matches a rule.
type BlockedError struct {
	Command string
	Rule    Rule
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("command blocked by rule %s (%s): %s",
		e.Rule.ID, e.Rule.Layer, e.Rule.Description)
}

// Gate evaluates commands against an engine and records each decision.
type Gate struct {
	engine *Engine
	logger *DecisionLogger
	caller string
}

// NewGate creates a gate. logger may be nil to skip decision logging; caller
// is a free-form label stored with each logged decision.
func NewGate(engine *Engine, logger *DecisionLogger, caller string) *Gate {
	return &Gate{
		engine: engine,
		logger: logger,
		caller: caller,
	}
}

// Evaluate decides whether command is allowed. The decision is returned even
// when ctx is done, but it is only recorded while ctx is live.
func (g *Gate) Evaluate(ctx context.Context, command string) Decision {
	start := time.Now()

	d := Decision{
		Command:   command,
		InputHash: hashCommand(command),
		Timestamp: start,
	}

	if rule, ok := g.engine.FirstMatch(command); ok {
		d.Blocked = true
		d.RuleID = rule.ID
		d.Description = rule.Description
		d.Layer = rule.Layer
		d.Reason = fmt.Sprintf("matched %s rule %q: %s", rule.Layer, rule.ID, FormatMatch(rule))
	} else {
		d.Reason = fmt.Sprintf("no rule matched (%d active)", g.engine.ActiveRulesCount())
	}
	d.Duration = time.Since(start)

	switch {
	case g.logger == nil:
	case ctx.Err() != nil:
		slog.Debug("decision not recorded", "error", ctx.Err())
	default:
		if err := g.logger.Log(EntryFromDecision(d, g.engine.Version(), g.caller)); err != nil {
			slog.Warn("recording decision failed", "error", err)
		}
	}

	return d
}

// Enforce evaluates command and returns a *BlockedError if it is dangerous.
func (g *Gate) Enforce(ctx context.Context, command string) error {
	d := g.Evaluate(ctx, command)
	if !d.Blocked {
		return nil
	}
	return &BlockedError{
		Command: command,
		Rule: Rule{
			ID:          d.RuleID,
			Description: d.Description,
			Layer:       d.Layer,
		},
	}
}

// hashCommand produces a short SHA-256 hex digest of a command for audit logs.
func hashCommand(command string) string {
	sum := sha256.Sum256([]byte(command))
	return fmt.Sprintf("%x", sum[:8])
}
