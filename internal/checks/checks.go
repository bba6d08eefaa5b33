// Package checks runs the health checks behind `keygate check`.
package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/keygate/keygate/internal/host"
	"github.com/keygate/keygate/internal/rules"
	"github.com/keygate/keygate/internal/secretstore"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult represents the outcome of a single diagnostic check.
type CheckResult struct {
	Name        string `json:"name"`
	Status      string `json:"status"` // pass, fail, warn
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

// Report is a collection of check results.
type Report struct {
	Service string              `json:"service"`
	Stored  []secretstore.Entry `json:"-"`
	Results []CheckResult       `json:"results"`
}

// HasFailures returns true if any check failed.
func (r *Report) HasFailures() bool {
	for _, c := range r.Results {
		if c.Status == StatusFail {
			return true
		}
	}
	return false
}

// JSON returns the report as formatted JSON.
func (r *Report) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Env is everything the checks inspect.
type Env struct {
	Host      host.HostInfo
	Service   string
	Store     secretstore.Store // nil when opening failed
	StoreErr  error
	Engine    *rules.Engine
	RulesFile string
	Binary    string // hook binary expected on PATH

	LookPath func(string) (string, error)
	Getenv   func(string) string
}

// RunAll executes all checks and returns a report. Secrets are read once and
// shared by the checks that need them.
func RunAll(ctx context.Context, env Env) *Report {
	report := &Report{Service: env.Service}

	var entries []secretstore.Entry
	storeResult := CheckSecretStore(ctx, env, &entries)
	report.Stored = entries

	report.Results = append(report.Results,
		CheckPlatform(env.Host, env.Store),
		storeResult,
		CheckRuleEngine(env.Engine),
		CheckRulesFile(ctx, env.RulesFile),
		CheckGateSelfTest(env.Engine),
		CheckHookBinary(env.Binary, env.LookPath),
		CheckEnvLoaded(entries, env.Getenv),
	)
	return report
}

// CheckPlatform reports the host and warns when the store fell back to the
// encrypted file on a host with a native keychain.
func CheckPlatform(info host.HostInfo, store secretstore.Store) CheckResult {
	result := CheckResult{Name: "Platform"}
	native := info.NativeBackend()

	if store == nil {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s (native store: %s)", info, native)
		return result
	}

	if store.Name() == secretstore.BackendFile && native != secretstore.BackendFile {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s, using the encrypted file store instead of %s", info, native)
		if native == secretstore.BackendSecretTool {
			result.Remediation = "Install secret-tool (libsecret-tools) or set store.backend: file to silence this"
		} else {
			result.Remediation = "Set store.backend: keychain, or store.backend: file to silence this"
		}
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s, using the %s store", info, store.Name())
	return result
}

// CheckSecretStore verifies the store opens and holds secrets. Retrieved
// entries are written to out.
func CheckSecretStore(ctx context.Context, env Env, out *[]secretstore.Entry) CheckResult {
	result := CheckResult{Name: "Secret Store"}

	if env.StoreErr != nil || env.Store == nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("secret store unavailable: %v", env.StoreErr)
		if errors.Is(env.StoreErr, secretstore.ErrBackendUnavailable) {
			result.Remediation = "Install the keychain tool for your platform, or set store.backend: file"
		} else {
			result.Remediation = "Check store settings with: keygate config validate"
		}
		return result
	}

	entries, err := env.Store.RetrieveAll(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s store is not readable: %v", env.Store.Name(), err)
		result.Remediation = "Check permissions on the key index and store files under ~/.keychain"
		return result
	}
	*out = entries

	if len(entries) == 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s store is accessible but holds no secrets for service %q", env.Store.Name(), env.Service)
		result.Remediation = "Store secrets with: keygate setup --env-file <path>"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s store is accessible (%d secrets)", env.Store.Name(), len(entries))
	return result
}

// CheckRuleEngine reports how many rules each layer contributed.
func CheckRuleEngine(e *rules.Engine) CheckResult {
	result := CheckResult{Name: "Rule Engine"}

	counts := e.LayerCounts()
	var parts []string
	for _, l := range rules.Layers {
		parts = append(parts, fmt.Sprintf("%s: %d", l, counts[l]))
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d active rules (%s)", e.ActiveRulesCount(), strings.Join(parts, ", "))
	return result
}

// CheckRulesFile parses, validates, and lints the user rules document. A missing file is
// fine because the layer is optional.
func CheckRulesFile(ctx context.Context, path string) CheckResult {
	result := CheckResult{Name: "Rules File"}

	if path == "" {
		result.Status = StatusPass
		result.Message = "no rules file configured"
		return result
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("no rules file at %s (optional)", path)
		return result
	}

	loaded, err := rules.LoadConfigRules(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("rules file is ignored: %v", err)
		result.Remediation = "Fix the file, then check it with: keygate rules lint"
		return result
	}

	if problems := rules.ValidateRules(loaded); len(problems) > 0 {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%d invalid rule(s), first: %v", len(problems), problems[0])
		result.Remediation = "Fix the file, then check it with: keygate rules lint"
		return result
	}

	warnings, err := rules.Lint(ctx, loaded)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d rules loaded, lint failed: %v", len(loaded), err)
		return result
	}
	if len(warnings) > 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d rules loaded with %d lint warning(s): %s", len(loaded), len(warnings), warnings[0])
		result.Remediation = "See all warnings with: keygate rules lint"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d rules loaded from %s", len(loaded), path)
	return result
}

// selfTest pairs a command with the decision the gate must reach.
var selfTest = []struct {
	command string
	blocked bool
}{
	{"cat .env", true},
	{"grep PASSWORD ~", true},
	{"echo test", false},
	{"ls src/", false},
}

// CheckGateSelfTest runs known commands through the engine.
func CheckGateSelfTest(e *rules.Engine) CheckResult {
	result := CheckResult{Name: "Gate Self-Test"}

	var wrong []string
	for _, tc := range selfTest {
		if e.IsDangerous(tc.command) != tc.blocked {
			want := "allowed"
			if tc.blocked {
				want = "blocked"
			}
			wrong = append(wrong, fmt.Sprintf("%q should be %s", tc.command, want))
		}
	}

	if len(wrong) > 0 {
		result.Status = StatusFail
		result.Message = strings.Join(wrong, "; ")
		result.Remediation = "Review disabled or overly broad rules with: keygate rules list"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d known commands decided correctly", len(selfTest))
	return result
}

// CheckHookBinary verifies the hook command can be found on PATH.
func CheckHookBinary(binary string, lookPath func(string) (string, error)) CheckResult {
	result := CheckResult{Name: "Hook Binary"}

	path, err := lookPath(binary)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not found on PATH", binary)
		result.Remediation = "Install keygate on PATH so the PreToolUse hook can run:\n" +
			"  go install github.com/keygate/keygate@latest"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("hook binary at %s", path)
	return result
}

// CheckEnvLoaded reports whether stored secrets are exported in the current
// environment.
func CheckEnvLoaded(entries []secretstore.Entry, getenv func(string) string) CheckResult {
	result := CheckResult{Name: "Environment"}

	if len(entries) == 0 {
		result.Status = StatusPass
		result.Message = "no stored secrets to load"
		return result
	}

	loaded := 0
	for _, e := range entries {
		if getenv(e.Key) != "" {
			loaded++
		}
	}

	switch {
	case loaded == len(entries):
		result.Status = StatusPass
		result.Message = fmt.Sprintf("all %d stored secrets are loaded", loaded)
	case loaded == 0:
		result.Status = StatusWarn
		result.Message = "stored secrets are not loaded in this shell"
		result.Remediation = `Load them with: eval "$(keygate load --format export)"`
	default:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d of %d stored secrets are loaded", loaded, len(entries))
		result.Remediation = `Reload with: eval "$(keygate load --format export)"`
	}
	return result
}
