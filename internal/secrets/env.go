// Package secrets reads .env files, classifies sensitive variables, and
// renders stored secrets for shells.
package secrets

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/subosito/gotenv"
)

// Secret is one variable read from a .env file.
type Secret struct {
	Key       string
	Value     string
	Sensitive bool
}

// SensitiveKeywords mark a variable as sensitive when its lower-cased name
// contains any of them.
var SensitiveKeywords = []string{
	"password", "secret", "key", "token", "api_key",
	"private", "credential", "auth", "oauth", "jwt",
	"encryption", "cipher", "hash", "salt",
}

// IsSensitive reports whether a variable name looks like it holds a secret.
func IsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ParseEnvFile reads a .env file and returns its variables sorted by key.
// Unquoted and double-quoted values expand $VAR and ${VAR}, preferring the
// process environment over earlier lines. Single-quoted values and \$ are
// literal.
func ParseEnvFile(path string) ([]Secret, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening env file: %w", err)
	}
	defer f.Close()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing env file %s: %w", path, err)
	}

	secrets := make([]Secret, 0, len(env))
	for k, v := range env {
		secrets = append(secrets, Secret{Key: k, Value: v, Sensitive: IsSensitive(k)})
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Key < secrets[j].Key })
	return secrets, nil
}

// ParseKeyList splits a comma-separated key filter. An empty filter yields nil.
func ParseKeyList(filter string) []string {
	if strings.TrimSpace(filter) == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(filter, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// FilterKeys keeps only secrets whose key appears in the comma-separated
// filter. An empty filter keeps everything.
func FilterKeys(secrets []Secret, filter string) []Secret {
	keys := ParseKeyList(filter)
	if keys == nil {
		return secrets
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	var out []Secret
	for _, s := range secrets {
		if want[s.Key] {
			out = append(out, s)
		}
	}
	return out
}

// SensitiveOnly returns the secrets flagged as sensitive.
func SensitiveOnly(secrets []Secret) []Secret {
	var out []Secret
	for _, s := range secrets {
		if s.Sensitive {
			out = append(out, s)
		}
	}
	return out
}

// Mask hides all but the first and last two characters of value.
func Mask(value string) string {
	r := []rune(value)
	if len(r) <= 4 {
		return "****"
	}
	return string(r[:2]) + "..." + string(r[len(r)-2:])
}
