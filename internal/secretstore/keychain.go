package secretstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes an external command with optional stdin and returns its
// stdout. A non-zero exit is an error.
type Runner func(ctx context.Context, stdin string, name string, args ...string) (string, error)

func execRunner(ctx context.Context, stdin string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// keychainTool knows the argument shapes of one keychain CLI.
type keychainTool struct {
	binary string
	store  func(service, key, value string) (args []string, stdin string)
	lookup func(service, key string) []string
	clear  func(service, key string) []string
}

// securityTool drives the macOS security command. The account is the service
// name and the keychain service is the secret key.
var securityTool = keychainTool{
	binary: "security",
	store: func(service, key, value string) ([]string, string) {
		return []string{"add-generic-password", "-a", service, "-s", key, "-w", value, "-U"}, ""
	},
	lookup: func(service, key string) []string {
		return []string{"find-generic-password", "-a", service, "-s", key, "-w"}
	},
	clear: func(service, key string) []string {
		return []string{"delete-generic-password", "-a", service, "-s", key}
	},
}

// secretTool drives libsecret's secret-tool. Values go through stdin.
var secretTool = keychainTool{
	binary: "secret-tool",
	store: func(service, key, value string) ([]string, string) {
		label := fmt.Sprintf("keygate %s %s", service, key)
		return []string{"store", "--label=" + label, "service", service, "key", key}, value
	},
	lookup: func(service, key string) []string {
		return []string{"lookup", "service", service, "key", key}
	},
	clear: func(service, key string) []string {
		return []string{"clear", "service", service, "key", key}
	},
}

func toolFor(backend string) keychainTool {
	if backend == BackendSecretTool {
		return secretTool
	}
	return securityTool
}

// KeychainStore keeps secrets in the OS keychain through its command-line
// tool and tracks stored keys in an index file.
type KeychainStore struct {
	backend string
	service string
	tool    keychainTool
	run     Runner
	index   *keyIndex
}

// NewKeychainStore returns a store for backend (BackendKeychain or
// BackendSecretTool). run executes the tool; tests pass a fake.
func NewKeychainStore(backend, service, indexDir string, run Runner) *KeychainStore {
	return &KeychainStore{
		backend: backend,
		service: service,
		tool:    toolFor(backend),
		run:     run,
		index:   newKeyIndex(indexDir, service),
	}
}

func (k *KeychainStore) Store(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	slog.Debug("storing secret", "key", key, "service", k.service, "backend", k.backend)

	args, stdin := k.tool.store(k.service, key, value)
	if _, err := k.run(ctx, stdin, k.tool.binary, args...); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return k.index.add(key)
}

func (k *KeychainStore) Retrieve(ctx context.Context, key string) (string, error) {
	out, err := k.run(ctx, "", k.tool.binary, k.tool.lookup(k.service, key)...)
	if err != nil {
		slog.Debug("keychain lookup failed", "key", key, "error", err)
		return "", ErrNotFound
	}
	return strings.TrimRight(out, "\r\n"), nil
}

// RetrieveAll reads every indexed key. Keys the keychain no longer holds are
// skipped.
func (k *KeychainStore) RetrieveAll(ctx context.Context) ([]Entry, error) {
	keys, err := k.index.keys()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value, err := k.Retrieve(ctx, key)
		if err != nil {
			slog.Debug("indexed key not readable, skipping", "key", key)
			continue
		}
		entries = append(entries, Entry{Key: key, Value: value})
	}
	slog.Debug("retrieved secrets", "service", k.service, "count", len(entries))
	return entries, nil
}

// Delete removes key from the keychain and the index. secret-tool exits zero
// for a missing item, so existence is checked first.
func (k *KeychainStore) Delete(ctx context.Context, key string) error {
	if _, err := k.Retrieve(ctx, key); errors.Is(err, ErrNotFound) {
		if err := k.index.remove(key); err != nil {
			return err
		}
		return ErrNotFound
	}

	if _, err := k.run(ctx, "", k.tool.binary, k.tool.clear(k.service, key)...); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return k.index.remove(key)
}

func (k *KeychainStore) Name() string {
	return k.backend
}
