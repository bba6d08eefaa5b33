// Package secretstore keeps named secrets for a service in the OS keychain or
// an encrypted file.
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Entry is a stored secret.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store abstracts secret storage scoped to a single service name.
type Store interface {
	// Store saves or replaces the value for key.
	Store(ctx context.Context, key, value string) error

	// Retrieve returns the value for key. Returns ErrNotFound if not stored.
	Retrieve(ctx context.Context, key string) (string, error)

	// RetrieveAll returns every readable secret sorted by key.
	RetrieveAll(ctx context.Context) ([]Entry, error)

	// Delete removes key. Returns ErrNotFound if not stored.
	Delete(ctx context.Context, key string) error

	// Name returns the backend name for display.
	Name() string
}

var (
	// ErrNotFound is returned when a secret is not stored.
	ErrNotFound = errors.New("secret not found")

	// ErrBackendUnavailable is returned when a requested backend cannot run
	// on this machine.
	ErrBackendUnavailable = errors.New("secret store backend unavailable")
)

// Backend names accepted by Open.
const (
	BackendAuto       = "auto"
	BackendKeychain   = "keychain"
	BackendSecretTool = "secret-tool"
	BackendFile       = "file"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendAuto, BackendKeychain, BackendSecretTool, BackendFile}

// Options selects and configures a backend.
type Options struct {
	Backend  string // one of Backends; empty means auto
	Service  string // scopes every key
	Path     string // encrypted file for the file backend
	IndexDir string // directory holding <service>.keys for keychain backends
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Open returns the store for opts. With the auto backend the macOS keychain
// is preferred, then secret-tool, then the encrypted file.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Service == "" {
		return nil, errors.New("service name is required")
	}

	backend := opts.Backend
	if backend == "" {
		backend = BackendAuto
	}

	switch backend {
	case BackendAuto:
		for _, b := range []string{BackendKeychain, BackendSecretTool} {
			if s, err := openKeychain(b, opts); err == nil {
				slog.Debug("secret store backend detected", "backend", b)
				return s, nil
			}
		}
		slog.Debug("no native keychain found, using encrypted file store")
		return openFile(opts)
	case BackendKeychain, BackendSecretTool:
		return openKeychain(backend, opts)
	case BackendFile:
		return openFile(opts)
	default:
		return nil, fmt.Errorf("unknown secret store backend %q (want %s)", backend, strings.Join(Backends, ", "))
	}
}

func openKeychain(backend string, opts Options) (Store, error) {
	tool := toolFor(backend)
	if _, err := lookPath(tool.binary); err != nil {
		return nil, fmt.Errorf("%w: %s not found on PATH", ErrBackendUnavailable, tool.binary)
	}
	if opts.IndexDir == "" {
		return nil, errors.New("key index directory is required for keychain backends")
	}
	return NewKeychainStore(backend, opts.Service, opts.IndexDir, execRunner), nil
}

func openFile(opts Options) (Store, error) {
	if opts.Path == "" {
		return nil, errors.New("file path is required for the file backend")
	}
	return NewFileStore(opts.Path, opts.Service)
}

// validateKey rejects keys that cannot be stored in the key index.
func validateKey(key string) error {
	if key == "" {
		return errors.New("secret key must not be empty")
	}
	if strings.ContainsAny(key, "\r\n") {
		return fmt.Errorf("secret key %q must not contain line breaks", key)
	}
	return nil
}
