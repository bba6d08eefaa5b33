package secretstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// keyIndex is a sorted newline-separated list of keys stored for a service.
// Keychain tools cannot enumerate a service, so the index is the source of
// truth for RetrieveAll.
type keyIndex struct {
	path string
	mu   sync.Mutex
}

func newKeyIndex(dir, service string) *keyIndex {
	return &keyIndex{path: filepath.Join(dir, service+".keys")}
}

func (x *keyIndex) keys() ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.load()
}

func (x *keyIndex) add(key string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	keys, err := x.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k == key {
			return nil
		}
	}
	keys = append(keys, key)
	sort.Strings(keys)
	return x.save(keys)
}

func (x *keyIndex) remove(key string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	keys, err := x.load()
	if err != nil {
		return err
	}
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	if len(out) == len(keys) {
		return nil
	}
	return x.save(out)
}

// load must be called with mu held.
func (x *keyIndex) load() ([]string, error) {
	data, err := os.ReadFile(x.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading key index: %w", err)
	}

	var keys []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			keys = append(keys, line)
		}
	}
	return keys, nil
}

// save must be called with mu held.
func (x *keyIndex) save(keys []string) error {
	if err := os.MkdirAll(filepath.Dir(x.path), 0o700); err != nil {
		return fmt.Errorf("creating key index directory: %w", err)
	}
	content := strings.Join(keys, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(x.path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing key index: %w", err)
	}
	return nil
}
