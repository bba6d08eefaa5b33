package secretstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// FileStore keeps secrets in an AES-256-GCM encrypted JSON file.
type FileStore struct {
	path string
	key  [32]byte
	mu   sync.Mutex
}

// NewFileStore returns a store backed by the encrypted file at path. The key
// is bound to this machine, the current user, and service, so the file cannot
// simply be copied elsewhere.
func NewFileStore(path, service string) (*FileStore, error) {
	key, err := deriveKey(service)
	if err != nil {
		return nil, fmt.Errorf("deriving encryption key: %w", err)
	}
	return &FileStore{path: path, key: key}, nil
}

// NewFileStoreWithKey returns a FileStore with a caller-supplied key.
func NewFileStoreWithKey(path string, key [32]byte) *FileStore {
	return &FileStore{path: path, key: key}
}

func (f *FileStore) Store(_ context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if secrets == nil {
		secrets = make(map[string]string)
	}
	secrets[key] = value
	return f.save(secrets)
}

func (f *FileStore) Retrieve(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	v, ok := secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *FileStore) RetrieveAll(_ context.Context) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return sortedEntries(secrets), nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if _, ok := secrets[key]; !ok {
		return ErrNotFound
	}
	delete(secrets, key)
	return f.save(secrets)
}

func (f *FileStore) Name() string {
	return BackendFile
}

// load reads and decrypts the file. Must be called with mu held.
func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	plaintext, err := f.decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret store: %w", err)
	}

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secret store: %w", err)
	}
	return secrets, nil
}

// save encrypts and writes the file. Must be called with mu held.
func (f *FileStore) save(secrets map[string]string) error {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshalling secret store: %w", err)
	}

	ciphertext, err := f.encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypting secret store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secret store directory: %w", err)
	}
	return os.WriteFile(f.path, ciphertext, 0o600)
}

func (f *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := f.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (f *FileStore) decrypt(data []byte) ([]byte, error) {
	gcm, err := f.aead()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (f *FileStore) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(f.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// deriveKey expands machine id and user name into a 256-bit key with
// HKDF-SHA256, using the service name as context.
func deriveKey(service string) ([32]byte, error) {
	var key [32]byte

	machineID, err := readMachineID()
	if err != nil {
		return key, fmt.Errorf("reading machine id: %w", err)
	}

	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("LOGNAME")
	}
	if username == "" {
		username = "keygate-user"
	}

	r := hkdf.New(sha256.New, []byte(machineID+":"+username), []byte("keygate-secretstore"), []byte(service))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// readMachineID reads /etc/machine-id (systemd) or falls back to hostname.
func readMachineID() (string, error) {
	if data, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	return os.Hostname()
}
