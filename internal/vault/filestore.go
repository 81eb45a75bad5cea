package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SecretFile is the keystore file name used by FileStore.
const SecretFile = "secret.vault"

// secretFile is the on-disk JSON format for the sealed secret.
type secretFile struct {
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	RequireAuth bool      `json:"require_auth"`
	Sealed      []byte    `json:"sealed"`
}

// FileStore keeps the sealed secret in a single JSON file.
type FileStore struct {
	dir    string
	sealer *Sealer
	now    func() time.Time
}

// NewFileStore creates a store that reads/writes SecretFile in dir.
// The directory is created if it doesn't exist.
func NewFileStore(dir string, sealer *Sealer) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	return &FileStore{dir: dir, sealer: sealer, now: time.Now}, nil
}

// Path returns the keystore file path.
func (f *FileStore) Path() string {
	return filepath.Join(f.dir, SecretFile)
}

// Put seals secret and replaces the keystore file.
func (f *FileStore) Put(ctx context.Context, secret []byte, policy Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sealed, err := f.sealer.Seal(secret, policy)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	sf := secretFile{
		Version:     sealVersion,
		CreatedAt:   f.now().UTC(),
		RequireAuth: policy.RequireAuth,
		Sealed:      sealed,
	}
	return f.writeFile(&sf)
}

// Get reads and unseals the secret.
func (f *FileStore) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sf, err := f.readFile()
	if err != nil {
		return nil, err
	}
	secret, policy, err := f.sealer.Open(sf.Sealed)
	if err != nil {
		return nil, err
	}
	if policy.RequireAuth != sf.RequireAuth {
		clear(secret)
		return nil, fmt.Errorf("%w: policy mismatch", ErrUnseal)
	}
	return secret, nil
}

// Has reports whether the keystore file exists.
func (f *FileStore) Has(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(f.Path())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat keystore: %w", err)
}

// Delete removes the keystore file. A missing file is not an error.
func (f *FileStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove keystore: %w", err)
	}
	return nil
}

// StoredAt returns when the current secret was stored.
func (f *FileStore) StoredAt() (time.Time, error) {
	sf, err := f.readFile()
	if err != nil {
		return time.Time{}, err
	}
	return sf.CreatedAt, nil
}

// writeFile writes to a temporary file and renames it over the keystore,
// so a crash never leaves a partial file behind.
func (f *FileStore) writeFile(sf *secretFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}
	tmp, err := os.CreateTemp(f.dir, SecretFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}
	if err := tmp.Chmod(0600); err != nil {
		cleanup()
		return fmt.Errorf("write keystore: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := os.Rename(tmpPath, f.Path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write keystore: %w", err)
	}
	return nil
}

func (f *FileStore) readFile() (*secretFile, error) {
	data, err := os.ReadFile(f.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	var sf secretFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	if sf.Version != sealVersion {
		return nil, fmt.Errorf("unsupported keystore version: %d", sf.Version)
	}
	return &sf, nil
}
