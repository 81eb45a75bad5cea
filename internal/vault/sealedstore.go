package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/vaultpass/internal/storage"
)

// Keys inside the vault namespace.
var (
	secretKey = []byte("wallet_seed")
	metaKey   = []byte("wallet_seed/meta")
)

// secretMeta is stored next to the sealed secret. It holds nothing secret.
type secretMeta struct {
	Version     int       `json:"version"`
	StoredAt    time.Time `json:"stored_at"`
	RequireAuth bool      `json:"require_auth"`
}

// SealedStore keeps the sealed secret in a key-value database, typically a
// storage.PrefixDB scoped to "vault/".
type SealedStore struct {
	db     storage.DB
	sealer *Sealer
	now    func() time.Time
}

// NewSealedStore creates a SecretStore backed by db.
func NewSealedStore(db storage.DB, sealer *Sealer) *SealedStore {
	return &SealedStore{db: db, sealer: sealer, now: time.Now}
}

// Put seals secret and writes it with its metadata in one batch.
func (s *SealedStore) Put(ctx context.Context, secret []byte, policy Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(secret, policy)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(secretMeta{
		Version:     sealVersion,
		StoredAt:    s.now().UTC(),
		RequireAuth: policy.RequireAuth,
	})
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	if batcher, ok := s.db.(storage.Batcher); ok {
		b := batcher.NewBatch()
		if err := b.Put(secretKey, sealed); err != nil {
			return err
		}
		if err := b.Put(metaKey, meta); err != nil {
			return err
		}
		return b.Commit()
	}
	if err := s.db.Put(secretKey, sealed); err != nil {
		return err
	}
	return s.db.Put(metaKey, meta)
}

// Get reads and unseals the secret. The policy sealed with it must match
// the recorded metadata.
func (s *SealedStore) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sealed, err := s.db.Get(secretKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read sealed secret: %w", err)
	}
	meta, err := s.readMeta()
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: missing metadata", ErrUnseal)
	}
	if err != nil {
		return nil, err
	}
	secret, policy, err := s.sealer.Open(sealed)
	if err != nil {
		return nil, err
	}
	if policy.RequireAuth != meta.RequireAuth {
		clear(secret)
		return nil, fmt.Errorf("%w: policy mismatch", ErrUnseal)
	}
	return secret, nil
}

// Has reports whether a sealed secret is present.
func (s *SealedStore) Has(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.db.Has(secretKey)
}

// Delete erases the secret and its metadata. Both keys share the
// secretKey prefix, so a purging database drops every stored copy.
func (s *SealedStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.Purge(s.db, secretKey); err != nil {
		return fmt.Errorf("purge sealed secret: %w", err)
	}
	return nil
}

// StoredAt returns when the current secret was stored.
func (s *SealedStore) StoredAt() (time.Time, error) {
	meta, err := s.readMeta()
	if err != nil {
		return time.Time{}, err
	}
	return meta.StoredAt, nil
}

func (s *SealedStore) readMeta() (*secretMeta, error) {
	raw, err := s.db.Get(metaKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	var meta secretMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: parse meta: %w", ErrUnseal, err)
	}
	return &meta, nil
}
