package vault

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Klingon-tech/vaultpass/internal/storage"
)

// testSecretStore runs the shared test suite against a SecretStore.
func testSecretStore(t *testing.T, s SecretStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyStore", func(t *testing.T) {
		has, err := s.Has(ctx)
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if has {
			t.Error("Has() = true on empty store")
		}
		if _, err := s.Get(ctx); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutGetOverwrite", func(t *testing.T) {
		if err := s.Put(ctx, []byte("seed-A"), DefaultPolicy); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		if err := s.Put(ctx, []byte("seed-B"), DefaultPolicy); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		got, err := s.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if string(got) != "seed-B" {
			t.Errorf("Get() = %q, want seed-B", got)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		if err := s.Delete(ctx); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if err := s.Delete(ctx); err != nil {
			t.Fatalf("second Delete() error: %v", err)
		}
		if has, _ := s.Has(ctx); has {
			t.Error("Has() = true after Delete()")
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := s.Put(cctx, []byte("seed-C"), DefaultPolicy); err == nil {
			t.Error("Put() with cancelled context should fail")
		}
		if has, _ := s.Has(ctx); has {
			t.Error("cancelled Put() must not store anything")
		}
	})
}

func TestFileStore(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), testSealer(t))
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	testSecretStore(t, fs)
}

func TestSealedStore_Memory(t *testing.T) {
	db := storage.NewPrefixDB(storage.NewMemory(), []byte("vault/"))
	testSecretStore(t, NewSealedStore(db, testSealer(t)))
}

func TestSealedStore_Badger(t *testing.T) {
	bdb, err := storage.NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer bdb.Close()
	testSecretStore(t, NewSealedStore(storage.NewPrefixDB(bdb, []byte("vault/")), testSealer(t)))
}

func TestSealedStore_NoPlaintextAtRest(t *testing.T) {
	inner := storage.NewMemory()
	s := NewSealedStore(storage.NewPrefixDB(inner, []byte("vault/")), testSealer(t))
	if err := s.Put(context.Background(), []byte("seed-A"), DefaultPolicy); err != nil {
		t.Fatal(err)
	}
	inner.ForEach(nil, func(key, value []byte) error {
		if bytes.Contains(value, []byte("seed-A")) {
			t.Errorf("plaintext found under %s", key)
		}
		return nil
	})
}

func TestSealedStore_StoredAt(t *testing.T) {
	s := NewSealedStore(storage.NewMemory(), testSealer(t))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if _, err := s.StoredAt(); !errors.Is(err, ErrNotFound) {
		t.Errorf("StoredAt() on empty store error = %v, want ErrNotFound", err)
	}
	s.Put(context.Background(), []byte("seed-A"), DefaultPolicy)
	got, err := s.StoredAt()
	if err != nil {
		t.Fatalf("StoredAt() error: %v", err)
	}
	if !got.Equal(fixed) {
		t.Errorf("StoredAt() = %v, want %v", got, fixed)
	}
}

func TestSealedStore_PolicyMismatch(t *testing.T) {
	sealer := testSealer(t)
	sealed, err := sealer.Seal([]byte("seed-A"), Policy{RequireAuth: false})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		meta []byte
	}{
		{"policy differs", []byte(`{"version":1,"require_auth":true}`)},
		{"meta missing", nil},
		{"meta corrupt", []byte("{not json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := storage.NewMemory()
			db.Put(secretKey, sealed)
			if tt.meta != nil {
				db.Put(metaKey, tt.meta)
			}
			s := NewSealedStore(db, sealer)

			got, err := s.Get(context.Background())
			if !errors.Is(err, ErrUnseal) {
				t.Errorf("Get() error = %v, want ErrUnseal", err)
			}
			if got != nil {
				t.Error("no secret may be returned on a policy mismatch")
			}
		})
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, testSealer(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Put(context.Background(), []byte("seed-A"), DefaultPolicy); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, SecretFile))
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("keystore mode = %o, want 600", perm)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the keystore file, found %d entries", len(entries))
	}
}

func TestFileStore_Corrupted(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir, testSealer(t))
	os.WriteFile(fs.Path(), []byte("{not json"), 0600)

	if _, err := fs.Get(context.Background()); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on corrupted file error = %v, want parse error", err)
	}
}

func TestFileStore_PolicyMismatch(t *testing.T) {
	dir := t.TempDir()
	sealer := testSealer(t)
	fs, _ := NewFileStore(dir, sealer)

	sealed, _ := sealer.Seal([]byte("seed-A"), Policy{RequireAuth: false})
	fs.writeFile(&secretFile{Version: sealVersion, RequireAuth: true, Sealed: sealed})

	if _, err := fs.Get(context.Background()); !errors.Is(err, ErrUnseal) {
		t.Errorf("Get() error = %v, want ErrUnseal", err)
	}
}

func TestFileStore_UnsupportedVersion(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir(), testSealer(t))
	fs.writeFile(&secretFile{Version: 99})
	if _, err := fs.Get(context.Background()); err == nil {
		t.Error("expected error for unsupported version")
	}
}
