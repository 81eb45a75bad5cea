package wallet

import (
	"bytes"
	"testing"
)

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(testMnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func TestNewMasterKey(t *testing.T) {
	master, err := NewMasterKey(testSeed(t))
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}

	if priv := master.PrivateKeyBytes(); len(priv) != 32 {
		t.Errorf("private key length = %d, want 32", len(priv))
	}
	if pub := master.PublicKeyBytes(); len(pub) != 33 {
		t.Errorf("public key length = %d, want 33", len(pub))
	}
}

func TestNewMasterKey_InvalidSeedLength(t *testing.T) {
	tests := []struct {
		name string
		seed []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 32)},
		{"too long", make([]byte, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMasterKey(tt.seed); err == nil {
				t.Error("expected error for invalid seed length")
			}
		})
	}
}

func TestDerivePrimary(t *testing.T) {
	master, err := NewMasterKey(testSeed(t))
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}

	primary, err := master.DerivePrimary()
	if err != nil {
		t.Fatalf("DerivePrimary() error: %v", err)
	}
	if priv := primary.PrivateKeyBytes(); len(priv) != 32 {
		t.Errorf("primary private key length = %d, want 32", len(priv))
	}
	if bytes.Equal(primary.PrivateKeyBytes(), master.PrivateKeyBytes()) {
		t.Error("primary key should differ from the master key")
	}

	// The master key is still usable after deriving.
	again, err := master.DerivePrimary()
	if err != nil {
		t.Fatalf("second DerivePrimary() error: %v", err)
	}
	if !bytes.Equal(primary.PrivateKeyBytes(), again.PrivateKeyBytes()) {
		t.Error("DerivePrimary() is not deterministic")
	}
}

func TestHDKey_PrivateKeyBytesIsCopy(t *testing.T) {
	master, err := NewMasterKey(testSeed(t))
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	priv := master.PrivateKeyBytes()
	clear(priv)
	if bytes.Equal(master.PrivateKeyBytes(), priv) {
		t.Error("clearing the returned slice should not affect the key")
	}
}

func TestHDKey_Zero(t *testing.T) {
	master, err := NewMasterKey(testSeed(t))
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	master.Zero()
	for _, b := range master.PrivateKeyBytes() {
		if b != 0 {
			t.Fatal("private key not zeroed")
		}
	}
}
