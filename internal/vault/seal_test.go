package vault

import (
	"bytes"
	"errors"
	"testing"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{0x5a}, DeviceKeySize))
	if err != nil {
		t.Fatalf("NewSealer() error: %v", err)
	}
	return s
}

func TestSealOpen_Roundtrip(t *testing.T) {
	s := testSealer(t)
	secret := []byte("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")

	sealed, err := s.Seal(secret, DefaultPolicy)
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if bytes.Contains(sealed, secret) {
		t.Fatal("sealed blob contains the plaintext")
	}

	opened, policy, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !bytes.Equal(opened, secret) {
		t.Errorf("opened = %q, want %q", opened, secret)
	}
	if policy != DefaultPolicy {
		t.Errorf("policy = %+v, want %+v", policy, DefaultPolicy)
	}
}

func TestSeal_DifferentEachTime(t *testing.T) {
	s := testSealer(t)
	a, _ := s.Seal([]byte("seed-A"), DefaultPolicy)
	b, _ := s.Seal([]byte("seed-A"), DefaultPolicy)
	if bytes.Equal(a, b) {
		t.Error("sealing twice should use different nonces")
	}
}

func TestSeal_OutputFormat(t *testing.T) {
	s := testSealer(t)
	secret := []byte("seed")
	sealed, _ := s.Seal(secret, DefaultPolicy)

	want := sealHeaderSize + 24 + len(secret) + 16
	if len(sealed) != want {
		t.Errorf("sealed length = %d, want %d", len(sealed), want)
	}
	if sealed[0] != sealVersion {
		t.Errorf("version byte = %d, want %d", sealed[0], sealVersion)
	}
	if sealed[1] != 1 {
		t.Errorf("policy byte = %d, want 1", sealed[1])
	}
}

func TestOpen_Tampering(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal([]byte("seed-A"), DefaultPolicy)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"policy downgrade", func(b []byte) []byte { b[1] = 0; return b }},
		{"unknown version", func(b []byte) []byte { b[0] = 9; return b }},
		{"flipped ciphertext", func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }},
		{"flipped nonce", func(b []byte) []byte { b[sealHeaderSize] ^= 0x01; return b }},
		{"truncated", func(b []byte) []byte { return b[:10] }},
		{"empty", func([]byte) []byte { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := tt.mutate(bytes.Clone(sealed))
			if _, _, err := s.Open(blob); !errors.Is(err, ErrUnseal) {
				t.Errorf("Open() error = %v, want ErrUnseal", err)
			}
		})
	}
}

func TestOpen_WrongDeviceKey(t *testing.T) {
	sealed, _ := testSealer(t).Seal([]byte("seed-A"), DefaultPolicy)

	other, err := NewSealer(bytes.Repeat([]byte{0x11}, DeviceKeySize))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := other.Open(sealed); !errors.Is(err, ErrUnseal) {
		t.Errorf("Open() with another device key error = %v, want ErrUnseal", err)
	}
}

func TestNewSealer_BadKey(t *testing.T) {
	for _, n := range []int{0, 16, 33} {
		if _, err := NewSealer(make([]byte, n)); err == nil {
			t.Errorf("NewSealer(%d bytes) should fail", n)
		}
	}
}
