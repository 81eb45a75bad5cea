package wallet

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/Klingon-tech/vaultpass/pkg/crypto"
)

func pubKeyFor(t *testing.T, last byte) []byte {
	t.Helper()
	priv := make([]byte, crypto.PrivateKeySize)
	priv[len(priv)-1] = last
	pub, err := crypto.PublicKeyFromPrivate(priv)
	if err != nil {
		t.Fatalf("PublicKeyFromPrivate() error: %v", err)
	}
	return pub
}

func TestKeccakAddress_KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		last byte
		want Address
	}{
		{"private key 1", 1, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"},
		{"private key 2", 2, "0x2B5AD5c4795c026514f8317c7a215E218DcCD6cF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeccakAddress{}.Address(pubKeyFor(t, tt.last))
			if err != nil {
				t.Fatalf("Address() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Address() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBLAKE3Address(t *testing.T) {
	pub := pubKeyFor(t, 1)
	got, err := BLAKE3Address{}.Address(pub)
	if err != nil {
		t.Fatalf("Address() error: %v", err)
	}
	if !ValidAddress(got.String()) {
		t.Errorf("address %q has the wrong shape", got)
	}
	if got.String() != strings.ToLower(got.String()) {
		t.Errorf("address %q should be lower case", got)
	}
	h := crypto.Hash(pub)
	if want := "0x" + hex.EncodeToString(h[:AddressSize]); got.String() != want {
		t.Errorf("Address() = %s, want %s", got, want)
	}
}

func TestAddressSchemes_InvalidKey(t *testing.T) {
	schemes := []AddressScheme{KeccakAddress{}, BLAKE3Address{}}
	bad := [][]byte{nil, make([]byte, 33), make([]byte, 10)}

	for _, s := range schemes {
		for _, pub := range bad {
			if _, err := s.Address(pub); !errors.Is(err, ErrDerivation) {
				t.Errorf("%s.Address(%x) error = %v, want ErrDerivation", s.Name(), pub, err)
			}
		}
	}
}

func TestAddressSchemeByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", AddressKeccak, false},
		{AddressKeccak, AddressKeccak, false},
		{AddressBLAKE3, AddressBLAKE3, false},
		{"bech32", "", true},
	}

	for _, tt := range tests {
		s, err := AddressSchemeByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("AddressSchemeByName(%q) expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("AddressSchemeByName(%q) error: %v", tt.name, err)
		}
		if s.Name() != tt.want {
			t.Errorf("AddressSchemeByName(%q) = %s, want %s", tt.name, s.Name(), tt.want)
		}
	}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", true},
		{"0x7e5f4552091a69125d5dfcb7b8c2659029395bdf", true},
		{"7e5f4552091a69125d5dfcb7b8c2659029395bdf", false},
		{"0x7e5f4552091a69125d5dfcb7b8c2659029395bd", false},
		{"0x7e5f4552091a69125d5dfcb7b8c2659029395bdz", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidAddress(tt.in); got != tt.want {
			t.Errorf("ValidAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAddress_Equal(t *testing.T) {
	a := Address("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")
	b := Address("0x7e5f4552091a69125d5dfcb7b8c2659029395bdf")
	if !a.Equal(b) {
		t.Error("addresses differing only in case should be equal")
	}
	if Address("").IsZero() != true {
		t.Error("empty address should be zero")
	}
}
