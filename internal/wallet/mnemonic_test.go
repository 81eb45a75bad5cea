package wallet

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/tyler-smith/go-bip39"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}

	words := strings.Fields(mnemonic)
	if len(words) != MnemonicWords {
		t.Errorf("word count = %d, want %d", len(words), MnemonicWords)
	}
}

func TestGenerateMnemonic_Unique(t *testing.T) {
	m1, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	m2, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}

	if m1 == m2 {
		t.Error("two generated mnemonics should not be identical")
	}
}

func TestGenerateMnemonicFrom_RoundTrip(t *testing.T) {
	entropies := [][]byte{
		make([]byte, 16),
		bytes.Repeat([]byte{0xff}, 16),
		bytes.Repeat([]byte{0x7f}, 16),
		[]byte("0123456789abcdef"),
	}

	for _, entropy := range entropies {
		mnemonic, err := GenerateMnemonicFrom(bytes.NewReader(entropy))
		if err != nil {
			t.Fatalf("GenerateMnemonicFrom(%x) error: %v", entropy, err)
		}
		if !ValidateMnemonic(mnemonic) {
			t.Errorf("mnemonic for entropy %x should validate", entropy)
		}
		got, err := bip39.EntropyFromMnemonic(mnemonic)
		if err != nil {
			t.Fatalf("EntropyFromMnemonic() error: %v", err)
		}
		if !bytes.Equal(got, entropy) {
			t.Errorf("entropy round trip = %x, want %x", got, entropy)
		}
	}
}

func TestGenerateMnemonicFrom_ZeroEntropy(t *testing.T) {
	mnemonic, err := GenerateMnemonicFrom(bytes.NewReader(make([]byte, 16)))
	if err != nil {
		t.Fatalf("GenerateMnemonicFrom() error: %v", err)
	}
	if mnemonic != testMnemonic {
		t.Errorf("mnemonic = %q, want %q", mnemonic, testMnemonic)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("device not ready")
}

func TestGenerateMnemonicFrom_EntropyFailure(t *testing.T) {
	tests := []struct {
		name string
		r    io.Reader
	}{
		{"nil reader", nil},
		{"failing reader", failingReader{}},
		{"short reader", bytes.NewReader(make([]byte, 8))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mnemonic, err := GenerateMnemonicFrom(tt.r)
			if !errors.Is(err, ErrEntropyUnavailable) {
				t.Errorf("error = %v, want ErrEntropyUnavailable", err)
			}
			if mnemonic != "" {
				t.Errorf("mnemonic = %q, want empty on failure", mnemonic)
			}
		})
	}
}

func TestValidateMnemonic(t *testing.T) {
	words := strings.Fields(testMnemonic)

	tests := []struct {
		name     string
		mnemonic string
		valid    bool
	}{
		{"valid 12-word BIP-39", testMnemonic, true},
		{"extra whitespace", "  " + strings.Join(words, "   ") + "\n", true},
		{"upper case", strings.ToUpper(testMnemonic), true},
		{"11 words", strings.Join(words[:11], " "), false},
		{"13 words", testMnemonic + " abandon", false},
		{
			name:     "valid 24-word phrase is rejected",
			mnemonic: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art",
			valid:    false,
		},
		{"unknown word", strings.Join(append(append([]string{}, words[:11]...), "notaword"), " "), false},
		{"checksum broken by substitution", strings.Join(append(append([]string{}, words[:11]...), "abandon"), " "), false},
		{"empty string", "", false},
		{"random words", "not a valid mnemonic phrase at all", false},
		{"single word", "abandon", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateMnemonic(tt.mnemonic); got != tt.valid {
				t.Errorf("ValidateMnemonic() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestNormalizeMnemonic(t *testing.T) {
	got := NormalizeMnemonic("  Abandon\tABOUT \n zoo ")
	if got != "abandon about zoo" {
		t.Errorf("NormalizeMnemonic() = %q", got)
	}
}
