package trust

import (
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/vaultpass/internal/build"
	"github.com/Klingon-tech/vaultpass/pkg/crypto"
)

// IntegrityStatus is the outcome of the integrity check.
type IntegrityStatus string

const (
	IntegrityPassed  IntegrityStatus = "passed"
	IntegrityFailed  IntegrityStatus = "failed"
	IntegritySkipped IntegrityStatus = "skipped"
)

// HashFunc computes the hex hash of the running artifact.
type HashFunc func() (string, error)

var errNoReference = errors.New("integrity reference hash not embedded at build time")

// ExecutableHash returns the hex BLAKE3-256 hash of the running binary.
func ExecutableHash() (string, error) {
	path, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return ArtifactHash(path, build.IntegrityHash)
}

// ArtifactHash hashes the file at path with every copy of the embedded
// reference read as build.IntegritySentinel(), so a binary hashes the same
// before and after its reference is patched in.
func ArtifactHash(path, embedded string) (string, error) {
	sentinel := build.IntegritySentinel()
	if len(embedded) != len(sentinel) {
		sum, err := crypto.HashFile(path)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(sum[:]), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.ReplaceAll(data, []byte(embedded), []byte(sentinel))
	sum := crypto.Hash(data)
	return hex.EncodeToString(sum[:]), nil
}

// EmbedReference replaces the single sentinel in a linked binary with its
// reference hash.
func EmbedReference(binary []byte, reference string) ([]byte, error) {
	sentinel := []byte(build.IntegritySentinel())
	if len(reference) != len(sentinel) {
		return nil, fmt.Errorf("reference must be %d hex characters", len(sentinel))
	}
	if _, err := hex.DecodeString(reference); err != nil {
		return nil, fmt.Errorf("reference is not hex: %w", err)
	}
	switch n := bytes.Count(binary, sentinel); n {
	case 0:
		return nil, errors.New("integrity sentinel not found; link it with -ldflags -X")
	case 1:
	default:
		return nil, fmt.Errorf("integrity sentinel found %d times", n)
	}
	return bytes.Replace(binary, sentinel, []byte(reference), 1), nil
}

// CheckIntegrity compares compute() against the expected reference.
//
// A missing or placeholder reference fails in a release build and is
// skipped in a development build. A compute error always fails. The
// returned error explains a failure or skip.
func CheckIntegrity(expected string, compute HashFunc, dev bool) (IntegrityStatus, error) {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" || expected == strings.ToLower(build.PlaceholderIntegrityHash) {
		if dev {
			return IntegritySkipped, errNoReference
		}
		return IntegrityFailed, errNoReference
	}
	if compute == nil {
		return IntegrityFailed, errors.New("no integrity hash function")
	}

	actual, err := compute()
	if err != nil {
		return IntegrityFailed, fmt.Errorf("integrity check error: %w", err)
	}
	actual = strings.ToLower(strings.TrimSpace(actual))
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return IntegrityFailed, errors.New("integrity check failed, binary may be tampered")
	}
	return IntegrityPassed, nil
}

// IsIntegrityValid reports whether the integrity check passed or was
// skipped.
func IsIntegrityValid(expected string, compute HashFunc, dev bool) bool {
	status, _ := CheckIntegrity(expected, compute, dev)
	return status != IntegrityFailed
}
