// Package crypto provides the cryptographic primitives used by the wallet core.
package crypto

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// HashSize is the length of a BLAKE3-256 or Keccak-256 digest in bytes.
const HashSize = 32

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) [HashSize]byte {
	return blake3.Sum256(data)
}

// DomainHash hashes data under a domain tag and a counter:
// BLAKE3(tag || u32le(counter) || data).
func DomainHash(tag string, counter uint32, data []byte) [HashSize]byte {
	h := blake3.New()
	h.Write([]byte(tag))
	var ctr [4]byte
	binary.LittleEndian.PutUint32(ctr[:], counter)
	h.Write(ctr[:])
	h.Write(data)

	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Keccak256 computes the legacy Keccak-256 digest used by Ethereum.
func Keccak256(data ...[]byte) [HashSize]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashReader streams r through BLAKE3-256.
func HashReader(r io.Reader) ([HashSize]byte, error) {
	var out [HashSize]byte
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return out, fmt.Errorf("hash stream: %w", err)
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

// HashFile returns the BLAKE3-256 digest of the file at path.
func HashFile(path string) ([HashSize]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [HashSize]byte{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return HashReader(f)
}
