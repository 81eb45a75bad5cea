package wallet

import "errors"

// KeyMaterial is a private/public key pair derived for a single operation.
// The holder must call Zero as soon as the operation completes.
type KeyMaterial struct {
	// PrivateKey is the 32-byte secp256k1 scalar.
	PrivateKey []byte
	// PublicKey is the 33-byte compressed public key.
	PublicKey []byte
}

var errKeyMaterialSerialize = errors.New("key material is not serializable")

// Zero overwrites the private and public key bytes.
func (k *KeyMaterial) Zero() {
	if k == nil {
		return
	}
	clear(k.PrivateKey)
	clear(k.PublicKey)
}

// String keeps key bytes out of formatted output and logs.
func (k *KeyMaterial) String() string {
	return "KeyMaterial{redacted}"
}

// GoString keeps key bytes out of %#v output.
func (k *KeyMaterial) GoString() string {
	return k.String()
}

// MarshalJSON always fails.
func (k *KeyMaterial) MarshalJSON() ([]byte, error) {
	return nil, errKeyMaterialSerialize
}

// MarshalText always fails.
func (k *KeyMaterial) MarshalText() ([]byte, error) {
	return nil, errKeyMaterialSerialize
}
