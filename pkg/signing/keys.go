// Package signing implements the Ed25519 signature engine shared by the hub
// and the validator agent.
//
// Public keys and signatures travel on the wire as base58 strings. Verification
// never returns an error: malformed keys or signatures simply fail to verify,
// because adversarial input is an expected outcome for the callers.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// PublicKey is a raw 32-byte Ed25519 public key.
type PublicKey []byte

// ParsePublicKey decodes a base58 public key and checks its length.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key length: got %d, want %d", len(raw), ed25519.PublicKeySize)
	}
	return PublicKey(raw), nil
}

// String returns the base58 encoding used on the wire and as the durable fingerprint.
func (pk PublicKey) String() string {
	return base58.Encode(pk)
}

// Equal reports whether two public keys are byte-identical.
func (pk PublicKey) Equal(other PublicKey) bool {
	return ed25519.PublicKey(pk).Equal(ed25519.PublicKey(other))
}

// Signature is a raw 64-byte Ed25519 signature.
type Signature []byte

// ParseSignature decodes a signature given either as base58 or as a JSON
// byte array (e.g. "[12,34,...]").
func ParseSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	var raw []byte
	if strings.HasPrefix(s, "[") {
		b, err := decodeByteArray(s)
		if err != nil {
			return nil, fmt.Errorf("invalid signature: %w", err)
		}
		raw = b
	} else {
		b, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base58 signature: %w", err)
		}
		raw = b
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature length: got %d, want %d", len(raw), ed25519.SignatureSize)
	}
	return Signature(raw), nil
}

func (s Signature) String() string {
	return base58.Encode(s)
}

// KeyPair holds a validator's signing key. The private half never leaves the agent.
type KeyPair struct {
	public  PublicKey
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh random keypair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return &KeyPair{public: PublicKey(pub), private: priv}, nil
}

// KeyPairFromSecret builds a keypair from either a 32-byte seed or a 64-byte
// secret key (seed followed by the public key). For the 64-byte form the
// embedded public key must match the one derived from the seed.
func KeyPairFromSecret(secret []byte) (*KeyPair, error) {
	switch len(secret) {
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(secret)
		return &KeyPair{public: PublicKey(priv.Public().(ed25519.PublicKey)), private: priv}, nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
		derived := priv.Public().(ed25519.PublicKey)
		if !derived.Equal(ed25519.PublicKey(secret[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("secret key is inconsistent: embedded public key does not match seed")
		}
		return &KeyPair{public: PublicKey(derived), private: priv}, nil
	default:
		return nil, fmt.Errorf("invalid secret key length: got %d, want %d or %d", len(secret), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// ParseSecretKey accepts a secret key either as a JSON byte array
// (e.g. "[12,34,...]") or as a base58 string.
func ParseSecretKey(s string) (*KeyPair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("secret key is empty")
	}

	if strings.HasPrefix(s, "[") {
		raw, err := decodeByteArray(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse secret key: %w", err)
		}
		return KeyPairFromSecret(raw)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse secret key as base58: %w", err)
	}
	return KeyPairFromSecret(raw)
}

// PublicKey returns the public half of the keypair.
func (kp *KeyPair) PublicKey() PublicKey {
	return kp.public
}

// Sign signs message with the keypair's private key.
func (kp *KeyPair) Sign(message []byte) Signature {
	return Sign(message, kp.private)
}

// SecretJSON renders the 64-byte secret key as a JSON byte array, the format
// accepted by ParseSecretKey and the validator's VIGIL_SECRET_KEY.
func (kp *KeyPair) SecretJSON() string {
	ints := make([]int, len(kp.private))
	for i, b := range kp.private {
		ints[i] = int(b)
	}
	out, _ := json.Marshal(ints)
	return string(out)
}

// decodeByteArray parses a JSON array of integers in [0, 255].
// []byte unmarshals from a base64 string, so it goes through []int.
func decodeByteArray(s string) ([]byte, error) {
	var ints []int
	if err := json.Unmarshal([]byte(s), &ints); err != nil {
		return nil, fmt.Errorf("not a JSON byte array: %w", err)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}
	return raw, nil
}
