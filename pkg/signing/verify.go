package signing

import "crypto/ed25519"

// Sign produces a deterministic Ed25519 signature over message.
func Sign(message []byte, privateKey ed25519.PrivateKey) Signature {
	return Signature(ed25519.Sign(privateKey, message))
}

// Verify reports whether signature is a valid signature of message by publicKey.
// Wrong-length keys or signatures return false.
func Verify(message []byte, signature Signature, publicKey PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// VerifyEncoded verifies a signature (base58 or JSON byte array) against a
// base58 public key. Any decoding failure counts as "not verified".
func VerifyEncoded(message string, signature string, publicKey string) bool {
	pk, err := ParsePublicKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := ParseSignature(signature)
	if err != nil {
		return false
	}
	return Verify([]byte(message), sig, pk)
}
