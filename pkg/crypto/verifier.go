// Package crypto provides the signature primitive the covenant engines
// consume: a Verifier that recovers the signing principal from a message and
// signature blob, and a Signer counterpart for clients and tests.
package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrRecoveryFailed is returned when no principal can be recovered from a
// (message, signature) pair.
var ErrRecoveryFailed = errors.New("signature recovery failed")

// Verifier recovers a principal identifier from a signed message. The
// returned principal is compared against the envelope's declared signer by
// the authorizer; the Verifier itself holds no key material.
type Verifier interface {
	Recover(message []byte, signature string) (string, error)
}

// Ed25519Verifier implements Verifier over hex-encoded self-describing
// signatures: the blob carries the 32-byte public key followed by the
// 64-byte ed25519 signature, so the principal (the hex public key) is
// recoverable from the blob alone.
type Ed25519Verifier struct{}

// NewEd25519Verifier creates the default verifier.
func NewEd25519Verifier() *Ed25519Verifier {
	return &Ed25519Verifier{}
}

// Recover implements Verifier.
func (v *Ed25519Verifier) Recover(message []byte, signature string) (string, error) {
	blob, err := hex.DecodeString(signature)
	if err != nil {
		return "", fmt.Errorf("%w: invalid signature hex: %v", ErrRecoveryFailed, err)
	}
	if len(blob) != ed25519.PublicKeySize+ed25519.SignatureSize {
		return "", fmt.Errorf("%w: invalid signature size %d", ErrRecoveryFailed, len(blob))
	}
	pub := ed25519.PublicKey(blob[:ed25519.PublicKeySize])
	sig := blob[ed25519.PublicKeySize:]
	if !ed25519.Verify(pub, message, sig) {
		return "", ErrRecoveryFailed
	}
	return hex.EncodeToString(pub), nil
}
