package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Signer produces signature blobs the Ed25519Verifier can recover a
// principal from. Used by clients and test fixtures; the engines themselves
// never sign.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh ed25519 keypair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// NewSignerFromKey wraps an existing private key.
func NewSignerFromKey(priv ed25519.PrivateKey) *Signer {
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}
}

// Sign returns the hex-encoded self-describing signature blob over message.
func (s *Signer) Sign(message []byte) string {
	sig := ed25519.Sign(s.priv, message)
	blob := make([]byte, 0, len(s.pub)+len(sig))
	blob = append(blob, s.pub...)
	blob = append(blob, sig...)
	return hex.EncodeToString(blob)
}

// Principal returns the hex-encoded public key, the principal a Verifier
// recovers for this signer's signatures.
func (s *Signer) Principal() string {
	return hex.EncodeToString(s.pub)
}
