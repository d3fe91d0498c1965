// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and digests for deterministic hashing of signed payloads.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v. Struct tags
// are honored by the intermediate standard marshal; key order and number
// formatting are normalized by the JCS transform.
func JCS(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// Digest returns the raw SHA-256 digest of the canonical JSON form of v.
// This is the message bound by request signatures.
func Digest(v any) ([]byte, error) {
	b, err := JCS(v)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

// DigestString returns the prefixed hex digest of the canonical form of v,
// suitable for logs and stored references.
func DigestString(v any) (string, error) {
	sum, err := Digest(v)
	if err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(sum), nil
}
