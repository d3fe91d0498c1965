// Package authorizer verifies signed request envelopes before any context
// mutation runs: signature recovery, nonce replay protection, and
// per-request-kind capability routing. It performs checks in a fixed order
// and is fail-closed at every step.
package authorizer

import (
	"errors"
	"fmt"

	"github.com/covenant-labs/covenant/pkg/canonicalize"
	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/crypto"
	"github.com/covenant-labs/covenant/pkg/registry"
)

var (
	// ErrInvalidSignature is returned when recovery fails or the recovered
	// principal does not match the declared signer.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidNonce is returned when the request nonce does not exceed the
	// stored nonce for the requesting identity.
	ErrInvalidNonce = errors.New("invalid nonce")
)

// Authorizer is the context-side request gate.
type Authorizer struct {
	verifier crypto.Verifier
	registry *registry.Registry
}

// New creates an authorizer over the given verifier and registry.
func New(verifier crypto.Verifier, reg *registry.Registry) *Authorizer {
	return &Authorizer{verifier: verifier, registry: reg}
}

// Authorize runs the per-request state machine:
//
//  1. Recover the principal from the canonical payload digest and compare it
//     to the declared signer.
//  2. Context creation is authorized unconditionally (bootstrap: no context
//     exists to check against).
//  3. The context must exist.
//  4. The nonce must exceed the stored nonce, and is committed immediately.
//     Identities with no stored nonce start from zero and get an entry on
//     their first accepted request. A request that fails a later capability
//     check has still consumed its nonce, so replaying it cannot succeed
//     either.
//  5. Route by kind: member mutations demand MANAGE_MEMBERS; everything else
//     demands presence in the members guard's privileged set. The specific
//     capability for capability mutations is enforced downstream by the
//     registry itself.
func (a *Authorizer) Authorize(req contracts.SignedRequest) error {
	digest, err := canonicalize.Digest(req.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	principal, err := a.verifier.Recover(digest, req.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if principal != req.Payload.SignerID {
		return fmt.Errorf("%w: recovered principal mismatch", ErrInvalidSignature)
	}

	if req.Payload.Kind == contracts.KindCreateContext {
		return nil
	}

	contextID := req.Payload.ContextID
	userID := req.Payload.UserID
	if !a.registry.Exists(contextID) {
		return fmt.Errorf("%w: %s", registry.ErrContextNotFound, contextID)
	}

	stored, _ := a.registry.NonceOf(contextID, userID)
	if req.Payload.Nonce <= stored {
		return fmt.Errorf("%w: got %d, stored %d", ErrInvalidNonce, req.Payload.Nonce, stored)
	}
	a.registry.CommitNonce(contextID, userID, req.Payload.Nonce)

	switch req.Payload.Kind {
	case contracts.KindAddMembers, contracts.KindRemoveMembers:
		if !a.registry.HasCapability(contextID, userID, contracts.CapManageMembers) {
			return fmt.Errorf("%w: %s lacks %s", registry.ErrUnauthorized, userID, contracts.CapManageMembers)
		}
	default:
		if !a.registry.IsPrivileged(contextID, userID) {
			return fmt.Errorf("%w: %s is not privileged", registry.ErrUnauthorized, userID)
		}
	}
	return nil
}
