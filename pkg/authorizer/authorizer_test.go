package authorizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covenant-labs/covenant/pkg/canonicalize"
	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/crypto"
	"github.com/covenant-labs/covenant/pkg/provision"
	"github.com/covenant-labs/covenant/pkg/registry"
	"github.com/covenant-labs/covenant/pkg/runtimever"
)

type fixture struct {
	authorizer *Authorizer
	registry   *registry.Registry
	signer     *crypto.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	runtimes := runtimever.NewRegistry()
	require.NoError(t, runtimes.Register("wasi", "1.0.0"))
	require.NoError(t, runtimes.SetActive("wasi", "*"))
	p, err := provision.NewDeterministic([]byte("test-ns"), runtimes)
	require.NoError(t, err)

	reg := registry.New(p, nil)
	signer, err := crypto.NewSigner()
	require.NoError(t, err)

	return &fixture{
		authorizer: New(crypto.NewEd25519Verifier(), reg),
		registry:   reg,
		signer:     signer,
	}
}

func (f *fixture) sign(t *testing.T, payload contracts.RequestPayload) contracts.SignedRequest {
	t.Helper()
	payload.SignerID = f.signer.Principal()
	digest, err := canonicalize.Digest(payload)
	require.NoError(t, err)
	return contracts.SignedRequest{Payload: payload, Signature: f.signer.Sign(digest)}
}

func (f *fixture) createContext(t *testing.T, contextID string, author contracts.Identity) {
	t.Helper()
	require.NoError(t, f.registry.Create(context.Background(), contextID, author, contracts.Application{ID: "app"}))
}

func TestAuthorizeCreateContextUnconditional(t *testing.T) {
	f := newFixture(t)
	req := f.sign(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Kind:      contracts.KindCreateContext,
	})
	assert.NoError(t, f.authorizer.Authorize(req))
}

func TestAuthorizeRejectsTamperedPayload(t *testing.T) {
	f := newFixture(t)
	req := f.sign(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindUpdateApplication,
	})
	req.Payload.Nonce = 2

	err := f.authorizer.Authorize(req)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestAuthorizeRejectsSignerMismatch(t *testing.T) {
	f := newFixture(t)
	other, err := crypto.NewSigner()
	require.NoError(t, err)

	payload := contracts.RequestPayload{
		SignerID:  other.Principal(), // declared signer differs from actual
		UserID:    "A",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindUpdateApplication,
	}
	digest, err := canonicalize.Digest(payload)
	require.NoError(t, err)
	req := contracts.SignedRequest{Payload: payload, Signature: f.signer.Sign(digest)}

	assert.ErrorIs(t, f.authorizer.Authorize(req), ErrInvalidSignature)
}

func TestAuthorizeMissingContext(t *testing.T) {
	f := newFixture(t)
	req := f.sign(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "nope",
		Nonce:     1,
		Kind:      contracts.KindAddMembers,
	})
	assert.ErrorIs(t, f.authorizer.Authorize(req), registry.ErrContextNotFound)
}

func TestAuthorizeNonceMustIncrease(t *testing.T) {
	f := newFixture(t)
	f.createContext(t, "c1", "A")

	req := f.sign(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Nonce:     5,
		Kind:      contracts.KindUpdateApplication,
	})
	require.NoError(t, f.authorizer.Authorize(req))

	// Equal and lower nonces are replays.
	for _, nonce := range []uint64{5, 4, 0} {
		replay := f.sign(t, contracts.RequestPayload{
			UserID:    "A",
			ContextID: "c1",
			Nonce:     nonce,
			Kind:      contracts.KindUpdateApplication,
		})
		assert.ErrorIs(t, f.authorizer.Authorize(replay), ErrInvalidNonce)
	}

	next := f.sign(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Nonce:     6,
		Kind:      contracts.KindUpdateApplication,
	})
	assert.NoError(t, f.authorizer.Authorize(next))
}

// A request that fails the capability check still consumes its nonce, so an
// unauthorized attempt cannot be replayed after privileges change.
func TestAuthorizeNonceConsumedOnAuthorizationFailure(t *testing.T) {
	f := newFixture(t)
	f.createContext(t, "c1", "A")
	require.NoError(t, f.registry.AddMembers(context.Background(), "c1", "A", []contracts.Identity{"B"}))

	req := f.sign(t, contracts.RequestPayload{
		UserID:    "B",
		ContextID: "c1",
		Nonce:     3,
		Kind:      contracts.KindAddMembers,
	})
	assert.ErrorIs(t, f.authorizer.Authorize(req), registry.ErrUnauthorized)

	nonce, tracked := f.registry.NonceOf("c1", "B")
	require.True(t, tracked)
	assert.Equal(t, uint64(3), nonce)

	// Resubmission at the same nonce is now a replay even though the first
	// attempt never mutated anything.
	assert.ErrorIs(t, f.authorizer.Authorize(req), ErrInvalidNonce)
}

func TestAuthorizeReplayByUntrackedGranteeRejected(t *testing.T) {
	f := newFixture(t)
	f.createContext(t, "c1", "A")

	// B holds MANAGE_MEMBERS without ever being a member, so B has no
	// nonce entry when its first request arrives.
	require.NoError(t, f.registry.GrantCapability(context.Background(), "c1", "A", "B", contracts.CapManageMembers))
	_, tracked := f.registry.NonceOf("c1", "B")
	require.False(t, tracked)

	req := f.sign(t, contracts.RequestPayload{
		UserID:    "B",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindAddMembers,
	})
	require.NoError(t, f.authorizer.Authorize(req))

	// The accepted request created the entry; the identical envelope is
	// now a replay.
	nonce, tracked := f.registry.NonceOf("c1", "B")
	require.True(t, tracked)
	assert.Equal(t, uint64(1), nonce)
	assert.ErrorIs(t, f.authorizer.Authorize(req), ErrInvalidNonce)
}

func TestAuthorizeMemberMutationDemandsManageMembers(t *testing.T) {
	f := newFixture(t)
	f.createContext(t, "c1", "A")

	req := f.sign(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindRemoveMembers,
	})
	assert.NoError(t, f.authorizer.Authorize(req))

	require.NoError(t, f.registry.RevokeCapability(context.Background(), "c1", "A", "A", contracts.CapManageMembers))
	denied := f.sign(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Nonce:     2,
		Kind:      contracts.KindRemoveMembers,
	})
	assert.ErrorIs(t, f.authorizer.Authorize(denied), registry.ErrUnauthorized)
}

func TestAuthorizeGeneralKindsDemandPrivilege(t *testing.T) {
	f := newFixture(t)
	f.createContext(t, "c1", "A")
	require.NoError(t, f.registry.AddMembers(context.Background(), "c1", "A", []contracts.Identity{"B"}))

	// B is a member but not privileged.
	for i, kind := range []contracts.RequestKind{
		contracts.KindGrantCapability,
		contracts.KindRevokeCapability,
		contracts.KindUpdateApplication,
		contracts.KindUpdateEndpoint,
	} {
		req := f.sign(t, contracts.RequestPayload{
			UserID:    "B",
			ContextID: "c1",
			Nonce:     uint64(i + 1),
			Kind:      kind,
		})
		assert.ErrorIs(t, f.authorizer.Authorize(req), registry.ErrUnauthorized, string(kind))
	}
}
