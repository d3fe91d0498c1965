package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/covenant-labs/covenant/pkg/audit"
	"github.com/covenant-labs/covenant/pkg/authorizer"
	"github.com/covenant-labs/covenant/pkg/canonicalize"
	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/crypto"
	"github.com/covenant-labs/covenant/pkg/dispatch"
	"github.com/covenant-labs/covenant/pkg/proposals"
	"github.com/covenant-labs/covenant/pkg/provision"
	"github.com/covenant-labs/covenant/pkg/registry"
	"github.com/covenant-labs/covenant/pkg/runtimever"
	"github.com/covenant-labs/covenant/pkg/sink"
)

type serverFixture struct {
	server *Server
	mux    *http.ServeMux
	signer *crypto.Signer
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	runtimes := runtimever.NewRegistry()
	require.NoError(t, runtimes.Register("wasi", "1.0.0"))
	require.NoError(t, runtimes.SetActive("wasi", "*"))
	p, err := provision.NewDeterministic([]byte("api-test"), runtimes)
	require.NoError(t, err)

	reg := registry.New(p, nil)
	verifier := crypto.NewEd25519Verifier()
	pm := proposals.NewManager(
		proposals.Config{ApprovalThreshold: 3, ActiveProposalsLimit: 10},
		reg, sink.NewLedger("treasury", 1_000), verifier, nil,
	)
	signer, err := crypto.NewSigner()
	require.NoError(t, err)

	srv := NewServer(authorizer.New(verifier, reg), dispatch.New(reg), reg, pm)
	return &serverFixture{server: srv, mux: srv.Routes(), signer: signer}
}

func (f *serverFixture) submit(t *testing.T, payload contracts.RequestPayload) *httptest.ResponseRecorder {
	t.Helper()
	payload.SignerID = f.signer.Principal()
	digest, err := canonicalize.Digest(payload)
	require.NoError(t, err)
	body, err := json.Marshal(contracts.SignedRequest{Payload: payload, Signature: f.signer.Sign(digest)})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/requests", bytes.NewReader(body)))
	return rec
}

func (f *serverFixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func (f *serverFixture) bootstrap(t *testing.T, contextID string, author contracts.Identity) {
	t.Helper()
	rec := f.submit(t, contracts.RequestPayload{
		UserID:    author,
		ContextID: contextID,
		Kind:      contracts.KindCreateContext,
		Data: contracts.MustEncode(contracts.CreateContextData{
			AuthorID:    author,
			Application: contracts.Application{ID: "app", Source: "blob://app"},
		}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitCreateContext(t *testing.T) {
	f := newServerFixture(t)
	f.bootstrap(t, "c1", "A")

	rec := f.get("/v1/contexts/c1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"members_count":1`)

	// Recreating the same context conflicts.
	rec = f.submit(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Kind:      contracts.KindCreateContext,
		Data: contracts.MustEncode(contracts.CreateContextData{
			AuthorID:    "A",
			Application: contracts.Application{ID: "app"},
		}),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitAddMembersAndNonces(t *testing.T) {
	f := newServerFixture(t)
	f.bootstrap(t, "c1", "A")

	rec := f.submit(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindAddMembers,
		Data:      contracts.MustEncode(contracts.AddMembersData{Members: []contracts.Identity{"B", "C"}}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.get("/v1/contexts/c1/members")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"B"`)
	assert.Contains(t, rec.Body.String(), `"C"`)

	rec = f.get("/v1/contexts/c1/nonces/A")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"nonce":1`)

	// Replaying the consumed nonce conflicts.
	rec = f.submit(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindAddMembers,
		Data:      contracts.MustEncode(contracts.AddMembersData{Members: []contracts.Identity{"D"}}),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitRejectsTamperedEnvelope(t *testing.T) {
	f := newServerFixture(t)
	f.bootstrap(t, "c1", "A")

	payload := contracts.RequestPayload{
		SignerID:  f.signer.Principal(),
		UserID:    "A",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindUpdateApplication,
		Data:      contracts.MustEncode(contracts.UpdateApplicationData{Application: contracts.Application{ID: "app2"}}),
	}
	digest, err := canonicalize.Digest(payload)
	require.NoError(t, err)
	signed := contracts.SignedRequest{Payload: payload, Signature: f.signer.Sign(digest)}
	signed.Payload.Nonce = 2

	body, err := json.Marshal(signed)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/requests", bytes.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitRejectsNonMember(t *testing.T) {
	f := newServerFixture(t)
	f.bootstrap(t, "c1", "A")

	rec := f.submit(t, contracts.RequestPayload{
		UserID:    "X",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindUpdateApplication,
		Data:      contracts.MustEncode(contracts.UpdateApplicationData{Application: contracts.Application{ID: "app2"}}),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitMalformedBody(t *testing.T) {
	f := newServerFixture(t)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/requests", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProposalLifecycleOverHTTP(t *testing.T) {
	f := newServerFixture(t)
	f.bootstrap(t, "c1", "A")

	rec := f.submit(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Nonce:     1,
		Kind:      contracts.KindAddMembers,
		Data:      contracts.MustEncode(contracts.AddMembersData{Members: []contracts.Identity{"B"}}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	proposal := contracts.Proposal{
		ID:       "p1",
		AuthorID: "A",
		Actions: []contracts.Action{{
			Kind: contracts.ActionTransfer,
			Data: contracts.MustEncode(contracts.TransferAction{Recipient: "bob", Amount: 100}),
		}},
	}
	rec = f.submit(t, contracts.RequestPayload{
		UserID:    "A",
		ContextID: "c1",
		Kind:      contracts.KindCreateProposal,
		Data:      contracts.MustEncode(contracts.CreateProposalData{Proposal: proposal}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"approvals":1`)

	rec = f.submit(t, contracts.RequestPayload{
		UserID:    "B",
		ContextID: "c1",
		Kind:      contracts.KindApproveProposal,
		Data:      contracts.MustEncode(contracts.ApproveProposalData{ProposalID: "p1"}),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"approvals":2`)

	// Repeated approval conflicts.
	rec = f.submit(t, contracts.RequestPayload{
		UserID:    "B",
		ContextID: "c1",
		Kind:      contracts.KindApproveProposal,
		Data:      contracts.MustEncode(contracts.ApproveProposalData{ProposalID: "p1"}),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.get("/v1/contexts/c1/proposals/p1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"p1"`)

	rec = f.get("/v1/contexts/c1/proposals")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"approval_threshold"`)
}

func TestAuditEndpoints(t *testing.T) {
	f := newServerFixture(t)
	assert.Equal(t, http.StatusNotFound, f.get("/v1/audit/events").Code)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store, err := audit.NewSQLiteStore(db)
	require.NoError(t, err)
	f.server.WithAuditStore(store)

	rec := f.get("/v1/audit/verify")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"intact":true`)

	require.NoError(t, store.Record(t.Context(), contracts.EventContextCreated, "c1", "A", nil))
	require.NoError(t, store.Record(t.Context(), contracts.EventMembersAdded, "c1", "A", nil))

	rec = f.get("/v1/audit/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"head":2`)
	assert.Contains(t, rec.Body.String(), `"ContextCreated"`)

	rec = f.get("/v1/audit/events?start=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"ContextCreated"`)
	assert.Contains(t, rec.Body.String(), `"MembersAdded"`)
}

func TestQueriesUnknownContext(t *testing.T) {
	f := newServerFixture(t)
	assert.Equal(t, http.StatusNotFound, f.get("/v1/contexts/nope").Code)
	assert.Equal(t, http.StatusNotFound, f.get("/v1/contexts/nope/members").Code)
	assert.Equal(t, http.StatusNotFound, f.get("/v1/contexts/nope/proposals").Code)
	assert.Equal(t, http.StatusNotFound, f.get("/v1/contexts/nope/storage").Code)
}
