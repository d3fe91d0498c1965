package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/covenant-labs/covenant/pkg/audit"
	"github.com/covenant-labs/covenant/pkg/authorizer"
	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/dispatch"
	"github.com/covenant-labs/covenant/pkg/policy"
	"github.com/covenant-labs/covenant/pkg/proposals"
	"github.com/covenant-labs/covenant/pkg/registry"
)

// Server bundles the node's engines behind HTTP handlers. Mutations enter
// through a single submit endpoint carrying the signed envelope; everything
// else is a read.
type Server struct {
	authorizer *authorizer.Authorizer
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	proposals  *proposals.Manager
	audit      *audit.SQLiteStore
}

// NewServer creates the handler set.
func NewServer(a *authorizer.Authorizer, d *dispatch.Dispatcher, reg *registry.Registry, pm *proposals.Manager) *Server {
	return &Server{authorizer: a, dispatcher: d, registry: reg, proposals: pm}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/requests", s.handleSubmit)
	mux.HandleFunc("GET /v1/contexts/{context}", s.handleContext)
	mux.HandleFunc("GET /v1/contexts/{context}/members", s.handleMembers)
	mux.HandleFunc("GET /v1/contexts/{context}/capabilities", s.handleCapabilities)
	mux.HandleFunc("GET /v1/contexts/{context}/nonces/{member}", s.handleNonce)
	mux.HandleFunc("GET /v1/contexts/{context}/proposals", s.handleProposals)
	mux.HandleFunc("GET /v1/contexts/{context}/proposals/{proposal}", s.handleProposal)
	mux.HandleFunc("GET /v1/contexts/{context}/storage", s.handleStorage)
	mux.HandleFunc("GET /v1/audit/events", s.handleAuditEvents)
	mux.HandleFunc("GET /v1/audit/verify", s.handleAuditVerify)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit accepts a signed request envelope. Context-side kinds run
// through the authorizer and dispatcher; proposal-side kinds go straight to
// the proposal engine, which does its own verification.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req contracts.SignedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "malformed request envelope")
		return
	}

	if req.Payload.Kind.IsProposalKind() {
		ack, err := s.proposals.HandleMutate(r.Context(), req)
		if err != nil {
			writeProposalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
		return
	}

	if err := s.authorizer.Authorize(req); err != nil {
		writeAuthorizeError(w, err)
		return
	}
	if err := s.dispatcher.Dispatch(r.Context(), req.Payload); err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("context")
	app, err := s.registry.ApplicationOf(contextID)
	if err != nil {
		WriteNotFound(w, "unknown context")
		return
	}
	endpoint, err := s.registry.EndpointOf(contextID)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	count, err := s.registry.MembersCount(contextID)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"application":          app,
		"application_revision": s.registry.ApplicationRevision(contextID),
		"members_revision":     s.registry.MembersRevision(contextID),
		"proxy_revision":       s.registry.ProxyRevision(contextID),
		"endpoint":             endpoint,
		"members_count":        count,
	})
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("context")
	offset, limit := pageParams(r, 50)
	members, err := s.registry.MembersPage(contextID, offset, limit)
	if err != nil {
		WriteNotFound(w, "unknown context")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// handleCapabilities reports capability holdings. Without a members query
// parameter it returns the holders of any capability; with one it reports
// each named identity in turn.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("context")
	var ids []contracts.Identity
	for _, raw := range r.URL.Query()["member"] {
		ids = append(ids, contracts.Identity(raw))
	}
	entries, err := s.registry.CapabilitiesOf(contextID, ids)
	if err != nil {
		WriteNotFound(w, "unknown context")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"capabilities": entries})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("context")
	member := contracts.Identity(r.PathValue("member"))
	nonce, ok := s.registry.NonceOf(contextID, member)
	if !ok {
		WriteNotFound(w, "identity is not a tracked member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nonce": nonce})
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("context")
	if !s.registry.Exists(contextID) {
		WriteNotFound(w, "unknown context")
		return
	}
	offset, limit := pageParams(r, 50)
	engine := s.proposals.Engine(contextID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposals": engine.Proposals(offset, limit),
		"config":    engine.Config(),
	})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("context")
	engine := s.proposals.Engine(contextID)

	p, err := engine.Proposal(r.PathValue("proposal"))
	if err != nil {
		WriteNotFound(w, "unknown proposal")
		return
	}
	approvers, err := engine.Approvers(p.ID)
	if err != nil {
		WriteNotFound(w, "unknown proposal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposal":  p,
		"approvals": len(approvers),
		"approvers": approvers,
	})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	contextID := r.PathValue("context")
	if !s.registry.Exists(contextID) {
		WriteNotFound(w, "unknown context")
		return
	}
	engine := s.proposals.Engine(contextID)

	if key := r.URL.Query().Get("key"); key != "" {
		value, ok := engine.StorageValue([]byte(key))
		if !ok {
			WriteNotFound(w, "unknown storage key")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"value": value})
		return
	}

	offset, limit := pageParams(r, 50)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": engine.StorageEntries(offset, limit),
	})
}

func writeAuthorizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authorizer.ErrInvalidSignature):
		WriteUnauthorized(w, "signature verification failed")
	case errors.Is(err, authorizer.ErrInvalidNonce):
		WriteConflict(w, "stale nonce")
	case errors.Is(err, registry.ErrContextNotFound):
		WriteNotFound(w, "unknown context")
	case errors.Is(err, registry.ErrUnauthorized):
		WriteForbidden(w, "caller lacks the required capability")
	default:
		WriteInternal(w, err)
	}
}

func writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		WriteBadRequest(w, "malformed request payload")
	case errors.Is(err, registry.ErrContextAlreadyExists):
		WriteConflict(w, "context already exists")
	case errors.Is(err, registry.ErrContextNotFound):
		WriteNotFound(w, "unknown context")
	case errors.Is(err, registry.ErrUnauthorized):
		WriteForbidden(w, "caller lacks the required capability")
	default:
		WriteInternal(w, err)
	}
}

func writeProposalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, proposals.ErrInvalidSignature):
		WriteUnauthorized(w, "signature verification failed")
	case errors.Is(err, proposals.ErrUnauthorized):
		WriteForbidden(w, "actor is not authorized for this proposal")
	case errors.Is(err, proposals.ErrProposalNotFound):
		WriteNotFound(w, "unknown proposal")
	case errors.Is(err, proposals.ErrProposalAlreadyApproved):
		WriteConflict(w, "approval already recorded")
	case errors.Is(err, proposals.ErrTooManyActiveProposals):
		WriteConflict(w, "author is at the active proposal limit")
	case errors.Is(err, policy.ErrPolicyRejected):
		WriteForbidden(w, "proposal rejected by admission policy")
	case errors.Is(err, proposals.ErrInvalidAction),
		errors.Is(err, proposals.ErrInvalidRequest),
		errors.Is(err, proposals.ErrInsufficientBalance):
		WriteBadRequest(w, err.Error())
	default:
		WriteInternal(w, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pageParams(r *http.Request, defaultLimit int) (int, int) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	return offset, limit
}
