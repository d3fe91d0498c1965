package contracts

import "encoding/json"

// RequestKind tags the payload carried by a signed request envelope.
type RequestKind string

const (
	// Context-side kinds.
	KindCreateContext     RequestKind = "CREATE_CONTEXT"
	KindAddMembers        RequestKind = "ADD_MEMBERS"
	KindRemoveMembers     RequestKind = "REMOVE_MEMBERS"
	KindGrantCapability   RequestKind = "GRANT_CAPABILITY"
	KindRevokeCapability  RequestKind = "REVOKE_CAPABILITY"
	KindUpdateApplication RequestKind = "UPDATE_APPLICATION"
	KindUpdateEndpoint    RequestKind = "UPDATE_ENDPOINT"

	// Proposal-side kinds, handled by the per-endpoint proposal engine.
	KindCreateProposal  RequestKind = "CREATE_PROPOSAL"
	KindApproveProposal RequestKind = "APPROVE_PROPOSAL"
)

// IsProposalKind reports whether the kind is routed to the proposal engine
// rather than the context registry.
func (k RequestKind) IsProposalKind() bool {
	return k == KindCreateProposal || k == KindApproveProposal
}

// RequestPayload is the signed portion of a request envelope. The signature
// binds the canonical (RFC 8785) encoding of this struct.
//
// SignerID is the hex-encoded verification key that authenticates the
// envelope; UserID is the member identity all authorization is performed
// against. The two are never assumed equal.
type RequestPayload struct {
	SignerID  string          `json:"signer_id"`
	UserID    Identity        `json:"user_id"`
	ContextID string          `json:"context_id"`
	Nonce     uint64          `json:"nonce"`
	Kind      RequestKind     `json:"kind"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SignedRequest is the outer envelope submitted by callers.
type SignedRequest struct {
	Payload   RequestPayload `json:"payload"`
	Signature string         `json:"signature"`
}

// CreateContextData carries the bootstrap author and application record.
type CreateContextData struct {
	AuthorID    Identity    `json:"author_id"`
	Application Application `json:"application"`
}

// AddMembersData lists identities to add to the context membership.
type AddMembersData struct {
	Members []Identity `json:"members"`
}

// RemoveMembersData lists identities to remove from the context membership.
type RemoveMembersData struct {
	Members []Identity `json:"members"`
}

// CapabilityData targets a single identity with a capability grant or revoke.
type CapabilityData struct {
	MemberID   Identity   `json:"member_id"`
	Capability Capability `json:"capability"`
}

// UpdateApplicationData carries the full replacement application record.
type UpdateApplicationData struct {
	Application Application `json:"application"`
}

// CreateProposalData wraps the proposal submitted for quorum approval.
type CreateProposalData struct {
	Proposal Proposal `json:"proposal"`
}

// ApproveProposalData names the proposal being approved; the approver is the
// envelope's UserID.
type ApproveProposalData struct {
	ProposalID string `json:"proposal_id"`
}
