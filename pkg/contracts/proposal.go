package contracts

import "encoding/json"

// ActionKind tags a single action inside a proposal.
type ActionKind string

const (
	ActionExternalCall            ActionKind = "EXTERNAL_CALL"
	ActionTransfer                ActionKind = "TRANSFER"
	ActionSetApprovalThreshold    ActionKind = "SET_APPROVAL_THRESHOLD"
	ActionSetActiveProposalsLimit ActionKind = "SET_ACTIVE_PROPOSALS_LIMIT"
	ActionSetStorageValue         ActionKind = "SET_STORAGE_VALUE"
	ActionDeleteProposal          ActionKind = "DELETE_PROPOSAL"
)

// Action is one step of a proposal: a kind tag plus its typed payload.
type Action struct {
	Kind ActionKind      `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Proposal is an author-submitted ordered list of actions requiring quorum
// approval before execution. It is created once, approved one or more times,
// and purged on execution or deletion.
type Proposal struct {
	ID       string   `json:"id"`
	AuthorID Identity `json:"author_id"`
	Actions  []Action `json:"actions"`
}

// ExternalCallAction invokes the external action sink with an opaque payload
// and an attached value.
type ExternalCallAction struct {
	Target  string `json:"target"`
	Payload []byte `json:"payload"`
	Value   uint64 `json:"value"`
}

// TransferAction moves value to a recipient through the action sink.
type TransferAction struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

// SetApprovalThresholdAction overwrites the quorum threshold.
type SetApprovalThresholdAction struct {
	Threshold uint32 `json:"threshold"`
}

// SetActiveProposalsLimitAction overwrites the per-author active cap.
type SetActiveProposalsLimitAction struct {
	Limit uint32 `json:"limit"`
}

// SetStorageValueAction upserts one entry of the opaque key-value store.
type SetStorageValueAction struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// DeleteProposalAction names the proposal to purge.
type DeleteProposalAction struct {
	ProposalID string `json:"proposal_id"`
}

// ApprovalAck reports the state of a proposal after an approval. The zero
// value acknowledges a terminal outcome (executed or deleted).
type ApprovalAck struct {
	ProposalID string `json:"proposal_id,omitempty"`
	Approvals  uint32 `json:"approvals,omitempty"`
}

// StorageEntry is one key-value pair of the opaque store, returned by the
// paginated listing.
type StorageEntry struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}
