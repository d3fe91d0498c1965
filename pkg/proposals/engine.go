package proposals

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/covenant-labs/covenant/pkg/audit"
	"github.com/covenant-labs/covenant/pkg/canonicalize"
	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/crypto"
	"github.com/covenant-labs/covenant/pkg/policy"
	"github.com/covenant-labs/covenant/pkg/sink"
)

var (
	// ErrUnauthorized is returned when the actor is not a current context
	// member, or a delete targets another author's proposal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidSignature is returned when envelope verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidAction is returned for structurally invalid actions at
	// creation time and failed external calls at execution time.
	ErrInvalidAction = errors.New("invalid action")
	// ErrTooManyActiveProposals is returned when the author is at the
	// active-proposal cap.
	ErrTooManyActiveProposals = errors.New("too many active proposals")
	// ErrProposalNotFound is returned for operations on absent proposals.
	ErrProposalNotFound = errors.New("proposal not found")
	// ErrProposalAlreadyApproved is returned on a repeated approval by the
	// same identity.
	ErrProposalAlreadyApproved = errors.New("proposal already approved")
	// ErrInsufficientBalance is returned when a transfer action cannot be
	// covered.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidRequest is returned for unknown envelope kinds or malformed
	// payloads.
	ErrInvalidRequest = errors.New("invalid request")
)

// MembershipOracle answers the one question the engine asks the outside
// world: is this identity currently a context member. Membership is checked
// at approval time, not creation time.
type MembershipOracle interface {
	IsMember(contextID string, id contracts.Identity) bool
}

// Config is the process-wide quorum configuration of one endpoint, mutable
// only through executed actions.
type Config struct {
	ApprovalThreshold    uint32 `json:"approval_threshold"`
	ActiveProposalsLimit uint32 `json:"active_proposals_limit"`
}

// DefaultConfig mirrors the endpoint defaults: three approvals to execute,
// ten active proposals per author.
func DefaultConfig() Config {
	return Config{ApprovalThreshold: 3, ActiveProposalsLimit: 10}
}

// Engine drives the proposal lifecycle for one execution endpoint. Each
// endpoint owns its own proposal namespace and quorum configuration; there
// is no cross-endpoint sharing.
type Engine struct {
	mu        sync.Mutex
	contextID string
	cfg       Config
	store     *store
	oracle    MembershipOracle
	sink      sink.ActionSink
	verifier  crypto.Verifier
	admission *policy.Policy
	recorder  audit.Recorder
}

// NewEngine creates an engine for the given context's endpoint.
func NewEngine(contextID string, cfg Config, oracle MembershipOracle, actionSink sink.ActionSink, verifier crypto.Verifier, recorder audit.Recorder) *Engine {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if cfg.ApprovalThreshold == 0 {
		cfg.ApprovalThreshold = DefaultConfig().ApprovalThreshold
	}
	if cfg.ActiveProposalsLimit == 0 {
		cfg.ActiveProposalsLimit = DefaultConfig().ActiveProposalsLimit
	}
	return &Engine{
		contextID: contextID,
		cfg:       cfg,
		store:     newStore(),
		oracle:    oracle,
		sink:      actionSink,
		verifier:  verifier,
		recorder:  recorder,
	}
}

// WithAdmissionPolicy attaches a compiled admission policy evaluated before
// proposal creation.
func (e *Engine) WithAdmissionPolicy(p *policy.Policy) *Engine {
	e.admission = p
	return e
}

// HandleMutate verifies a signed proposal-side envelope and routes it to
// Create or Approve. The envelope carries no nonce: replay of a create hits
// the duplicate-id check, replay of an approval hits approval idempotence.
func (e *Engine) HandleMutate(ctx context.Context, req contracts.SignedRequest) (contracts.ApprovalAck, error) {
	digest, err := canonicalize.Digest(req.Payload)
	if err != nil {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	principal, err := e.verifier.Recover(digest, req.Signature)
	if err != nil {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if principal != req.Payload.SignerID {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: recovered principal mismatch", ErrInvalidSignature)
	}

	switch req.Payload.Kind {
	case contracts.KindCreateProposal:
		data, err := contracts.Decode[contracts.CreateProposalData](req.Payload.Data)
		if err != nil {
			return contracts.ApprovalAck{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if data.Proposal.AuthorID != req.Payload.UserID {
			return contracts.ApprovalAck{}, fmt.Errorf("%w: author %s is not the requesting identity", ErrUnauthorized, data.Proposal.AuthorID)
		}
		return e.Create(ctx, data.Proposal)

	case contracts.KindApproveProposal:
		data, err := contracts.Decode[contracts.ApproveProposalData](req.Payload.Data)
		if err != nil {
			return contracts.ApprovalAck{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return e.Approve(ctx, data.ProposalID, req.Payload.UserID)

	default:
		return contracts.ApprovalAck{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Payload.Kind)
	}
}

// Create admits a proposal: author membership, the delete special case, the
// per-author cap, structural validation of every action (fail-fast, before
// any state change), and the admission policy. On success the proposal is
// persisted and immediately auto-approved by its author, which may already
// trigger execution at threshold one.
func (e *Engine) Create(ctx context.Context, p contracts.Proposal) (contracts.ApprovalAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(p.Actions) == 0 {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: empty action list", ErrInvalidAction)
	}
	if !e.oracle.IsMember(e.contextID, p.AuthorID) {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: %s is not a member of %s", ErrUnauthorized, p.AuthorID, e.contextID)
	}

	// A proposal carrying a delete action is the delete request itself: the
	// deletion runs immediately and every other action in the list is
	// ignored.
	for _, action := range p.Actions {
		if action.Kind != contracts.ActionDeleteProposal {
			continue
		}
		data, err := contracts.Decode[contracts.DeleteProposalAction](action.Data)
		if err != nil {
			return contracts.ApprovalAck{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		target, ok := e.store.get(data.ProposalID)
		if !ok {
			// Deleting an absent proposal is a no-op.
			return contracts.ApprovalAck{}, nil
		}
		if target.AuthorID != p.AuthorID {
			return contracts.ApprovalAck{}, fmt.Errorf("%w: %s does not own proposal %s", ErrUnauthorized, p.AuthorID, data.ProposalID)
		}
		e.deleteLocked(ctx, data.ProposalID, string(p.AuthorID))
		return contracts.ApprovalAck{}, nil
	}

	if e.store.perAuthor[p.AuthorID] >= e.cfg.ActiveProposalsLimit {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: %s has %d active", ErrTooManyActiveProposals, p.AuthorID, e.store.perAuthor[p.AuthorID])
	}

	for i, action := range p.Actions {
		if err := validateAction(action); err != nil {
			return contracts.ApprovalAck{}, fmt.Errorf("action %d: %w", i, err)
		}
	}

	if err := e.admission.Admit(policy.InputFor(p)); err != nil {
		return contracts.ApprovalAck{}, err
	}

	if _, exists := e.store.get(p.ID); exists {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: duplicate proposal id %s", ErrInvalidAction, p.ID)
	}

	e.store.put(p)
	_ = e.recorder.Record(ctx, contracts.EventProposalCreated, e.contextID, string(p.AuthorID), map[string]interface{}{
		"proposal": p.ID,
		"actions":  len(p.Actions),
	})

	return e.approveLocked(ctx, p.ID, p.AuthorID)
}

// Approve records one approval. The approver must be a current member —
// membership may have changed since creation. Reaching the threshold
// triggers execution and a zero acknowledgment; below it the current count
// is returned.
func (e *Engine) Approve(ctx context.Context, proposalID string, approverID contracts.Identity) (contracts.ApprovalAck, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.approveLocked(ctx, proposalID, approverID)
}

func (e *Engine) approveLocked(ctx context.Context, proposalID string, approverID contracts.Identity) (contracts.ApprovalAck, error) {
	if !e.oracle.IsMember(e.contextID, approverID) {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: %s is not a member of %s", ErrUnauthorized, approverID, e.contextID)
	}
	if _, ok := e.store.get(proposalID); !ok {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}
	if e.store.hasApproved(proposalID, approverID) {
		return contracts.ApprovalAck{}, fmt.Errorf("%w: %s already approved %s", ErrProposalAlreadyApproved, approverID, proposalID)
	}

	count := e.store.addApproval(proposalID, approverID)
	_ = e.recorder.Record(ctx, contracts.EventProposalApproved, e.contextID, string(approverID), map[string]interface{}{
		"proposal":  proposalID,
		"approvals": count,
	})

	if count >= e.cfg.ApprovalThreshold {
		if err := e.executeLocked(ctx, proposalID); err != nil {
			return contracts.ApprovalAck{}, err
		}
		return contracts.ApprovalAck{}, nil
	}
	return contracts.ApprovalAck{ProposalID: proposalID, Approvals: count}, nil
}

// executeLocked runs the action list in declared order. Each action's
// effect commits before the next begins; there is no rollback across
// actions. A failing action aborts the call with the earlier actions'
// effects in place and the proposal still stored. On full success the
// proposal and its approvals are purged and the author's active count
// drops.
func (e *Engine) executeLocked(ctx context.Context, proposalID string) error {
	p, ok := e.store.get(proposalID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}

	for i, action := range p.Actions {
		if err := e.executeAction(ctx, action); err != nil {
			return fmt.Errorf("execute %s action %d: %w", proposalID, i, err)
		}
	}

	e.store.purge(proposalID)
	_ = e.recorder.Record(ctx, contracts.EventProposalExecuted, e.contextID, string(p.AuthorID), map[string]interface{}{
		"proposal": proposalID,
	})
	return nil
}

// Delete purges a proposal and its approvals directly. Deleting an absent
// proposal is a no-op.
func (e *Engine) Delete(ctx context.Context, proposalID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleteLocked(ctx, proposalID, "")
}

func (e *Engine) deleteLocked(ctx context.Context, proposalID, actor string) {
	if !e.store.purge(proposalID) {
		return
	}
	_ = e.recorder.Record(ctx, contracts.EventProposalDeleted, e.contextID, actor, map[string]interface{}{
		"proposal": proposalID,
	})
}
