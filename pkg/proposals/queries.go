package proposals

import (
	"fmt"

	"github.com/covenant-labs/covenant/pkg/contracts"
)

// Proposal returns the stored proposal by id.
func (e *Engine) Proposal(id string) (contracts.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.store.get(id)
	if !ok {
		return contracts.Proposal{}, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	return p, nil
}

// Proposals returns a page of active proposals in creation order. Offsets
// past the end yield an empty page.
func (e *Engine) Proposals(offset, limit int) []contracts.Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.proposalsPage(offset, limit)
}

// ApprovalCount returns the number of recorded approvals.
func (e *Engine) ApprovalCount(id string) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.store.get(id); !ok {
		return 0, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	return e.store.approvalCount(id), nil
}

// Approvers returns the identities that approved the proposal, in approval
// order.
func (e *Engine) Approvers(id string) ([]contracts.Identity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.store.get(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrProposalNotFound, id)
	}
	return e.store.approvers(id), nil
}

// ActiveCount returns the author's current number of active proposals.
func (e *Engine) ActiveCount(author contracts.Identity) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.perAuthor[author]
}

// Config returns the engine's current quorum configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// StorageValue reads one entry of the opaque key-value store.
func (e *Engine) StorageValue(key []byte) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.getStorage(key)
}

// StorageEntries returns a page of the opaque store in key insertion order.
func (e *Engine) StorageEntries(offset, limit int) []contracts.StorageEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.storagePage(offset, limit)
}
