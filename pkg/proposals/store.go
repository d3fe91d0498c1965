// Package proposals implements the quorum-gated proposal engine owned by one
// execution endpoint: proposal and approval collections, the
// create → approve → execute/delete lifecycle, and the action executor.
package proposals

import (
	"github.com/covenant-labs/covenant/pkg/contracts"
)

// store owns every proposal-side collection by value: proposals with an
// explicit creation-order index, approval sets with recorded order,
// per-author active counts, and the opaque key-value store with its ordered
// key index. Entries of the key-value store are never deleted.
type store struct {
	proposals     map[string]contracts.Proposal
	order         []string
	approvals     map[string]map[contracts.Identity]struct{}
	approvalOrder map[string][]contracts.Identity
	perAuthor     map[contracts.Identity]uint32
	storage       map[string][]byte
	storageKeys   []string
}

func newStore() *store {
	return &store{
		proposals:     make(map[string]contracts.Proposal),
		approvals:     make(map[string]map[contracts.Identity]struct{}),
		approvalOrder: make(map[string][]contracts.Identity),
		perAuthor:     make(map[contracts.Identity]uint32),
		storage:       make(map[string][]byte),
	}
}

func (s *store) get(id string) (contracts.Proposal, bool) {
	p, ok := s.proposals[id]
	return p, ok
}

func (s *store) put(p contracts.Proposal) {
	s.proposals[p.ID] = p
	s.order = append(s.order, p.ID)
	s.approvals[p.ID] = make(map[contracts.Identity]struct{})
	s.perAuthor[p.AuthorID]++
}

// purge removes the proposal, its approvals, and its index entry, and
// decrements the author's active count if positive. Purging an absent id is
// a no-op.
func (s *store) purge(id string) bool {
	p, ok := s.proposals[id]
	if !ok {
		return false
	}
	delete(s.proposals, id)
	delete(s.approvals, id)
	delete(s.approvalOrder, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.perAuthor[p.AuthorID] > 0 {
		s.perAuthor[p.AuthorID]--
	}
	return true
}

func (s *store) hasApproved(id string, approver contracts.Identity) bool {
	set, ok := s.approvals[id]
	if !ok {
		return false
	}
	_, approved := set[approver]
	return approved
}

func (s *store) addApproval(id string, approver contracts.Identity) uint32 {
	s.approvals[id][approver] = struct{}{}
	s.approvalOrder[id] = append(s.approvalOrder[id], approver)
	return uint32(len(s.approvals[id]))
}

func (s *store) approvalCount(id string) uint32 {
	return uint32(len(s.approvals[id]))
}

func (s *store) approvers(id string) []contracts.Identity {
	out := make([]contracts.Identity, len(s.approvalOrder[id]))
	copy(out, s.approvalOrder[id])
	return out
}

// setStorage upserts an entry and reports whether the key was newly
// inserted; only first insertions extend the key index.
func (s *store) setStorage(key, value []byte) bool {
	k := string(key)
	_, existed := s.storage[k]
	s.storage[k] = value
	if !existed {
		s.storageKeys = append(s.storageKeys, k)
	}
	return !existed
}

func (s *store) getStorage(key []byte) ([]byte, bool) {
	v, ok := s.storage[string(key)]
	return v, ok
}

func (s *store) storagePage(offset, limit int) []contracts.StorageEntry {
	offset, end := clampPage(offset, limit, len(s.storageKeys))
	entries := make([]contracts.StorageEntry, 0, end-offset)
	for _, k := range s.storageKeys[offset:end] {
		entries = append(entries, contracts.StorageEntry{Key: []byte(k), Value: s.storage[k]})
	}
	return entries
}

func (s *store) proposalsPage(offset, limit int) []contracts.Proposal {
	offset, end := clampPage(offset, limit, len(s.order))
	page := make([]contracts.Proposal, 0, end-offset)
	for _, id := range s.order[offset:end] {
		page = append(page, s.proposals[id])
	}
	return page
}

// clampPage clamps (offset, limit) to the available count; an offset past
// the end yields an empty range, never an error.
func clampPage(offset, limit, available int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset > available {
		offset = available
	}
	end := offset + limit
	if end > available {
		end = available
	}
	return offset, end
}
