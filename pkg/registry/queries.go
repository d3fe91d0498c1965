package registry

import (
	"github.com/covenant-labs/covenant/pkg/contracts"
)

// Exists reports whether the context id resolves to a live context. A
// missing context observes revision 0 through the revision accessors, which
// is the sentinel external consumers key on.
func (r *Registry) Exists(contextID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.contexts[contextID]
	return ok
}

// HasMember reports whether id is a current member of the context.
func (r *Registry) HasMember(contextID string, id contracts.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.contexts[contextID]
	if !ok {
		return false
	}
	return hasMember(state, id)
}

// IsMember implements the membership oracle the proposal engine consults.
func (r *Registry) IsMember(contextID string, id contracts.Identity) bool {
	return r.HasMember(contextID, id)
}

// NonceOf returns the stored nonce for id and whether id is nonce-tracked.
func (r *Registry) NonceOf(contextID string, id contracts.Identity) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.contexts[contextID]
	if !ok {
		return 0, false
	}
	nonce, tracked := state.nonces[id]
	return nonce, tracked
}

// ApplicationOf returns the context's application record.
func (r *Registry) ApplicationOf(contextID string) (contracts.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, err := r.lookup(contextID)
	if err != nil {
		return contracts.Application{}, err
	}
	return state.application, nil
}

// ApplicationRevision returns the application guard revision, or 0 for a
// missing context (the existence sentinel).
func (r *Registry) ApplicationRevision(contextID string) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.contexts[contextID]
	if !ok {
		return 0
	}
	return state.applicationGuard.Revision()
}

// MembersRevision returns the members guard revision, or 0 for a missing
// context.
func (r *Registry) MembersRevision(contextID string) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.contexts[contextID]
	if !ok {
		return 0
	}
	return state.membersGuard.Revision()
}

// ProxyRevision returns the proxy guard revision, or 0 for a missing
// context.
func (r *Registry) ProxyRevision(contextID string) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.contexts[contextID]
	if !ok {
		return 0
	}
	return state.proxyGuard.Revision()
}

// EndpointOf returns the context's execution endpoint reference.
func (r *Registry) EndpointOf(contextID string) (contracts.EndpointRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, err := r.lookup(contextID)
	if err != nil {
		return contracts.EndpointRef{}, err
	}
	return state.endpoint, nil
}

// MembersCount returns the number of members of the context.
func (r *Registry) MembersCount(contextID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, err := r.lookup(contextID)
	if err != nil {
		return 0, err
	}
	return len(state.members), nil
}

// MembersPage returns at most limit members starting at offset, clamped to
// the available count. An offset past the end yields an empty page, never an
// error.
func (r *Registry) MembersPage(contextID string, offset, limit int) ([]contracts.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, err := r.lookup(contextID)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= len(state.members) {
		return []contracts.Identity{}, nil
	}
	end := offset + limit
	if end > len(state.members) {
		end = len(state.members)
	}
	page := make([]contracts.Identity, end-offset)
	copy(page, state.members[offset:end])
	return page, nil
}

// IsPrivileged reports whether id is in the members guard's privileged set,
// the general authorization check the request authorizer routes through.
func (r *Registry) IsPrivileged(contextID string, id contracts.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.contexts[contextID]
	if !ok {
		return false
	}
	return state.membersGuard.Has(id)
}

// HasCapability reports whether id holds the given capability.
func (r *Registry) HasCapability(contextID string, id contracts.Identity, capability contracts.Capability) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.contexts[contextID]
	if !ok {
		return false
	}
	g := state.guardFor(capability)
	return g != nil && g.Has(id)
}

// CapabilitiesOf returns capability holdings. With an empty identities list
// it returns the de-duplicated union of the three guards' privileged
// principals, each annotated with every capability held. Otherwise it
// returns exactly one entry per requested identity, duplicates preserved,
// with that identity's (possibly empty) capability set.
func (r *Registry) CapabilitiesOf(contextID string, identities []contracts.Identity) ([]contracts.CapabilityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, err := r.lookup(contextID)
	if err != nil {
		return nil, err
	}

	capsOf := func(id contracts.Identity) []contracts.Capability {
		held := make([]contracts.Capability, 0, 3)
		for _, capability := range contracts.Capabilities() {
			if state.guardFor(capability).Has(id) {
				held = append(held, capability)
			}
		}
		return held
	}

	if len(identities) == 0 {
		seen := make(map[contracts.Identity]struct{})
		var entries []contracts.CapabilityEntry
		for _, capability := range contracts.Capabilities() {
			for _, id := range state.guardFor(capability).Privileged() {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				entries = append(entries, contracts.CapabilityEntry{Identity: id, Capabilities: capsOf(id)})
			}
		}
		return entries, nil
	}

	entries := make([]contracts.CapabilityEntry, 0, len(identities))
	for _, id := range identities {
		entries = append(entries, contracts.CapabilityEntry{Identity: id, Capabilities: capsOf(id)})
	}
	return entries, nil
}
