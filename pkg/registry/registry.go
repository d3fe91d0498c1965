// Package registry owns every context: its three capability guards, member
// set, application record, execution endpoint, and per-member nonces. All
// mutations are atomic per call and serialized per registry; callers sit
// behind an external ordering layer, so no two mutating calls interleave.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/covenant-labs/covenant/pkg/audit"
	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/guard"
	"github.com/covenant-labs/covenant/pkg/provision"
)

var (
	// ErrUnauthorized is returned when the caller lacks the capability a
	// mutation requires.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrContextAlreadyExists is returned when creating an existing context.
	ErrContextAlreadyExists = errors.New("context already exists")
	// ErrContextNotFound is returned when the context id resolves to the
	// revision-zero sentinel.
	ErrContextNotFound = errors.New("context not found")
)

// contextState is the owned record for one context. Guards version their
// guarded resource: applicationGuard the application record, membersGuard
// the member set, proxyGuard the execution endpoint.
type contextState struct {
	applicationGuard *guard.Guard
	membersGuard     *guard.Guard
	proxyGuard       *guard.Guard
	application      contracts.Application
	members          []contracts.Identity
	endpoint         contracts.EndpointRef
	nonces           map[contracts.Identity]uint64
}

func (c *contextState) guardFor(capability contracts.Capability) *guard.Guard {
	switch capability {
	case contracts.CapManageApplication:
		return c.applicationGuard
	case contracts.CapManageMembers:
		return c.membersGuard
	case contracts.CapManageEndpoint:
		return c.proxyGuard
	}
	return nil
}

// Registry owns all contexts by id.
type Registry struct {
	mu          sync.RWMutex
	contexts    map[string]*contextState
	provisioner provision.Provisioner
	recorder    audit.Recorder
}

// New creates a registry. A nil recorder drops events; a nil provisioner
// rejects context creation with ErrEndpointNotConfigured.
func New(provisioner provision.Provisioner, recorder audit.Recorder) *Registry {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if provisioner == nil {
		provisioner = provision.Unconfigured{}
	}
	return &Registry{
		contexts:    make(map[string]*contextState),
		provisioner: provisioner,
		recorder:    recorder,
	}
}

// Create installs a new context. The author becomes the single initial
// member and holds all three capabilities (one initial guard value shared
// across the three guards). All effects are atomic: a provisioning failure
// installs nothing.
func (r *Registry) Create(ctx context.Context, contextID string, authorID contracts.Identity, app contracts.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contexts[contextID]; exists {
		return fmt.Errorf("%w: %s", ErrContextAlreadyExists, contextID)
	}

	endpoint, err := r.provisioner.Provision(contextID, 1)
	if err != nil {
		return err
	}

	state := &contextState{
		applicationGuard: guard.New(authorID),
		membersGuard:     guard.New(authorID),
		proxyGuard:       guard.New(authorID),
		application:      app,
		members:          []contracts.Identity{authorID},
		endpoint:         endpoint,
		nonces:           map[contracts.Identity]uint64{authorID: 0},
	}
	r.contexts[contextID] = state

	_ = r.recorder.Record(ctx, contracts.EventContextCreated, contextID, string(authorID), map[string]interface{}{
		"application": app.ID,
		"endpoint":    endpoint.Address,
	})
	return nil
}

// AddMembers adds the given identities, skipping any already present, and
// initializes nonce tracking for the newly added. The members revision bumps
// exactly once per call, even when the net set of added ids is empty.
func (r *Registry) AddMembers(ctx context.Context, contextID string, callerID contracts.Identity, newMembers []contracts.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.lookup(contextID)
	if err != nil {
		return err
	}
	if !state.membersGuard.Has(callerID) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, callerID, contracts.CapManageMembers)
	}

	added := make([]contracts.Identity, 0, len(newMembers))
	for _, id := range newMembers {
		if hasMember(state, id) {
			continue
		}
		state.members = append(state.members, id)
		state.nonces[id] = 0
		added = append(added, id)
	}
	state.membersGuard.Bump()

	_ = r.recorder.Record(ctx, contracts.EventMembersAdded, contextID, string(callerID), map[string]interface{}{
		"members":  added,
		"revision": state.membersGuard.Revision(),
	})
	return nil
}

// RemoveMembers removes each present identity (swap-remove, order not
// preserved) and deletes its nonce entry, so a re-added member restarts
// nonce tracking at zero. The members revision bumps exactly once per call.
func (r *Registry) RemoveMembers(ctx context.Context, contextID string, callerID contracts.Identity, toRemove []contracts.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.lookup(contextID)
	if err != nil {
		return err
	}
	if !state.membersGuard.Has(callerID) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, callerID, contracts.CapManageMembers)
	}

	removed := make([]contracts.Identity, 0, len(toRemove))
	for _, id := range toRemove {
		for i, m := range state.members {
			if m == id {
				last := len(state.members) - 1
				state.members[i] = state.members[last]
				state.members = state.members[:last]
				delete(state.nonces, id)
				removed = append(removed, id)
				break
			}
		}
	}
	state.membersGuard.Bump()

	_ = r.recorder.Record(ctx, contracts.EventMembersRemoved, contextID, string(callerID), map[string]interface{}{
		"members":  removed,
		"revision": state.membersGuard.Revision(),
	})
	return nil
}

// GrantCapability grants capability to targetID. The caller must already
// hold the same capability: privileges only propagate, never amplify.
func (r *Registry) GrantCapability(ctx context.Context, contextID string, callerID, targetID contracts.Identity, capability contracts.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.lookup(contextID)
	if err != nil {
		return err
	}
	g := state.guardFor(capability)
	if g == nil {
		return fmt.Errorf("%w: unknown capability %q", ErrUnauthorized, capability)
	}
	if !g.Has(callerID) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, callerID, capability)
	}

	g.Grant(targetID)

	_ = r.recorder.Record(ctx, contracts.EventCapabilityAdded, contextID, string(callerID), map[string]interface{}{
		"member":     targetID,
		"capability": capability,
		"revision":   g.Revision(),
	})
	return nil
}

// RevokeCapability revokes capability from targetID. The caller must hold
// the same capability. Revoking an absent grant is a no-op without a
// revision bump.
func (r *Registry) RevokeCapability(ctx context.Context, contextID string, callerID, targetID contracts.Identity, capability contracts.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.lookup(contextID)
	if err != nil {
		return err
	}
	g := state.guardFor(capability)
	if g == nil {
		return fmt.Errorf("%w: unknown capability %q", ErrUnauthorized, capability)
	}
	if !g.Has(callerID) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, callerID, capability)
	}

	if !g.Revoke(targetID) {
		return nil
	}

	_ = r.recorder.Record(ctx, contracts.EventCapabilityRevoked, contextID, string(callerID), map[string]interface{}{
		"member":     targetID,
		"capability": capability,
		"revision":   g.Revision(),
	})
	return nil
}

// UpdateApplication replaces the application record wholesale and bumps the
// application revision.
func (r *Registry) UpdateApplication(ctx context.Context, contextID string, callerID contracts.Identity, app contracts.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.lookup(contextID)
	if err != nil {
		return err
	}
	if !state.applicationGuard.Has(callerID) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, callerID, contracts.CapManageApplication)
	}

	state.application = app
	state.applicationGuard.Bump()

	_ = r.recorder.Record(ctx, contracts.EventApplicationUpdated, contextID, string(callerID), map[string]interface{}{
		"application": app.ID,
		"revision":    state.applicationGuard.Revision(),
	})
	return nil
}

// UpdateEndpoint re-provisions the execution endpoint, replacing the stored
// reference. The proxy guard revision is left untouched; this asymmetry with
// the other mutators is inherited and pinned by tests.
func (r *Registry) UpdateEndpoint(ctx context.Context, contextID string, callerID contracts.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, err := r.lookup(contextID)
	if err != nil {
		return err
	}
	if !state.proxyGuard.Has(callerID) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnauthorized, callerID, contracts.CapManageEndpoint)
	}

	endpoint, err := r.provisioner.Provision(contextID, state.proxyGuard.Revision())
	if err != nil {
		return err
	}
	state.endpoint = endpoint

	_ = r.recorder.Record(ctx, contracts.EventEndpointUpdated, contextID, string(callerID), map[string]interface{}{
		"endpoint": endpoint.Address,
		"runtime":  endpoint.RuntimeName + "@" + endpoint.RuntimeVersion,
	})
	return nil
}

// CommitNonce stores nonce for id, creating the tracking entry when the
// identity has none. It reports whether a commit happened. The authorizer
// calls this after its ordering check and before capability routing, so a
// request that later fails authorization still consumes the nonce.
func (r *Registry) CommitNonce(contextID string, id contracts.Identity, nonce uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.contexts[contextID]
	if !ok {
		return false
	}
	state.nonces[id] = nonce
	return true
}

func (r *Registry) lookup(contextID string) (*contextState, error) {
	state, ok := r.contexts[contextID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}
	return state, nil
}

func hasMember(state *contextState, id contracts.Identity) bool {
	for _, m := range state.members {
		if m == id {
			return true
		}
	}
	return false
}
