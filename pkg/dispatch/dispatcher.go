// Package dispatch routes authorized context requests to the matching
// registry mutation. It decodes the kind-tagged payload exactly once and
// performs no authorization of its own: the authorizer has already admitted
// the request before dispatch runs.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/registry"
)

// ErrInvalidRequest is returned for unknown kinds or malformed kind-data
// combinations.
var ErrInvalidRequest = errors.New("invalid request")

// Dispatcher routes decoded payloads into the registry.
type Dispatcher struct {
	registry *registry.Registry
}

// New creates a dispatcher over the registry.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Dispatch decodes payload.Data for payload.Kind and invokes the matching
// registry operation.
func (d *Dispatcher) Dispatch(ctx context.Context, payload contracts.RequestPayload) error {
	switch payload.Kind {
	case contracts.KindCreateContext:
		data, err := contracts.Decode[contracts.CreateContextData](payload.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return d.registry.Create(ctx, payload.ContextID, data.AuthorID, data.Application)

	case contracts.KindAddMembers:
		data, err := contracts.Decode[contracts.AddMembersData](payload.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return d.registry.AddMembers(ctx, payload.ContextID, payload.UserID, data.Members)

	case contracts.KindRemoveMembers:
		data, err := contracts.Decode[contracts.RemoveMembersData](payload.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return d.registry.RemoveMembers(ctx, payload.ContextID, payload.UserID, data.Members)

	case contracts.KindGrantCapability:
		data, err := contracts.Decode[contracts.CapabilityData](payload.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return d.registry.GrantCapability(ctx, payload.ContextID, payload.UserID, data.MemberID, data.Capability)

	case contracts.KindRevokeCapability:
		data, err := contracts.Decode[contracts.CapabilityData](payload.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return d.registry.RevokeCapability(ctx, payload.ContextID, payload.UserID, data.MemberID, data.Capability)

	case contracts.KindUpdateApplication:
		data, err := contracts.Decode[contracts.UpdateApplicationData](payload.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return d.registry.UpdateApplication(ctx, payload.ContextID, payload.UserID, data.Application)

	case contracts.KindUpdateEndpoint:
		return d.registry.UpdateEndpoint(ctx, payload.ContextID, payload.UserID)

	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, payload.Kind)
	}
}
