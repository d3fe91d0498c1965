package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/covenant-labs/covenant/pkg/contracts"
)

// Capability non-escalation: an identity lacking capability X can never
// grant or revoke X, whatever sequence of grants produced the current state.
func TestCapabilityNonEscalationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	capGen := gen.OneConstOf(
		contracts.CapManageApplication,
		contracts.CapManageMembers,
		contracts.CapManageEndpoint,
	)
	idGen := gen.OneConstOf(
		contracts.Identity("B"),
		contracts.Identity("C"),
		contracts.Identity("D"),
	)

	type grantOp struct {
		Target     contracts.Identity
		Capability contracts.Capability
	}
	opGen := gopter.CombineGens(idGen, capGen).Map(func(vs []interface{}) grantOp {
		return grantOp{Target: vs[0].(contracts.Identity), Capability: vs[1].(contracts.Capability)}
	})

	properties.Property("holders only propagate what they hold", prop.ForAll(
		func(ops []grantOp, actor contracts.Identity, capability contracts.Capability) bool {
			r := newPropRegistry(t)
			ctx := context.Background()
			if err := r.Create(ctx, "c1", "A", testApp()); err != nil {
				return false
			}

			// Replay a random grant history rooted at the author.
			for _, op := range ops {
				_ = r.GrantCapability(ctx, "c1", "A", op.Target, op.Capability)
			}

			held := r.HasCapability("c1", actor, capability)
			grantErr := r.GrantCapability(ctx, "c1", actor, "E", capability)
			revokeErr := r.RevokeCapability(ctx, "c1", actor, "A", capability)

			if held {
				return grantErr == nil && revokeErr == nil
			}
			return errors.Is(grantErr, ErrUnauthorized) &&
				errors.Is(revokeErr, ErrUnauthorized) &&
				!r.HasCapability("c1", "E", capability)
		},
		gen.SliceOf(opGen),
		idGen,
		capGen,
	))

	properties.TestingRun(t)
}

func newPropRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(testProvisioner(t), nil)
	require.NotNil(t, r)
	return r
}
