package authorizer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/covenant-labs/covenant/pkg/contracts"
)

// Nonce monotonicity: across any nonce sequence, a request is accepted past
// the nonce gate iff its nonce strictly exceeds every previously accepted
// nonce for the same identity.
func TestNonceMonotonicityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted nonces are strictly increasing", prop.ForAll(
		func(nonces []uint64) bool {
			f := newFixture(t)
			f.createContext(t, "c1", "A")

			var highest uint64
			for _, nonce := range nonces {
				req := f.sign(t, contracts.RequestPayload{
					UserID:    "A",
					ContextID: "c1",
					Nonce:     nonce,
					Kind:      contracts.KindUpdateApplication,
				})
				err := f.authorizer.Authorize(req)
				if nonce > highest {
					if err != nil {
						return false
					}
					highest = nonce
				} else if err == nil {
					return false
				}
			}

			stored, tracked := f.registry.NonceOf("c1", "A")
			return tracked && stored == highest
		},
		gen.SliceOf(gen.UInt64Range(0, 12)),
	))

	properties.TestingRun(t)
}
