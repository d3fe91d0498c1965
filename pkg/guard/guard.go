// Package guard implements the versioned privileged-principal set backing
// each capability of a context. A Guard pairs an order-preserving privileged
// list with a monotonic revision; the revision is the sole version signal
// observable by consumers who cache privilege lists.
package guard

import "github.com/covenant-labs/covenant/pkg/contracts"

// Guard holds the privileged identities for one guarded resource plus the
// resource's revision. Revision 0 is the sentinel for "owning context does
// not exist"; a live guard starts at revision 1.
type Guard struct {
	privileged []contracts.Identity
	revision   uint32
}

// New creates a live guard holding the initial privileged identities.
func New(initial ...contracts.Identity) *Guard {
	g := &Guard{revision: 1}
	g.privileged = append(g.privileged, initial...)
	return g
}

// Has reports whether id is present in the privileged list. Linear scan;
// duplicate entries are tolerated, not deduplicated.
func (g *Guard) Has(id contracts.Identity) bool {
	for _, p := range g.privileged {
		if p == id {
			return true
		}
	}
	return false
}

// Grant appends id to the privileged list and bumps the revision. Granting
// an already-privileged id appends a duplicate entry.
func (g *Guard) Grant(id contracts.Identity) {
	g.privileged = append(g.privileged, id)
	g.revision++
}

// Revoke removes the first matching occurrence of id by swapping it with the
// last entry and popping; order is not preserved. An absent id is a no-op
// and does not bump the revision.
func (g *Guard) Revoke(id contracts.Identity) bool {
	for i, p := range g.privileged {
		if p == id {
			last := len(g.privileged) - 1
			g.privileged[i] = g.privileged[last]
			g.privileged = g.privileged[:last]
			g.revision++
			return true
		}
	}
	return false
}

// Bump increments the revision without touching the privileged list. Used
// when the guarded resource itself mutates.
func (g *Guard) Bump() {
	g.revision++
}

// Revision returns the current revision.
func (g *Guard) Revision() uint32 {
	return g.revision
}

// Privileged returns a copy of the privileged list in its current order.
func (g *Guard) Privileged() []contracts.Identity {
	out := make([]contracts.Identity, len(g.privileged))
	copy(out, g.privileged)
	return out
}
