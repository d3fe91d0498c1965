// Package contracts defines the typed records exchanged between the covenant
// engines: signed request envelopes, context and membership records, proposals
// and their actions, and the domain event vocabulary.
package contracts

// Identity is a member identity: the subject of every authorization,
// capability, and membership check. It is distinct from the signing key that
// authenticates a request envelope.
type Identity string

// Capability names one of the three guarded privileges over a context.
type Capability string

const (
	// CapManageApplication allows replacing the context's application record.
	CapManageApplication Capability = "MANAGE_APPLICATION"
	// CapManageMembers allows adding and removing context members.
	CapManageMembers Capability = "MANAGE_MEMBERS"
	// CapManageEndpoint allows re-provisioning the context's execution endpoint.
	CapManageEndpoint Capability = "MANAGE_ENDPOINT"
)

// Capabilities returns the closed set of capability kinds.
func Capabilities() []Capability {
	return []Capability{CapManageApplication, CapManageMembers, CapManageEndpoint}
}

// Application is the metadata record a context carries for its installed
// application. It is replaced wholesale, never partially mutated.
type Application struct {
	ID          string `json:"id"`
	ContentHash string `json:"content_hash"`
	Size        uint64 `json:"size"`
	Source      string `json:"source"`
	Metadata    []byte `json:"metadata,omitempty"`
}

// EndpointRef is a stable reference to the per-context execution endpoint
// instance, stamped with the runtime it was provisioned against.
type EndpointRef struct {
	Address        string `json:"address"`
	RuntimeName    string `json:"runtime_name"`
	RuntimeVersion string `json:"runtime_version"`
	Revision       uint32 `json:"revision"`
}

// CapabilityEntry pairs an identity with the capabilities it holds.
type CapabilityEntry struct {
	Identity     Identity     `json:"identity"`
	Capabilities []Capability `json:"capabilities"`
}
