package proposals

import (
	"context"
	"sync"

	"github.com/covenant-labs/covenant/pkg/audit"
	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/crypto"
	"github.com/covenant-labs/covenant/pkg/policy"
	"github.com/covenant-labs/covenant/pkg/sink"
)

// Manager lazily creates one Engine per context endpoint. Engines are
// created with the manager's defaults and live for the process lifetime.
type Manager struct {
	mu        sync.Mutex
	engines   map[string]*Engine
	defaults  Config
	oracle    MembershipOracle
	sink      sink.ActionSink
	verifier  crypto.Verifier
	admission *policy.Policy
	recorder  audit.Recorder
}

// NewManager creates a manager producing engines with the given defaults.
func NewManager(defaults Config, oracle MembershipOracle, actionSink sink.ActionSink, verifier crypto.Verifier, recorder audit.Recorder) *Manager {
	return &Manager{
		engines:  make(map[string]*Engine),
		defaults: defaults,
		oracle:   oracle,
		sink:     actionSink,
		verifier: verifier,
		recorder: recorder,
	}
}

// WithAdmissionPolicy attaches an admission policy applied to every engine
// the manager creates from then on.
func (m *Manager) WithAdmissionPolicy(p *policy.Policy) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admission = p
	return m
}

// Engine returns the engine owning the context's endpoint, creating it on
// first use.
func (m *Manager) Engine(contextID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[contextID]
	if !ok {
		e = NewEngine(contextID, m.defaults, m.oracle, m.sink, m.verifier, m.recorder)
		if m.admission != nil {
			e = e.WithAdmissionPolicy(m.admission)
		}
		m.engines[contextID] = e
	}
	return e
}

// HandleMutate routes a signed proposal-side request to the engine of its
// context.
func (m *Manager) HandleMutate(ctx context.Context, req contracts.SignedRequest) (contracts.ApprovalAck, error) {
	return m.Engine(req.Payload.ContextID).HandleMutate(ctx, req)
}
