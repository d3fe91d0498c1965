// Package provision models execution-endpoint provisioning as an explicit
// collaborator: a pure derivation from (context id, revision) to a stable
// endpoint reference, decoupled from any runtime addressing scheme.
package provision

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/covenant-labs/covenant/pkg/contracts"
	"github.com/covenant-labs/covenant/pkg/runtimever"
)

var (
	// ErrEndpointNotConfigured is returned when no provisioner is wired.
	ErrEndpointNotConfigured = errors.New("execution endpoint not configured")
	// ErrProvisioningFailed is returned when the provisioner cannot produce
	// an endpoint reference.
	ErrProvisioningFailed = errors.New("endpoint provisioning failed")
)

// Provisioner produces the execution endpoint reference for a context.
type Provisioner interface {
	Provision(contextID string, revision uint32) (contracts.EndpointRef, error)
}

// Deterministic derives stable endpoint addresses with HKDF-SHA256 over the
// context id and revision, under a namespace secret. The same inputs always
// yield the same address, so re-provisioning at an unchanged revision is a
// no-op at the addressing level.
type Deterministic struct {
	secret   []byte
	runtimes *runtimever.Registry
}

// NewDeterministic creates a provisioner namespaced by secret, stamping
// endpoint references with the active runtime from runtimes.
func NewDeterministic(secret []byte, runtimes *runtimever.Registry) (*Deterministic, error) {
	if len(secret) == 0 {
		return nil, ErrEndpointNotConfigured
	}
	if runtimes == nil {
		return nil, ErrEndpointNotConfigured
	}
	return &Deterministic{secret: secret, runtimes: runtimes}, nil
}

// Provision implements Provisioner.
func (d *Deterministic) Provision(contextID string, revision uint32) (contracts.EndpointRef, error) {
	active, err := d.runtimes.Active()
	if err != nil {
		return contracts.EndpointRef{}, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	info := make([]byte, 4)
	binary.BigEndian.PutUint32(info, revision)

	kdf := hkdf.New(sha256.New, d.secret, []byte(contextID), info)
	addr := make([]byte, 20)
	if _, err := io.ReadFull(kdf, addr); err != nil {
		return contracts.EndpointRef{}, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	return contracts.EndpointRef{
		Address:        "ep_" + hex.EncodeToString(addr),
		RuntimeName:    active.Name,
		RuntimeVersion: active.Version.String(),
		Revision:       revision,
	}, nil
}

// Unconfigured always fails with ErrEndpointNotConfigured. It stands in
// where a deployment has not wired provisioning yet.
type Unconfigured struct{}

// Provision implements Provisioner.
func (Unconfigured) Provision(string, uint32) (contracts.EndpointRef, error) {
	return contracts.EndpointRef{}, ErrEndpointNotConfigured
}
