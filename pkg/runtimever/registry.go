// Package runtimever tracks the execution runtimes an endpoint can be
// provisioned against. Upgrades are explicit: implementations register under
// a name and semantic version, and configuration selects the active one by
// constraint. Endpoints record the runtime they were provisioned with, so a
// later re-provision is the visible upgrade path.
package runtimever

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrUnknownRuntime is returned when no registered runtime matches.
	ErrUnknownRuntime = errors.New("unknown runtime")
	// ErrNoActiveRuntime is returned when no active runtime is selected.
	ErrNoActiveRuntime = errors.New("no active runtime selected")
)

// Runtime describes one registered execution runtime implementation.
type Runtime struct {
	Name    string
	Version *semver.Version
}

// Registry holds registered runtimes and the active selection.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string][]*semver.Version
	active   *Runtime
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runtimes: make(map[string][]*semver.Version)}
}

// Register adds a runtime implementation version under name.
func (r *Registry) Register(name, version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid runtime version %q: %w", version, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[name] = append(r.runtimes[name], v)
	sort.Sort(semver.Collection(r.runtimes[name]))
	return nil
}

// SetActive selects the highest registered version of name satisfying the
// semver constraint and makes it the active runtime.
func (r *Registry) SetActive(name, constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid runtime constraint %q: %w", constraint, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.runtimes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRuntime, name)
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if c.Check(versions[i]) {
			r.active = &Runtime{Name: name, Version: versions[i]}
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no version satisfying %s", ErrUnknownRuntime, name, constraint)
}

// Active returns the currently selected runtime.
func (r *Registry) Active() (Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return Runtime{}, ErrNoActiveRuntime
	}
	return *r.active, nil
}

// Versions returns the registered versions of name, ascending.
func (r *Registry) Versions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.runtimes[name]))
	for _, v := range r.runtimes[name] {
		out = append(out, v.String())
	}
	return out
}
