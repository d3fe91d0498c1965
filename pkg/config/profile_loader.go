package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeploymentProfile is a named YAML overlay for one deployment environment.
// It tunes quorum defaults, the provisioning namespace, runtime pins, and
// rate limiting without code changes.
type DeploymentProfile struct {
	Name         string          `yaml:"name" json:"name"`
	Code         string          `yaml:"code" json:"code"`
	Quorum       QuorumConfig    `yaml:"quorum" json:"quorum"`
	Provisioning Provisioning    `yaml:"provisioning" json:"provisioning"`
	Runtimes     []RuntimePin    `yaml:"runtimes,omitempty" json:"runtimes,omitempty"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// QuorumConfig holds the proposal-engine defaults for new contexts.
type QuorumConfig struct {
	ApprovalThreshold    uint32 `yaml:"approval_threshold" json:"approval_threshold"`
	ActiveProposalsLimit uint32 `yaml:"active_proposals_limit" json:"active_proposals_limit"`
}

// Provisioning names the endpoint derivation namespace and the runtime
// constraint new endpoints are stamped with.
type Provisioning struct {
	Namespace         string `yaml:"namespace" json:"namespace"`
	RuntimeConstraint string `yaml:"runtime_constraint,omitempty" json:"runtime_constraint,omitempty"`
}

// RuntimePin registers one runtime version available to the profile.
type RuntimePin struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
	Active  bool   `yaml:"active,omitempty" json:"active,omitempty"`
}

// RateLimitConfig bounds per-actor request rates at the HTTP surface.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// LoadProfile loads a deployment profile YAML by code. It reads
// profile_<code>.yaml from the profiles directory.
func LoadProfile(profilesDir, code string) (*DeploymentProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile DeploymentProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}
	return &profile, nil
}

// ListProfiles returns the codes of every profile YAML in the directory.
func ListProfiles(profilesDir string) ([]string, error) {
	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	var codes []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "profile_") || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		codes = append(codes, strings.TrimSuffix(strings.TrimPrefix(name, "profile_"), ".yaml"))
	}
	return codes, nil
}

// Apply overlays the profile's quorum settings onto the config. Zero values
// in the profile leave the config untouched.
func (p *DeploymentProfile) Apply(cfg *Config) {
	if p.Quorum.ApprovalThreshold > 0 {
		cfg.ApprovalThreshold = p.Quorum.ApprovalThreshold
	}
	if p.Quorum.ActiveProposalsLimit > 0 {
		cfg.ActiveProposalsLimit = p.Quorum.ActiveProposalsLimit
	}
}
