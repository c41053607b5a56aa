// Copyright 2025 Certen Protocol
//
// Package config carries the PoJ chain's runtime configuration: a
// flat struct in the teacher's own Config style
// (pkg/config/config.go), generalized from the teacher's
// network/database/firestore-heavy fields down to the protocol knobs
// this chain actually needs, plus a YAML-loaded validator registry
// grounded on the pack's morelucks-gean/config/validators.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/certen/pojchain/pkg/block"
	"github.com/certen/pojchain/pkg/slotclock"
)

// Config is the flat, top-level runtime configuration for a pojd
// node.
type Config struct {
	NodeID       string
	ValidatorKey []byte // keyed-hash secret used to self-attest; empty means "not a validator"
	DataDir      string
	ListenAddr   string
	MetricsAddr  string

	// Protocol constants, all overridable; zero values fall back to
	// their documented defaults in the owning package.
	SlotDuration         time.Duration
	MaxJudgmentsPerBlock int
	EpochLength          uint64
	QuorumThreshold      float64
	PoolSize             int
}

// IsValidator reports whether this node is configured to run the
// Producer.
func (c Config) IsValidator() bool {
	return len(c.ValidatorKey) > 0
}

// SlotClockConfig projects the protocol constants relevant to
// pkg/slotclock.
func (c Config) SlotClockConfig() slotclock.Config {
	return slotclock.Config{SlotDuration: c.SlotDuration, EpochLength: c.EpochLength}
}

// Defaults fills zero-valued protocol constants with their documented
// defaults, leaving explicit overrides untouched.
func (c Config) Defaults() Config {
	if c.SlotDuration <= 0 {
		c.SlotDuration = slotclock.DefaultSlotDuration
	}
	if c.MaxJudgmentsPerBlock <= 0 {
		c.MaxJudgmentsPerBlock = block.DefaultMaxJudgmentsPerBlock
	}
	if c.EpochLength == 0 {
		c.EpochLength = slotclock.DefaultEpochLength
	}
	if c.QuorumThreshold <= 0 {
		c.QuorumThreshold = block.DefaultQuorumThreshold
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 1000
	}
	return c
}

// ValidatorEntry is one registered validator: its node id, network
// address (informational; the chain core has no peer-discovery
// non-goal-compliant transport), and keyed-hash MAC secret.
type ValidatorEntry struct {
	NodeID  string `yaml:"node_id"`
	Address string `yaml:"address,omitempty"`
	Key     string `yaml:"key"` // MAC secret, taken verbatim as key bytes
}

// ValidatorRegistry is the parsed validators.yaml: the configured
// membership list the spec treats as an abstract "known_validators"
// set. Hot-reload is intentionally unsupported — the registry is
// read once at init, consistent with the "no peer discovery" non-goal.
type ValidatorRegistry struct {
	Validators []ValidatorEntry `yaml:"validators"`
}

// LoadValidatorRegistry loads and parses a validators.yaml file.
func LoadValidatorRegistry(path string) (*ValidatorRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read validator registry: %w", err)
	}
	var reg ValidatorRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse validator registry: %w", err)
	}
	return &reg, nil
}

// Count returns the number of registered validators, used as the
// quorum denominator.
func (r *ValidatorRegistry) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Validators)
}

// Contains reports whether nodeID is a registered validator.
func (r *ValidatorRegistry) Contains(nodeID string) bool {
	if r == nil {
		return false
	}
	for _, v := range r.Validators {
		if v.NodeID == nodeID {
			return true
		}
	}
	return false
}

// KeyFor returns the MAC secret for nodeID (the raw bytes of its key
// string), if registered.
func (r *ValidatorRegistry) KeyFor(nodeID string) ([]byte, bool) {
	if r == nil {
		return nil, false
	}
	for _, v := range r.Validators {
		if v.NodeID == nodeID {
			return []byte(v.Key), true
		}
	}
	return nil, false
}
