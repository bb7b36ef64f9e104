// Package bootstrap loads a YAML rule-set/capsule seed file at startup,
// mirroring the teacher's YAML-configured TeamsConfig
// (internal/types/config.go). Seeding writes through the normal
// internal/store API; it is not a migration tool.
package bootstrap

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acbmem/agentmem/internal/idgen"
	"github.com/acbmem/agentmem/internal/model"
	"github.com/acbmem/agentmem/internal/store"
)

// SeedRule is one rule entry in a seed file.
type SeedRule struct {
	TenantID string `yaml:"tenant_id"`
	Content  string `yaml:"content"`
	Scope    string `yaml:"scope,omitempty"`
	Channel  string `yaml:"channel"`
	Priority int    `yaml:"priority"`
}

// SeedFile is the top-level shape of a bootstrap seed document.
type SeedFile struct {
	Rules []SeedRule `yaml:"rules"`
}

// LoadSeedFile parses a YAML seed document from disk.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Apply inserts every rule in a seed file through the store, assigning
// IDs and channel defaults as needed. Existing rows are untouched;
// re-running Apply against the same file inserts duplicates, since
// seeding is additive onboarding, not reconciliation.
func Apply(s *store.Store, f *SeedFile) error {
	for _, r := range f.Rules {
		if r.TenantID == "" || r.Content == "" {
			return fmt.Errorf("seed rule missing tenant_id or content")
		}
		channel := r.Channel
		if channel == "" {
			channel = "all"
		}

		var scope *string
		if r.Scope != "" {
			s := r.Scope
			scope = &s
		}

		rule := model.Rule{
			RuleID:   idgen.NewAt(idgen.KindRule, time.Now()),
			TenantID: r.TenantID,
			Content:  r.Content,
			Scope:    scope,
			Channel:  channel,
			Priority: r.Priority,
			TokenEst: idgen.EstimateTokens(r.Content),
		}
		if err := s.InsertRule(rule); err != nil {
			return fmt.Errorf("failed to insert seed rule: %w", err)
		}
	}
	return nil
}
