package types

import (
	"fmt"
	"time"
)

// Plan is the top-level scenario plan document.
type Plan struct {
	Version  string        `yaml:"version,omitempty"`
	Defaults PlanDefaults  `yaml:"defaults,omitempty"`
	Suites   []SuiteConfig `yaml:"suites"`
}

// PlanDefaults holds plan-wide fallbacks applied to scenarios that do not
// set the field themselves.
type PlanDefaults struct {
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Template string        `yaml:"template,omitempty"`
	Launcher string        `yaml:"launcher,omitempty"`
	Source   string        `yaml:"source,omitempty"`
}

// SuiteConfig represents a collection of related scenarios
type SuiteConfig struct {
	ID          string           `yaml:"id"`
	Description string           `yaml:"description,omitempty"`
	Inherits    []string         `yaml:"inherits,omitempty"`
	Scenarios   []ScenarioConfig `yaml:"scenarios,omitempty"`
}

// ScenarioConfig is the YAML form of a scenario before defaults are applied.
type ScenarioConfig struct {
	ID          string            `yaml:"id"`
	Description string            `yaml:"description,omitempty"`
	Tags        []string          `yaml:"tags,omitempty"`
	Launcher    string            `yaml:"launcher,omitempty"`
	Pipeline    string            `yaml:"pipeline,omitempty"`
	Source      string            `yaml:"source,omitempty"`
	Template    string            `yaml:"template,omitempty"`
	Vector      VectorSpec        `yaml:"vector"`
	Overrides   map[string]string `yaml:"overrides,omitempty"`
	Validation  ValidationSpec    `yaml:"validate"`
	Timeout     *time.Duration    `yaml:"timeout,omitempty"`
	Debug       bool              `yaml:"debug,omitempty"`
}

// ResolveInherited merges scenarios from parent suites into the current
// suite, recursively. A suite can inherit from other suites named in its
// 'inherits' field; if suite C inherits from B and B inherits from A, C
// ends up with scenarios from all three. The child's own scenarios take
// precedence: parent scenarios are merged with deduplication by scenario id.
func (s *SuiteConfig) ResolveInherited(suites map[string]SuiteConfig) error {
	processed := make(map[string]bool)
	return s.resolveInheritedRecursive(suites, processed)
}

func (s *SuiteConfig) resolveInheritedRecursive(suites map[string]SuiteConfig, processed map[string]bool) error {
	if len(s.Inherits) == 0 {
		return nil
	}

	var merged []ScenarioConfig
	seen := make(map[string]bool)

	// The child's own scenarios go first so they win on id collisions.
	for _, sc := range s.Scenarios {
		if !seen[sc.ID] {
			merged = append(merged, sc)
			seen[sc.ID] = true
		}
	}

	for _, inheritFrom := range s.Inherits {
		if processed[inheritFrom] {
			return fmt.Errorf("circular inheritance detected for suite %q", inheritFrom)
		}

		parent, ok := suites[inheritFrom]
		if !ok {
			return fmt.Errorf("suite %q inherits from non-existent suite %q", s.ID, inheritFrom)
		}

		processed[inheritFrom] = true
		if err := parent.resolveInheritedRecursive(suites, processed); err != nil {
			return fmt.Errorf("resolving inheritance for parent suite %q: %w", inheritFrom, err)
		}

		for _, sc := range parent.Scenarios {
			if !seen[sc.ID] {
				merged = append(merged, sc)
				seen[sc.ID] = true
			}
		}
		processed[inheritFrom] = false
	}

	s.Scenarios = merged
	return nil
}
