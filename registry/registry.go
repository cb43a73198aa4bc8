// Package registry loads scenario plans and turns them into runnable
// scenario metadata.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"gopkg.in/yaml.v3"

	"github.com/ska-telescope/ska-pss-protest/types"
)

// Registry manages scenario plans and their configurations
type Registry struct {
	config    Config
	scenarios []types.ScenarioMetadata
	mu        sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            *clog.Logger
	PlanFile       string
	DefaultTimeout time.Duration

	// Include and Exclude filter scenarios by tag. A scenario runs when it
	// carries every include tag and none of the exclude tags. When Include
	// is empty the default selection applies: scenarios tagged "product"
	// that are not tagged "subset".
	Include []string
	Exclude []string
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = clog.DefaultLogger()
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadScenarios(cfg.PlanFile); err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	cfg.Log.Debugf("Registry loaded, %d scenarios", len(r.scenarios))

	return r, nil
}

// loadScenarios loads a plan file and flattens it into scenario metadata
func (r *Registry) loadScenarios(planPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := loadPlan(planPath)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}

	if err := r.validateSuiteInheritance(plan); err != nil {
		return fmt.Errorf("failed to resolve suite inheritance: %w", err)
	}

	scenarios, err := r.collectScenarios(plan)
	if err != nil {
		return fmt.Errorf("failed to collect scenarios: %w", err)
	}

	r.scenarios = scenarios

	return nil
}

// validateSuiteInheritance checks suite inheritance resolution
func (r *Registry) validateSuiteInheritance(plan *types.Plan) error {
	if plan.Suites == nil {
		return nil
	}

	suiteMap := make(map[string]types.SuiteConfig)
	for _, suite := range plan.Suites {
		suiteMap[suite.ID] = suite
	}

	// Check for circular inheritance before resolving
	for _, suite := range plan.Suites {
		if err := r.checkCircularInheritance(suite.ID, suite.Inherits, suiteMap, make(map[string]bool)); err != nil {
			return fmt.Errorf("circular inheritance detected: %w", err)
		}
	}

	for i := range plan.Suites {
		if err := plan.Suites[i].ResolveInherited(suiteMap); err != nil {
			return fmt.Errorf("invalid suite inheritance: %w", err)
		}
	}

	return nil
}

// checkCircularInheritance detects circular dependencies in suite inheritance
func (r *Registry) checkCircularInheritance(currentID string, inherits []string, suiteMap map[string]types.SuiteConfig, visited map[string]bool) error {
	if visited[currentID] {
		return fmt.Errorf("circular inheritance detected at suite %s", currentID)
	}

	visited[currentID] = true
	defer delete(visited, currentID)

	for _, inheritedID := range inherits {
		inherited, exists := suiteMap[inheritedID]
		if !exists {
			return fmt.Errorf("suite %s inherits from non-existent suite %s", currentID, inheritedID)
		}

		if err := r.checkCircularInheritance(inheritedID, inherited.Inherits, suiteMap, visited); err != nil {
			return err
		}
	}

	return nil
}

// collectScenarios flattens the resolved plan into scenario metadata,
// applying plan-wide defaults and the tag selection.
func (r *Registry) collectScenarios(plan *types.Plan) ([]types.ScenarioMetadata, error) {
	var scenarios []types.ScenarioMetadata

	for i := range plan.Suites {
		suite := &plan.Suites[i]
		for _, sc := range suite.Scenarios {
			if sc.ID == "" {
				return nil, fmt.Errorf("suite %q contains a scenario without an id", suite.ID)
			}

			meta := types.ScenarioMetadata{
				ID:          sc.ID,
				Suite:       suite.ID,
				Description: sc.Description,
				Tags:        sc.Tags,
				Launcher:    sc.Launcher,
				Pipeline:    sc.Pipeline,
				Source:      sc.Source,
				Template:    sc.Template,
				Vector:      sc.Vector,
				Overrides:   sc.Overrides,
				Validation:  sc.Validation,
				Debug:       sc.Debug,
			}

			if meta.Launcher == "" {
				meta.Launcher = plan.Defaults.Launcher
			}
			if meta.Source == "" {
				meta.Source = plan.Defaults.Source
			}
			if meta.Template == "" {
				meta.Template = plan.Defaults.Template
			}

			switch {
			case sc.Timeout != nil:
				meta.Timeout = *sc.Timeout
			case plan.Defaults.Timeout != 0:
				meta.Timeout = plan.Defaults.Timeout
			default:
				meta.Timeout = r.config.DefaultTimeout
			}

			if !r.selected(meta) {
				r.config.Log.Debugf("Scenario %s/%s excluded by tag selection", suite.ID, sc.ID)
				continue
			}

			scenarios = append(scenarios, meta)
		}
	}

	return scenarios, nil
}

// selected applies the tag selection to a scenario. With no include tags
// the default selection runs product scenarios that are not subset
// scenarios, matching how the plans are authored for CI.
func (r *Registry) selected(meta types.ScenarioMetadata) bool {
	for _, tag := range r.config.Exclude {
		if meta.HasTag(tag) {
			return false
		}
	}

	if len(r.config.Include) == 0 {
		return meta.HasTag("product") && !meta.HasTag("subset")
	}

	for _, tag := range r.config.Include {
		if !meta.HasTag(tag) {
			return false
		}
	}
	return true
}

// GetScenarios returns all selected scenarios
func (r *Registry) GetScenarios() []types.ScenarioMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scenarios
}

// GetScenariosBySuite returns the selected scenarios of a specific suite
func (r *Registry) GetScenariosBySuite(suiteID string) []types.ScenarioMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var scenarios []types.ScenarioMetadata
	for _, sc := range r.scenarios {
		if sc.Suite == suiteID {
			scenarios = append(scenarios, sc)
		}
	}
	return scenarios
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// loadPlan loads a scenario plan from a file
func loadPlan(path string) (*types.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan types.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	return &plan, nil
}
