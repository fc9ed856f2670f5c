package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reactstore/value"
)

// Scenario defines a store scenario: a rules file, a list of updates and the
// assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Rules is the path to a CUE rules file, relative to the scenario file
	// once loaded. Empty runs the scenario with no observers.
	Rules string `yaml:"rules,omitempty"`

	// MaxIterations overrides the store's mutable iteration limit when > 0.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// Subscribers is the number of subscribers to create. Zero means one.
	Subscribers int `yaml:"subscribers,omitempty"`

	// Initial is merged over the rules' initial state.
	Initial map[string]any `yaml:"initial,omitempty"`

	Updates []UpdateStep `yaml:"updates"`

	Assertions []Assertion `yaml:"assertions"`
}

// UpdateStep is one call to Store.Update.
type UpdateStep struct {
	Delta map[string]any `yaml:"delta"`

	// ExpectError declares that the update fails, and how.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Path is a dotted state path (final_state).
	Path string `yaml:"path,omitempty"`

	// Expect is the expected value at Path; objects match as a subset.
	Expect any `yaml:"expect,omitempty"`

	// Seq selects a cycle (fired, iterations).
	Seq int64 `yaml:"seq,omitempty"`

	// Observers is the expected firing order as "key:phase" (fired).
	Observers []string `yaml:"observers,omitempty"`

	// Outcome is the cycle outcome to count (outcome_count).
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number (notifications, outcome_count, iterations).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final_state"
	AssertNotifications = "notifications"
	AssertFired         = "fired"
	AssertOutcomeCount  = "outcome_count"
	AssertIterations    = "iterations"
)

// Error kinds accepted by UpdateStep.ExpectError.
const (
	ErrorCallback       = "callback"
	ErrorIterationLimit = "iteration_limit"
	ErrorAny            = "any"
)

// LoadScenario reads and parses a scenario YAML file. The rules path is
// resolved relative to the scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.Rules != "" && !filepath.IsAbs(s.Rules) {
		s.Rules = filepath.Join(filepath.Dir(path), s.Rules)
	}
	if s.Rules != "" {
		if _, err := os.Stat(s.Rules); err != nil {
			return nil, fmt.Errorf("invalid scenario: rules file not found: %s", s.Rules)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative")
	}
	if s.Subscribers < 0 {
		return fmt.Errorf("subscribers must be non-negative")
	}
	if len(s.Updates) == 0 {
		return fmt.Errorf("updates list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := value.NormalizeObject(s.Initial); err != nil {
		return fmt.Errorf("initial: %w", err)
	}

	for i, u := range s.Updates {
		if u.Delta == nil {
			return fmt.Errorf("updates[%d]: delta is required (use {} for an empty delta)", i)
		}
		if _, err := value.NormalizeObject(u.Delta); err != nil {
			return fmt.Errorf("updates[%d].delta: %w", i, err)
		}
		switch u.ExpectError {
		case "", ErrorCallback, ErrorIterationLimit, ErrorAny:
		default:
			return fmt.Errorf("updates[%d]: unknown expect_error %q", i, u.ExpectError)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for final_state", index)
		}
		if _, err := value.Normalize(a.Expect); err != nil {
			return fmt.Errorf("assertions[%d].expect: %w", index, err)
		}
	case AssertNotifications:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFired:
		if a.Seq <= 0 {
			return fmt.Errorf("assertions[%d]: seq is required for fired", index)
		}
	case AssertOutcomeCount:
		if a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: outcome is required for outcome_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertIterations:
		if a.Seq <= 0 {
			return fmt.Errorf("assertions[%d]: seq is required for iterations", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
