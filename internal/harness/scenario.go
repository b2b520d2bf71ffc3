package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/geostore/internal/batch"
	"github.com/roach88/geostore/internal/config"
	"github.com/roach88/geostore/internal/writeplan"
)

// Scenario defines a write scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Collections are created before the first step.
	Collections []config.CollectionConfig `yaml:"collections,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// StreamID is the stream id of every session. Defaults to "harness".
	StreamID string `yaml:"stream_id,omitempty"`
}

// Step is one batch, run in its own session.
type Step struct {
	Batch  batch.File `yaml:"batch"`
	Expect *Expect    `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected storage code ("CONFLICT"). Without it the step
	// must succeed.
	Error string `yaml:"error,omitempty"`

	// Actions maps feature ids to the expected action ("UPDATED"). Ids not
	// listed are not checked.
	Actions map[string]string `yaml:"actions,omitempty"`
}

// Assertion validates the final state of one feature or of the store.
type Assertion struct {
	// Type specifies the assertion type:
	// - "head": the feature has a current state; Count, if set, is its change count
	// - "deleted": the feature has a tombstone and no current state
	// - "absent": the feature has neither
	// - "history_count": the feature has exactly Count superseded states
	// - "transactions": the transaction log holds exactly Count records
	Type string `yaml:"type"`

	Collection string `yaml:"collection,omitempty"`
	ID         string `yaml:"id,omitempty"`
	Count      int    `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertHead         = "head"
	AssertDeleted      = "deleted"
	AssertAbsent       = "absent"
	AssertHistoryCount = "history_count"
	AssertTransactions = "transactions"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, c := range s.Collections {
		if _, err := c.Collection(); err != nil {
			return fmt.Errorf("collections[%d]: %w", i, err)
		}
	}
	for i := range s.Steps {
		if _, err := s.Steps[i].Batch.Batch(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if exp := s.Steps[i].Expect; exp != nil {
			for id, action := range exp.Actions {
				if !isAction(action) {
					return fmt.Errorf("steps[%d].expect: unknown action %q for %s", i, action, id)
				}
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func isAction(s string) bool {
	for _, a := range []writeplan.Action{writeplan.ActionCreated, writeplan.ActionUpdated, writeplan.ActionDeleted, writeplan.ActionPurged, writeplan.ActionRetained} {
		if a.String() == s {
			return true
		}
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertHead, AssertDeleted, AssertAbsent, AssertHistoryCount:
		if a.Collection == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: collection and id are required for %s", index, a.Type)
		}
	case AssertTransactions:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
