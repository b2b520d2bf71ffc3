package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/geostore/internal/canonical"
)

// TraceSnapshot is the part of a result that golden files record.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
}

// toCanonicalMap converts the snapshot into the value form canonical.Marshal accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{"step": event.Step}
		if event.Txn != "" {
			eventMap["txn"] = event.Txn
		}
		if event.Collection != "" {
			eventMap["collection"] = event.Collection
		}
		if event.ID != "" {
			eventMap["id"] = event.ID
		}
		if event.Action != "" {
			eventMap["action"] = event.Action
		}
		if event.ChangeCount != 0 {
			eventMap["change_count"] = event.ChangeCount
		}
		if event.Error != "" {
			eventMap["error"] = event.Error
		}
		traceList[i] = eventMap
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return canonical.Marshal(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/<scenario.Name>.golden. Failed expectations and assertions
// are reported through t.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the trace of result against the golden file name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()
	snapshot := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}
