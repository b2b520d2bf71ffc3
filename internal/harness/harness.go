package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/storeerr"
	"github.com/roach88/geostore/internal/testutil"
	"github.com/roach88/geostore/internal/writer"
)

// Epoch is the clock start of every scenario.
var Epoch = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// Harness runs the steps of one scenario.
type Harness struct {
	store  *store.Store
	clock  *testutil.WallClock
	exec   *writer.Executor
	result *Result
}

// Run executes a scenario in a fresh SQLite database and returns the result.
// An error is returned only if the scenario could not be executed at all;
// failed expectations and assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "geostore-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	streamID := scenario.StreamID
	if streamID == "" {
		streamID = "harness"
	}
	clock := testutil.NewWallClock(Epoch)
	st, err := store.Open(filepath.Join(dir, "scenario.db"), store.Options{
		StorageID: "harness",
		AppID:     "harness",
		Now:       clock.Now,
		StreamIDs: testutil.NewFixedStreamID(streamID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  clock,
		exec:   writer.NewExecutor(writer.Options{}),
		result: NewResult(),
	}
	ctx := context.Background()

	for i, c := range scenario.Collections {
		def, err := c.Collection()
		if err != nil {
			return nil, fmt.Errorf("collections[%d]: %w", i, err)
		}
		if _, err := st.Registry().Ensure(ctx, st.DB(), def); err != nil {
			return nil, fmt.Errorf("collections[%d]: %w", i, err)
		}
	}

	for i := range scenario.Steps {
		if err := h.runStep(ctx, i, &scenario.Steps[i]); err != nil {
			return nil, err
		}
		clock.Advance(time.Second)
	}

	for i, a := range scenario.Assertions {
		if err := h.check(ctx, a); err != nil {
			h.result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return h.result, nil
}

func (h *Harness) runStep(ctx context.Context, index int, step *Step) error {
	b, err := step.Batch.Batch()
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}
	sess, err := h.store.Begin(ctx, store.SessionOptions{Author: b.Author, AppID: b.AppID})
	if err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}
	defer sess.Rollback()

	resp, err := h.exec.Write(ctx, sess, b.Request)
	var txn string
	if err == nil && sess.HasTxn() {
		v, _ := sess.Txn(ctx)
		txn = v.String()
	}
	if err == nil {
		err = h.exec.Commit(ctx, sess)
	}

	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}
	if err != nil {
		code := string(storeerr.CodeOf(err))
		if code == "" {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		h.result.Trace = append(h.result.Trace, TraceEvent{Step: index, Error: code})
		if exp.Error != code {
			h.result.AddError(fmt.Sprintf("steps[%d]: expected %s, got error %v", index, outcome(exp.Error), err))
		}
		return nil
	}
	if exp.Error != "" {
		h.result.AddError(fmt.Sprintf("steps[%d]: expected error %s, step succeeded", index, exp.Error))
	}

	seen := make(map[string]string, len(resp.Rows))
	for _, r := range resp.Rows {
		ev := TraceEvent{Step: index, Txn: txn, Collection: r.Collection, ID: r.ID, Action: r.Action.String()}
		if r.Tuple != nil {
			ev.ChangeCount = r.Tuple.Meta.ChangeCount
		}
		h.result.Trace = append(h.result.Trace, ev)
		seen[r.ID] = ev.Action
	}
	for id, want := range exp.Actions {
		if got := seen[id]; got != want {
			h.result.AddError(fmt.Sprintf("steps[%d]: %s: expected %s, got %q", index, id, want, got))
		}
	}
	return nil
}

func outcome(code string) string {
	if code == "" {
		return "success"
	}
	return "error " + code
}
