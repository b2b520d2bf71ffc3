package harness

import (
	"context"
	"fmt"

	"github.com/roach88/geostore/internal/topology"
)

// check evaluates one assertion against the final state.
func (h *Harness) check(ctx context.Context, a Assertion) error {
	if a.Type == AssertTransactions {
		var n int
		q := "SELECT COUNT(*) FROM " + h.store.Dialect().Quote(topology.TransactionLog)
		if err := h.store.DB().QueryRowContext(ctx, q).Scan(&n); err != nil {
			return err
		}
		if n != a.Count {
			return fmt.Errorf("expected %d transaction records, found %d", a.Count, n)
		}
		return nil
	}

	head, err := h.store.Head(ctx, a.Collection, a.ID)
	if err != nil {
		return err
	}
	del, err := h.store.Deleted(ctx, a.Collection, a.ID)
	if err != nil {
		return err
	}
	where := a.Collection + "/" + a.ID

	switch a.Type {
	case AssertHead:
		if head == nil {
			return fmt.Errorf("%s: expected a current state, found none", where)
		}
		if a.Count > 0 && head.Meta.ChangeCount != int64(a.Count) {
			return fmt.Errorf("%s: expected change count %d, found %d", where, a.Count, head.Meta.ChangeCount)
		}
	case AssertDeleted:
		if head != nil || del == nil {
			return fmt.Errorf("%s: expected a tombstone only (head=%t, tombstone=%t)", where, head != nil, del != nil)
		}
	case AssertAbsent:
		if head != nil || del != nil {
			return fmt.Errorf("%s: expected no rows (head=%t, tombstone=%t)", where, head != nil, del != nil)
		}
	case AssertHistoryCount:
		hist, err := h.store.History(ctx, a.Collection, a.ID)
		if err != nil {
			return err
		}
		if len(hist) != a.Count {
			return fmt.Errorf("%s: expected %d history states, found %d", where, a.Count, len(hist))
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
