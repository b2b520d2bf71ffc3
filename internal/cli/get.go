package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/geostore/internal/tuple"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	History bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Show the current state of a feature",
		Long: `Show the current state of a feature, or its tombstone if it was deleted.
With --history the superseded states are listed too, oldest first.

Example:
  geostore get --db ./geo.db roads a1
  geostore get --db ./geo.db roads a1 --history --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.History, "history", false, "include superseded states")

	return cmd
}

// stateView is the printed form of one feature state.
type stateView struct {
	Number      string          `json:"number"`
	Version     string          `json:"version"`
	Action      string          `json:"action"`
	ChangeCount int64           `json:"change_count"`
	Author      string          `json:"author,omitempty"`
	AppID       string          `json:"app_id,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Tags        []string        `json:"tags,omitempty"`
	Feature     json.RawMessage `json:"feature,omitempty"`
}

type featureView struct {
	Collection string      `json:"collection"`
	ID         string      `json:"id"`
	Deleted    bool        `json:"deleted"`
	State      *stateView  `json:"state"`
	History    []stateView `json:"history,omitempty"`
}

func viewState(t *tuple.Tuple) (stateView, error) {
	v := stateView{
		Number:      t.Number.String(),
		Version:     t.Meta.Version.String(),
		Action:      t.Meta.Action().String(),
		ChangeCount: t.Meta.ChangeCount,
		Author:      t.Meta.Author,
		AppID:       t.Meta.AppID,
		UpdatedAt:   time.UnixMilli(t.Meta.UpdatedAt).UTC(),
	}
	c, err := t.Decode()
	if err != nil {
		return v, err
	}
	v.Tags = c.Tags
	if c.Feature != nil {
		if v.Feature, err = c.Feature.MarshalJSON(); err != nil {
			return v, err
		}
	}
	return v, nil
}

func runGet(opts *GetOptions, collection, id string, cmd *cobra.Command) error {
	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	fv := featureView{Collection: collection, ID: id}
	t, err := st.Head(ctx, collection, id)
	if err != nil {
		return WrapStoreError("failed to read feature", err)
	}
	if t == nil {
		if t, err = st.Deleted(ctx, collection, id); err != nil {
			return WrapStoreError("failed to read feature", err)
		}
		fv.Deleted = t != nil
	}
	if t != nil {
		s, err := viewState(t)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to decode feature", err)
		}
		fv.State = &s
	}
	if opts.History {
		hist, err := st.History(ctx, collection, id)
		if err != nil {
			return WrapStoreError("failed to read history", err)
		}
		for _, h := range hist {
			s, err := viewState(h)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to decode history", err)
			}
			fv.History = append(fv.History, s)
		}
	}
	if fv.State == nil && len(fv.History) == 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("feature %s not found in %s", id, collection))
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success("", fv, func(w io.Writer) {
		switch {
		case fv.State == nil:
			fmt.Fprintf(w, "%s/%s has no current state\n", collection, id)
		case fv.Deleted:
			fmt.Fprintf(w, "%s/%s deleted at %s\n", collection, id, fv.State.Version)
		default:
			fmt.Fprintf(w, "%s/%s %s (changes: %d)\n", collection, id, fv.State.Number, fv.State.ChangeCount)
			fmt.Fprintf(w, "%s\n", fv.State.Feature)
		}
		for _, h := range fv.History {
			fmt.Fprintf(w, "  %s %s by %s\n", h.Version, h.Action, h.Author)
		}
	})
}
