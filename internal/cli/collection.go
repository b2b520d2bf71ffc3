package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/geostore/internal/config"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/topology"
	"github.com/roach88/geostore/internal/writer"
)

// CollectionOptions holds flags for collection create and update.
type CollectionOptions struct {
	*RootOptions
	config.CollectionConfig
}

// NewCollectionCommand creates the collection command group.
func NewCollectionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}
	cmd.AddCommand(newCollectionCreateCommand(rootOpts))
	cmd.AddCommand(newCollectionUpdateCommand(rootOpts))
	cmd.AddCommand(newCollectionDropCommand(rootOpts))
	cmd.AddCommand(newCollectionListCommand(rootOpts))
	return cmd
}

func addEncodingFlags(cmd *cobra.Command, opts *CollectionOptions) {
	cmd.Flags().BoolVar(&opts.HistoryDisabled, "history-disabled", false, "do not keep superseded states")
	cmd.Flags().BoolVar(&opts.AutoPurge, "auto-purge", false, "purge features instead of keeping tombstones")
	cmd.Flags().StringVar(&opts.GeometryEncoding, "geometry-encoding", "wkb", "geometry encoding (wkb|geojson)")
	cmd.Flags().StringVar(&opts.FeatureEncoding, "feature-encoding", "json", "feature encoding (json|json+snappy)")
	cmd.Flags().StringVar(&opts.TagsEncoding, "tags-encoding", "json", "tags encoding (json|cbor)")
}

func newCollectionCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CollectionOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a collection",
		Long: `Create a collection and its tables.

Example:
  geostore collection create roads --db ./geo.db --partitions 8
  geostore collection create poi --db ./geo.db --map 2 --history-disabled`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			def, err := opts.Collection()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid collection", err)
			}
			return mutateCollection(rootOpts, cmd, writer.CollectionMutation{Op: writer.CollectionCreate, Collection: def})
		},
	}
	cmd.Flags().IntVar(&opts.Partitions, "partitions", 1, "number of HEAD partitions")
	cmd.Flags().Uint16Var(&opts.Map, "map", 0, "map (tenant) number")
	addEncodingFlags(cmd, opts)
	return cmd
}

func newCollectionUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CollectionOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the history, purge and encoding settings of a collection",
		Long: `Change the mutable settings of a collection. Settings whose flag is not
given keep their current value. Existing rows keep the encoding they were
written with.

Example:
  geostore collection update roads --db ./geo.db --feature-encoding json+snappy`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ID = args[0]
			def, err := opts.Collection()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid collection", err)
			}
			return updateCollection(rootOpts, cmd, def)
		},
	}
	addEncodingFlags(cmd, opts)
	return cmd
}

func newCollectionDropCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "drop <id>",
		Short:         "Drop a collection and all its rows",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := writer.CollectionMutation{Op: writer.CollectionDrop, Collection: topology.Collection{ID: args[0]}}
			return mutateCollection(rootOpts, cmd, m)
		},
	}
}

func newCollectionListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List collections",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCollections(rootOpts, cmd)
		},
	}
}

// collectionView is the printed form of a collection.
type collectionView struct {
	ID              string `json:"id"`
	Map             uint16 `json:"map"`
	Number          uint64 `json:"number"`
	Partitions      int    `json:"partitions"`
	HistoryDisabled bool   `json:"history_disabled"`
	AutoPurge       bool   `json:"auto_purge"`
}

func viewCollection(c *topology.Collection) collectionView {
	return collectionView{
		ID:              c.ID,
		Map:             c.MapNumber,
		Number:          c.Number,
		Partitions:      c.Partitions,
		HistoryDisabled: c.HistoryDisabled,
		AutoPurge:       c.AutoPurge,
	}
}

// runMutations applies collection mutations in one session.
func runMutations(ctx context.Context, st *store.Store, exec *writer.Executor, ms ...writer.CollectionMutation) (*writer.Response, error) {
	sess, err := st.Begin(ctx, store.SessionOptions{})
	if err != nil {
		return nil, err
	}
	defer sess.Rollback()
	resp, err := exec.Write(ctx, sess, writer.Request{Collections: ms})
	if err != nil {
		return nil, err
	}
	if err := exec.Commit(ctx, sess); err != nil {
		return nil, err
	}
	return resp, nil
}

func mutateCollection(opts *RootOptions, cmd *cobra.Command, m writer.CollectionMutation) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	resp, err := runMutations(cmd.Context(), st, newExecutor(cfg), m)
	if err != nil {
		return WrapStoreError(fmt.Sprintf("failed to %s collection %s", m.Op, m.Collection.ID), err)
	}
	return printMutation(opts, cmd, resp.Collections[0])
}

func updateCollection(opts *RootOptions, cmd *cobra.Command, def topology.Collection) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	cur, err := st.Registry().Get(cmd.Context(), st.DB(), def.ID)
	if err != nil {
		return WrapStoreError("failed to update collection "+def.ID, err)
	}
	next := *cur
	flags := cmd.Flags()
	if flags.Changed("history-disabled") {
		next.HistoryDisabled = def.HistoryDisabled
	}
	if flags.Changed("auto-purge") {
		next.AutoPurge = def.AutoPurge
	}
	if flags.Changed("geometry-encoding") {
		next.GeometryEncoding = def.GeometryEncoding
	}
	if flags.Changed("feature-encoding") {
		next.FeatureEncoding = def.FeatureEncoding
	}
	if flags.Changed("tags-encoding") {
		next.TagsEncoding = def.TagsEncoding
	}

	resp, err := runMutations(cmd.Context(), st, newExecutor(cfg), writer.CollectionMutation{Op: writer.CollectionUpdate, Collection: next})
	if err != nil {
		return WrapStoreError("failed to update collection "+def.ID, err)
	}
	return printMutation(opts, cmd, resp.Collections[0])
}

func printMutation(opts *RootOptions, cmd *cobra.Command, r writer.CollectionResult) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	var data any = map[string]string{"id": r.ID, "op": r.Op.String()}
	if r.Collection != nil {
		data = viewCollection(r.Collection)
	}
	return out.Success("", data, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s\n", r.Op, r.ID)
	})
}

func listCollections(opts *RootOptions, cmd *cobra.Command) error {
	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	cols, err := st.Collections(cmd.Context())
	if err != nil {
		return WrapStoreError("failed to list collections", err)
	}
	views := make([]collectionView, len(cols))
	for i := range cols {
		views[i] = viewCollection(&cols[i])
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success("", views, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMAP\tNUMBER\tPARTITIONS\tHISTORY\tAUTO PURGE")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%t\t%t\n", v.ID, v.Map, v.Number, v.Partitions, !v.HistoryDisabled, v.AutoPurge)
		}
		tw.Flush()
	})
}
