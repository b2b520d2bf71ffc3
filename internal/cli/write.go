package cli

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/geostore/internal/batch"
	"github.com/roach88/geostore/internal/store"
	"github.com/roach88/geostore/internal/writer"
)

// WriteOptions holds flags for the write command.
type WriteOptions struct {
	*RootOptions
	Author string
	AppID  string
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "write <batch.yaml>",
		Short: "Apply a batch of feature writes in one transaction",
		Long: `Apply the collection changes and feature writes of a batch file in one
transaction. Either every write is applied or none is.

Example:
  geostore write --db ./geo.db ./batch.yaml
  geostore write --config ./geostore.yaml --author alice ./batch.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Author, "author", "", "author recorded on written states (overrides the batch file)")
	cmd.Flags().StringVar(&opts.AppID, "app-id", "", "application id recorded on written states")

	return cmd
}

// rowView is the printed form of one write result.
type rowView struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Action     string `json:"action"`
	Number     string `json:"number,omitempty"`
	Superseded string `json:"superseded,omitempty"`
}

func runWrite(opts *WriteOptions, path string, cmd *cobra.Command) error {
	b, err := batch.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid batch", err)
	}
	st, cfg, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore(st)

	sessOpts := store.SessionOptions{Author: b.Author, AppID: b.AppID}
	if opts.Author != "" {
		sessOpts.Author = opts.Author
	}
	if opts.AppID != "" {
		sessOpts.AppID = opts.AppID
	}

	ctx := cmd.Context()
	sess, err := st.Begin(ctx, sessOpts)
	if err != nil {
		return WrapStoreError("failed to begin transaction", err)
	}
	defer sess.Rollback()

	exec := newExecutor(cfg)
	resp, err := exec.Write(ctx, sess, b.Request)
	if err != nil {
		out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		_ = out.Error(err)
		return WrapStoreError("write failed", err)
	}
	txn := ""
	if sess.HasTxn() {
		v, err := sess.Txn(ctx)
		if err != nil {
			return WrapStoreError("write failed", err)
		}
		txn = v.String()
	}
	if err := exec.Commit(ctx, sess); err != nil {
		return WrapStoreError("commit failed", err)
	}
	slog.Info("batch committed", "txn", txn, "rows", len(resp.Rows), "collections", len(resp.Collections))

	rows := make([]rowView, len(resp.Rows))
	for i, r := range resp.Rows {
		rows[i] = viewRow(r)
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(txn, rows, func(w io.Writer) {
		for _, c := range resp.Collections {
			fmt.Fprintf(w, "%s collection %s\n", c.Op, c.ID)
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLLECTION\tID\tACTION\tSTATE")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Collection, r.ID, r.Action, r.Number)
		}
		tw.Flush()
		if txn != "" {
			fmt.Fprintf(w, "committed %s\n", txn)
		}
	})
}

func viewRow(r writer.Row) rowView {
	v := rowView{Collection: r.Collection, ID: r.ID, Action: r.Action.String()}
	if !r.Number.IsZero() {
		v.Number = r.Number.String()
	}
	if !r.Superseded.IsZero() {
		v.Superseded = r.Superseded.String()
	}
	return v
}
