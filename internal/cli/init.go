package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the store schema and the configured collections",
		Long: `Create the store schema, apply pending migrations and create every
collection listed in the configuration file that does not exist yet.

Example:
  geostore init --db ./geo.db
  geostore init --config ./geostore.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer closeStore(st)

	defs, err := cfg.CollectionDefinitions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid collection definition", err)
	}
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		c, err := st.Registry().Ensure(cmd.Context(), st.DB(), def)
		if err != nil {
			return WrapStoreError("failed to create collection "+def.ID, err)
		}
		slog.Info("collection ready", "collection", c.ID, "partitions", c.Partitions)
		ids = append(ids, c.ID)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success("", map[string]any{"driver": cfg.Driver, "collections": ids}, func(w io.Writer) {
		fmt.Fprintf(w, "Store initialized (%s, %d collections)\n", cfg.Driver, len(ids))
	})
}
