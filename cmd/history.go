package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ntripbrowser/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect saved sourcetable snapshots",
	Long:  "Commands for listing and viewing snapshots saved with --save or through the HTTP API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("history")
	},
}

// -- history list --

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		caster, _ := cmd.Flags().GetString("caster")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")

		filter := store.SnapshotFilter{Caster: caster, Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		snaps, err := st.ListSnapshots(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "history list")
		}

		if len(snaps) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No snapshots found.")
			return nil
		}

		formatSnapshotList(cmd.OutOrStdout(), snaps)
		return nil
	},
}

// -- history show --

var historyShowOut outputOptions

var historyShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Show a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		meta, _ := cmd.Flags().GetBool("meta")
		if !meta {
			if _, _, err := historyShowOut.resolve(); err != nil {
				return err
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := st.GetSnapshot(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "history show")
		}

		if meta {
			snap.Table = nil
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		return historyShowOut.emit(cmd.OutOrStdout(), snap.Table)
	},
}

func init() {
	historyListCmd.Flags().String("caster", "", "filter by caster address")
	historyListCmd.Flags().Int("limit", 50, "max number of snapshots to display")
	historyListCmd.Flags().Duration("since", 0, "only snapshots saved within this window (e.g. 24h)")

	historyShowCmd.Flags().Bool("meta", false, "print snapshot metadata as JSON instead of the table")
	historyShowOut.bind(historyShowCmd)

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

// formatSnapshotList writes a tabular list of snapshots to w.
func formatSnapshotList(out io.Writer, snaps []store.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCASTER\tPROTOCOL\tSTR\tCAS\tNET\tBASE\tSAVED")
	_, _ = fmt.Fprintln(w, "--\t------\t--------\t---\t---\t---\t----\t-----")

	for _, s := range snaps {
		base := ""
		if s.Base != nil {
			base = s.Base.String()
		}
		caster := s.Caster
		if len(caster) > 30 {
			caster = caster[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.ID,
			caster,
			s.Protocol,
			s.Streams,
			s.Casters,
			s.Networks,
			base,
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
