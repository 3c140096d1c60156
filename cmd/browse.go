package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ntripbrowser/internal/browse"
	"github.com/sells-group/ntripbrowser/internal/store"
)

var (
	browsePort    int
	browseTimeout int
	browseBase    string
	browseSource  bool
	browseSave    bool
	browseOut     outputOptions
)

var browseCmd = &cobra.Command{
	Use:   "browse <caster>",
	Short: "Fetch and display a caster's sourcetable",
	Long: `Fetches the sourcetable of an NTRIP caster and prints its streams.

The caster may be a host name or a URL; http:// and port 2101 are added
when missing. With --base-point every record carrying coordinates gets its
distance in kilometres from that point.`,
	Example: `  ntripbrowser browse rtk2go.com
  ntripbrowser browse caster.example.org -p 2102 -b 50.45,30.52 --sort distance
  ntripbrowser browse rtk2go.com -NC --format json -o rtk2go.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("browse"); err != nil {
			return err
		}
		if _, _, err := browseOut.resolve(); err != nil {
			return err
		}
		base, err := parseBase(browseBase)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		svc := browse.NewService(newFetcher(browseTimeout, 0))
		res, err := svc.Browse(ctx, browse.Request{
			Caster: args[0],
			Port:   casterPort(browsePort),
			Base:   base,
		})
		if err != nil {
			return err
		}
		zap.L().Info("sourcetable received",
			zap.String("url", res.URL),
			zap.String("encoding", res.Encoding),
			zap.Int("skipped", len(res.Table.Skipped)),
		)

		if browseSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			snap := store.FromResult(res)
			if err := st.SaveSnapshot(ctx, snap); err != nil {
				return eris.Wrap(err, "browse: save snapshot")
			}
			zap.L().Info("saved snapshot", zap.String("id", snap.ID))
		}

		if browseSource {
			_, err := fmt.Fprint(cmd.OutOrStdout(), res.Text)
			return err
		}
		return browseOut.emit(cmd.OutOrStdout(), res.Table)
	},
}

func init() {
	f := browseCmd.Flags()
	f.IntVarP(&browsePort, "port", "p", 0, "caster port (default from config, 2101)")
	f.IntVarP(&browseTimeout, "timeout", "t", 0, "fetch timeout in seconds (default from config)")
	f.StringVarP(&browseBase, "base-point", "b", "", "base point coordinates as lat,lon")
	f.BoolVarP(&browseSource, "source", "s", false, "print the raw sourcetable text instead of tables")
	f.BoolVar(&browseSave, "save", false, "save the result to the snapshot store")
	browseOut.bind(browseCmd)
	rootCmd.AddCommand(browseCmd)
}
