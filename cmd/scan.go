package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ntripbrowser/internal/browse"
	"github.com/sells-group/ntripbrowser/internal/store"
)

var (
	scanPort        int
	scanTimeout     int
	scanBase        string
	scanConcurrency int
	scanSave        bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <caster>...",
	Short: "Browse several casters concurrently and summarize them",
	Long: `Fetches the sourcetables of several casters in parallel and prints one
summary line per caster. A caster that cannot be reached is reported in
the summary and does not stop the others.`,
	Example: `  ntripbrowser scan rtk2go.com caster.example.org:2102 -b 50.45,30.52`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if scanConcurrency > 0 {
			cfg.Scan.Concurrency = scanConcurrency
		}
		if err := cfg.Validate("scan"); err != nil {
			return err
		}
		base, err := parseBase(scanBase)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		reqs := make([]browse.Request, len(args))
		for i, caster := range args {
			reqs[i] = browse.Request{Caster: caster, Port: casterPort(scanPort), Base: base}
		}

		svc := browse.NewService(
			newFetcher(scanTimeout, cfg.Scan.RatePerHost),
			browse.WithConcurrency(cfg.Scan.Concurrency),
		)
		results, err := svc.Scan(ctx, reqs)
		if err != nil {
			return err
		}

		if scanSave {
			if err := saveScan(cmd, results); err != nil {
				return err
			}
		}

		formatScanSummary(cmd.OutOrStdout(), results)

		failed := 0
		for _, r := range results {
			if !r.OK() {
				failed++
			}
		}
		if failed == len(results) {
			return eris.Errorf("scan: all %d casters failed", failed)
		}
		return nil
	},
}

func saveScan(cmd *cobra.Command, results []browse.ScanResult) error {
	ctx := cmd.Context()
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	for _, r := range results {
		if !r.OK() {
			continue
		}
		snap := store.FromResult(r.Result)
		if err := st.SaveSnapshot(ctx, snap); err != nil {
			return eris.Wrapf(err, "scan: save snapshot for %s", r.Request.Caster)
		}
		zap.L().Debug("saved snapshot", zap.String("caster", r.Request.Caster), zap.String("id", snap.ID))
	}
	return nil
}

// formatScanSummary writes one line per scanned caster to out.
func formatScanSummary(out io.Writer, results []browse.ScanResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CASTER\tPROTOCOL\tSTR\tCAS\tNET\tNEAREST\tDISTANCE_KM\tTIME\tERROR")
	_, _ = fmt.Fprintln(w, "------\t--------\t---\t---\t---\t-------\t-----------\t----\t-----")

	for _, r := range results {
		if !r.OK() {
			msg := "cancelled"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			_, _ = fmt.Fprintf(w, "%s\t\t\t\t\t\t\t\t%s\n", r.Request.Caster, msg)
			continue
		}
		t := r.Result.Table
		nearest, dist := "", ""
		if name, km, ok := nearestStream(r.Result); ok {
			nearest = name
			dist = fmt.Sprintf("%.1f", km)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\t\n",
			r.Request.Caster,
			r.Result.Protocol,
			len(t.Streams),
			len(t.Casters),
			len(t.Networks),
			nearest,
			dist,
			r.Result.Duration.Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}

// nearestStream returns the mountpoint of the closest stream.
func nearestStream(res *browse.Result) (string, float64, bool) {
	var (
		name  string
		best  float64
		found bool
	)
	for _, r := range res.Table.Streams {
		d, ok := r.Distance()
		if !ok {
			continue
		}
		if !found || d < best {
			name, best, found = r.Get("Mountpoint"), d, true
		}
	}
	return name, best, found
}

func init() {
	f := scanCmd.Flags()
	f.IntVarP(&scanPort, "port", "p", 0, "caster port for entries without one (default from config, 2101)")
	f.IntVarP(&scanTimeout, "timeout", "t", 0, "per-caster fetch timeout in seconds (default from config)")
	f.StringVarP(&scanBase, "base-point", "b", "", "base point coordinates as lat,lon")
	f.IntVar(&scanConcurrency, "concurrency", 0, "casters fetched at once (default from config)")
	f.BoolVar(&scanSave, "save", false, "save every successful result to the snapshot store")
	rootCmd.AddCommand(scanCmd)
}
