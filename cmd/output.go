package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ntripbrowser/internal/render"
	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// outputOptions holds the flags shared by commands that print a
// sourcetable.
type outputOptions struct {
	format      string
	output      string
	netTable    bool
	casTable    bool
	noPager     bool
	maxDistance float64
	sortBy      string
}

func (o *outputOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.format, "format", "", "output format: "+strings.Join(render.FormatNames(), ", ")+" (default from config)")
	f.StringVarP(&o.output, "output", "o", "", "write to this file instead of stdout (shapefile: base path)")
	f.BoolVarP(&o.netTable, "net-table", "N", false, "additionally show the NET table")
	f.BoolVarP(&o.casTable, "cas-table", "C", false, "additionally show the CAS table")
	f.BoolVarP(&o.noPager, "no-pager", "n", false, "do not pipe table output through a pager")
	f.Float64Var(&o.maxDistance, "max-distance", 0, "keep only records within this many km of the base point")
	f.StringVar(&o.sortBy, "sort", "", `sort records by "distance" or a field name`)
}

func (o *outputOptions) sections() []sourcetable.Kind {
	kinds := []sourcetable.Kind{sourcetable.Stream}
	if o.casTable {
		kinds = append(kinds, sourcetable.Caster)
	}
	if o.netTable {
		kinds = append(kinds, sourcetable.Network)
	}
	return kinds
}

// resolve validates the flags against config defaults.
func (o *outputOptions) resolve() (render.Format, render.View, error) {
	name := o.format
	if name == "" {
		name = cfg.Output.Format
	}
	format, err := render.ParseFormat(name)
	if err != nil {
		return "", render.View{}, err
	}
	if format == render.FormatShapefile && o.output == "" {
		return "", render.View{}, eris.New("shapefile output needs --output")
	}
	view := render.View{MaxDistance: o.maxDistance, SortBy: o.sortBy}
	if err := view.Validate(); err != nil {
		return "", render.View{}, err
	}
	return format, view, nil
}

// emit writes t to stdout or the --output file.
func (o *outputOptions) emit(stdout io.Writer, t *sourcetable.Table) error {
	format, view, err := o.resolve()
	if err != nil {
		return err
	}
	t = view.Apply(t)
	opts := render.Options{Format: format, Sections: o.sections()}

	if format == render.FormatShapefile {
		paths, err := render.WriteShapefiles(o.output, t)
		if err != nil {
			return err
		}
		for _, p := range paths {
			_, _ = fmt.Fprintln(stdout, p)
		}
		return nil
	}

	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return eris.Wrap(err, "create output file")
		}
		if err := render.Write(f, t, opts); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		zap.L().Info("wrote output", zap.String("path", o.output), zap.String("format", string(format)))
		return eris.Wrap(f.Close(), "close output file")
	}

	terminal := false
	if f, ok := stdout.(*os.File); ok {
		terminal = render.IsTerminal(f)
	}
	if format.Binary() && terminal {
		return eris.Errorf("%s output is binary; use --output", format)
	}
	if format == render.FormatTable && terminal && !o.noPager && !cfg.Output.NoPager {
		var buf bytes.Buffer
		if err := render.Write(&buf, t, opts); err != nil {
			return err
		}
		return render.Pager{Command: cfg.Output.Pager, Stdout: stdout, Stderr: os.Stderr}.Page(buf.Bytes())
	}
	return render.Write(stdout, t, opts)
}
