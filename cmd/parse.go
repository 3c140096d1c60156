package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ntripbrowser/internal/browse"
)

var (
	parseBasePoint string
	parseOut       outputOptions
)

var parseCmd = &cobra.Command{
	Use:   "parse [file|-]",
	Short: "Parse a saved sourcetable",
	Long:  "Parses a sourcetable read from a file, or from stdin when the file is omitted or \"-\".",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, _, err := parseOut.resolve(); err != nil {
			return err
		}
		base, err := parseBase(parseBasePoint)
		if err != nil {
			return err
		}

		source := "-"
		if len(args) == 1 {
			source = args[0]
		}
		body, err := readSource(cmd.InOrStdin(), source)
		if err != nil {
			return err
		}

		res, err := browse.Offline(source, body, base)
		if err != nil {
			return err
		}
		return parseOut.emit(cmd.OutOrStdout(), res.Table)
	},
}

func readSource(stdin io.Reader, source string) ([]byte, error) {
	if source == "-" {
		b, err := io.ReadAll(stdin)
		return b, eris.Wrap(err, "read stdin")
	}
	b, err := os.ReadFile(source)
	return b, eris.Wrapf(err, "read %s", source)
}

func init() {
	parseCmd.Flags().StringVarP(&parseBasePoint, "base-point", "b", "", "base point coordinates as lat,lon")
	parseOut.bind(parseCmd)
	rootCmd.AddCommand(parseCmd)
}
