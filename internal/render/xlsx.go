package render

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// XLSX writes a workbook with one sheet per record kind. Every sheet is
// present even when the kind has no records.
func XLSX(w io.Writer, t *sourcetable.Table) error {
	f := xlsx.NewFile()
	for _, k := range sourcetable.Kinds {
		sheet, err := f.AddSheet(k.Tag())
		if err != nil {
			return eris.Wrapf(err, "render: xlsx add sheet %s", k.Tag())
		}

		h := sheet.AddRow()
		for _, name := range header(k)[1:] {
			h.AddCell().SetString(name)
		}

		for _, r := range t.Of(k) {
			xr := sheet.AddRow()
			for i := range k.Schema() {
				v, _ := r.Value(i)
				xr.AddCell().SetString(v)
			}
			c := xr.AddCell()
			if km, ok := r.Distance(); ok {
				c.SetFloat(km)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "render: xlsx write")
	}
	return nil
}
