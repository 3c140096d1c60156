package sourcetable

import "strings"

// Delimiter separates fields within a sourcetable line.
const Delimiter = ";"

// MapRecords converts raw lines of kind k into records, one per line, in
// order. Each line is split into at most len(schema)+1 tokens so that
// delimiters inside the last field survive; the leading tag is dropped and
// the rest is zipped positionally against the schema.
func MapRecords(k Kind, lines []string) []Record {
	if len(lines) == 0 {
		return nil
	}
	n := len(k.Schema())
	out := make([]Record, 0, len(lines))
	for _, line := range lines {
		tokens := strings.SplitN(line, Delimiter, n+1)
		out = append(out, Record{kind: k, values: tokens[1:]})
	}
	return out
}
