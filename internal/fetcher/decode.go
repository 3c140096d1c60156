package fetcher

import (
	"bytes"
	"mime"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts a sourcetable body to text. A known charset parameter in
// contentType wins; otherwise valid UTF-8 is taken as is and anything else
// is read as Windows-1252, the usual encoding of older casters. The name
// of the encoding used is returned alongside the text.
func Decode(body []byte, contentType string) (string, string, error) {
	if charset := charsetOf(contentType); charset != "" {
		enc, err := htmlindex.Get(charset)
		if err == nil {
			name, _ := htmlindex.Name(enc)
			out, err := enc.NewDecoder().Bytes(body)
			if err != nil {
				return "", "", eris.Wrapf(err, "decode: %s", name)
			}
			return string(bytes.TrimPrefix(out, utf8BOM)), name, nil
		}
		zap.L().Debug("unknown charset, detecting encoding", zap.String("charset", charset))
	}

	if utf8.Valid(body) {
		return string(bytes.TrimPrefix(body, utf8BOM)), "utf-8", nil
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(body)
	if err != nil {
		return "", "", eris.Wrap(err, "decode: windows-1252")
	}
	return string(out), "windows-1252", nil
}

func charsetOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
