package sourcetable

import "strings"

// EndMarker terminates a sourcetable body.
const EndMarker = "ENDSOURCETABLE"

// cropPriority is the order in which tags are tried as the crop start.
var cropPriority = []Kind{Caster, Network, Stream}

// Crop returns the part of text holding sourcetable entries: from the first
// line tagged CAS (else NET, else STR) up to the end marker. When no tagged
// line exists it returns "". A missing end marker crops to the end of text.
func Crop(text string) string {
	start := -1
	for _, k := range cropPriority {
		if start = lineStart(text, k.Tag()); start >= 0 {
			break
		}
	}
	if start < 0 {
		return ""
	}

	body := text[start:]
	if end := strings.Index(body, EndMarker); end >= 0 {
		body = body[:end]
	}
	return body
}

// lineStart returns the offset of the first line beginning with tag. For
// lines after the first, the offset points at the preceding newline.
func lineStart(text, tag string) int {
	if strings.HasPrefix(text, tag) {
		return 0
	}
	return strings.Index(text, "\n"+tag)
}
