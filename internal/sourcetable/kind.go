// Package sourcetable parses NTRIP caster sourcetables into STR, CAS and NET
// records and annotates them with distances from a base point.
package sourcetable

import "github.com/rotisserie/eris"

// Kind identifies a sourcetable record type by its line tag.
type Kind int

const (
	Stream Kind = iota
	Caster
	Network
)

// Kinds lists every record kind in output order.
var Kinds = []Kind{Stream, Caster, Network}

// Field names shared between kinds.
const (
	FieldLatitude  = "Latitude"
	FieldLongitude = "Longitude"
	FieldDistance  = "Distance"
)

// schemas maps each kind to its positional header. Read-only after init.
var schemas = [...][]string{
	Stream: {
		"Mountpoint", "ID", "Format", "Format-Details", "Carrier",
		"Nav-System", "Network", "Country", FieldLatitude, FieldLongitude,
		"NMEA", "Solution", "Generator", "Compr-Encrp", "Authentication",
		"Fee", "Bitrate", "Other Details",
	},
	Caster: {
		"Host", "Port", "ID", "Operator", "NMEA", "Country",
		FieldLatitude, FieldLongitude, "Fallback-Host", "Fallback-Port", "Site",
	},
	Network: {
		"ID", "Operator", "Authentication", "Fee",
		"Web-Net", "Web-Str", "Web-Reg", "Misc",
	},
}

var tags = [...]string{
	Stream:  "STR",
	Caster:  "CAS",
	Network: "NET",
}

// Tag returns the 3-letter line prefix of the kind.
func (k Kind) Tag() string {
	if !k.valid() {
		return ""
	}
	return tags[k]
}

// String returns the tag; it makes Kind print nicely in logs.
func (k Kind) String() string {
	if !k.valid() {
		return "UNKNOWN"
	}
	return tags[k]
}

// Schema returns the ordered field names of the kind. Callers must not
// modify the returned slice.
func (k Kind) Schema() []string {
	if !k.valid() {
		return nil
	}
	return schemas[k]
}

// FieldIndex returns the schema position of name, or -1.
func (k Kind) FieldIndex(name string) int {
	for i, f := range k.Schema() {
		if f == name {
			return i
		}
	}
	return -1
}

// ParseKind resolves a tag such as "STR" (case-sensitive) to its kind.
func ParseKind(tag string) (Kind, error) {
	for _, k := range Kinds {
		if tags[k] == tag {
			return k, nil
		}
	}
	return 0, eris.Errorf("sourcetable: unknown kind %q", tag)
}

// MarshalText encodes the kind as its tag.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, eris.Errorf("sourcetable: invalid kind %d", int(k))
	}
	return []byte(tags[k]), nil
}

// UnmarshalText decodes a tag.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func (k Kind) valid() bool {
	return k >= Stream && k <= Network
}
