package sourcetable

// StreamEntry is the typed view of an STR record. Absent fields are "".
type StreamEntry struct {
	Mountpoint     string
	Identifier     string
	Format         string
	FormatDetails  string
	Carrier        string
	NavSystem      string
	Network        string
	Country        string
	Latitude       string
	Longitude      string
	NMEA           string
	Solution       string
	Generator      string
	Compression    string
	Authentication string
	Fee            string
	Bitrate        string
	Misc           string
}

// CasterEntry is the typed view of a CAS record.
type CasterEntry struct {
	Host         string
	Port         string
	Identifier   string
	Operator     string
	NMEA         string
	Country      string
	Latitude     string
	Longitude    string
	FallbackHost string
	FallbackPort string
	Site         string
}

// NetworkEntry is the typed view of a NET record.
type NetworkEntry struct {
	Identifier     string
	Operator       string
	Authentication string
	Fee            string
	WebNet         string
	WebStream      string
	WebRegister    string
	Misc           string
}

// Stream decodes r as an STR entry. It returns false if r is another kind.
func (r Record) Stream() (StreamEntry, bool) {
	if r.kind != Stream {
		return StreamEntry{}, false
	}
	v := r.at
	return StreamEntry{
		Mountpoint:     v(0),
		Identifier:     v(1),
		Format:         v(2),
		FormatDetails:  v(3),
		Carrier:        v(4),
		NavSystem:      v(5),
		Network:        v(6),
		Country:        v(7),
		Latitude:       v(8),
		Longitude:      v(9),
		NMEA:           v(10),
		Solution:       v(11),
		Generator:      v(12),
		Compression:    v(13),
		Authentication: v(14),
		Fee:            v(15),
		Bitrate:        v(16),
		Misc:           v(17),
	}, true
}

// Caster decodes r as a CAS entry.
func (r Record) Caster() (CasterEntry, bool) {
	if r.kind != Caster {
		return CasterEntry{}, false
	}
	v := r.at
	return CasterEntry{
		Host:         v(0),
		Port:         v(1),
		Identifier:   v(2),
		Operator:     v(3),
		NMEA:         v(4),
		Country:      v(5),
		Latitude:     v(6),
		Longitude:    v(7),
		FallbackHost: v(8),
		FallbackPort: v(9),
		Site:         v(10),
	}, true
}

// Network decodes r as a NET entry.
func (r Record) Network() (NetworkEntry, bool) {
	if r.kind != Network {
		return NetworkEntry{}, false
	}
	v := r.at
	return NetworkEntry{
		Identifier:     v(0),
		Operator:       v(1),
		Authentication: v(2),
		Fee:            v(3),
		WebNet:         v(4),
		WebStream:      v(5),
		WebRegister:    v(6),
		Misc:           v(7),
	}, true
}

func (r Record) at(i int) string {
	v, _ := r.Value(i)
	return v
}
