package sourcetable

import "strings"

// Lines holds raw sourcetable lines grouped by kind, in input order.
type Lines struct {
	Streams  []string
	Casters  []string
	Networks []string
}

// Of returns the lines of kind k.
func (l Lines) Of(k Kind) []string {
	switch k {
	case Stream:
		return l.Streams
	case Caster:
		return l.Casters
	case Network:
		return l.Networks
	}
	return nil
}

// Classify splits payload into lines and groups them by tag prefix.
// Untagged and blank lines are dropped.
func Classify(payload string) Lines {
	var out Lines
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, tags[Stream]):
			out.Streams = append(out.Streams, line)
		case strings.HasPrefix(line, tags[Caster]):
			out.Casters = append(out.Casters, line)
		case strings.HasPrefix(line, tags[Network]):
			out.Networks = append(out.Networks, line)
		}
	}
	return out
}
