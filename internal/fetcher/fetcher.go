package fetcher

import (
	"context"
	"time"
)

// Protocol values reported on a Payload.
const (
	ProtocolHTTP   = "HTTP"
	ProtocolNtrip1 = "NTRIP/1.0"
)

// Payload is the raw sourcetable response of a caster.
type Payload struct {
	URL         string    `json:"url"`
	Status      string    `json:"status"`
	Protocol    string    `json:"protocol"`
	ContentType string    `json:"content_type,omitempty"`
	Body        []byte    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Fetcher retrieves caster sourcetables.
type Fetcher interface {
	// Fetch requests the sourcetable at url and returns the undecoded body.
	Fetch(ctx context.Context, url string) (*Payload, error)
}
