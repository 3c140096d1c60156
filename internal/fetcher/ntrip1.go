package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// NTRIP 1.0 status lines.
const (
	statusSourcetable = "SOURCETABLE 200 OK"
	statusStream      = "ICY 200 OK"
	endMarker         = "ENDSOURCETABLE"
)

// fetchRaw speaks NTRIP 1.0 over a plain TCP connection. The caster answers
// with "SOURCETABLE 200 OK", a header block and the table, and may keep the
// connection open after the ENDSOURCETABLE line.
func (f *HTTPFetcher) fetchRaw(ctx context.Context, u *url.URL) (*Payload, error) {
	d := net.Dialer{Timeout: f.opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: dial %s", u.Host)
	}
	defer conn.Close() //nolint:errcheck

	deadline := time.Now().Add(f.opts.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, eris.Wrap(err, "fetch: set deadline")
	}

	// Unblock reads when ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := io.WriteString(conn, rawRequest(u, f.opts.UserAgent)); err != nil {
		return nil, eris.Wrapf(err, "fetch: write request to %s", u.Host)
	}

	r := bufio.NewReader(io.LimitReader(conn, f.opts.MaxBodyBytes+1))
	status, err := r.ReadString('\n')
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read status from %s", u.Host)
	}
	status = strings.TrimRight(status, "\r\n")

	switch {
	case strings.HasPrefix(status, statusSourcetable):
	case strings.HasPrefix(status, statusStream):
		return nil, eris.Wrapf(ErrNotSourcetable, "fetch: %s answered %q", redact(u), status)
	case strings.HasPrefix(status, "HTTP/") && strings.Contains(status, " 200 "):
	default:
		return nil, eris.Errorf("fetch: unexpected status %q from %s", status, redact(u))
	}

	contentType := ""
	for {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				break
			}
			return nil, eris.Wrapf(err, "fetch: read headers from %s", u.Host)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Type") {
			contentType = strings.TrimSpace(value)
		}
	}

	var body bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		body.WriteString(line)
		if strings.HasPrefix(line, endMarker) {
			break
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTimeout(err) && ctx.Err() == nil && body.Len() > 0 {
				// Some casters neither send the end marker nor close.
				break
			}
			return nil, eris.Wrapf(err, "fetch: read sourcetable from %s", u.Host)
		}
	}
	if int64(body.Len()) > f.opts.MaxBodyBytes {
		return nil, eris.Errorf("fetch: body from %s exceeds %d bytes", redact(u), f.opts.MaxBodyBytes)
	}

	return &Payload{
		URL:         redact(u),
		Status:      status,
		Protocol:    ProtocolNtrip1,
		ContentType: contentType,
		Body:        body.Bytes(),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func rawRequest(u *url.URL, userAgent string) string {
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.0\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", u.Host)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	b.WriteString("Accept: */*\r\n")
	if u.User != nil {
		pass, _ := u.User.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.User.Username() + ":" + pass))
		fmt.Fprintf(&b, "Authorization: Basic %s\r\n", cred)
	}
	b.WriteString("Connection: close\r\n\r\n")
	return b.String()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
