package fetcher

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultPort is the registered NTRIP caster port.
const DefaultPort = 2101

// BuildURL turns a caster address such as "rtk2go.com" or
// "https://caster.example.org:443/" into a request URL. The scheme defaults
// to http and port is used when the address carries none.
func BuildURL(caster string, port int) (string, error) {
	caster = strings.TrimSpace(caster)
	if caster == "" {
		return "", eris.New("fetch: empty caster address")
	}
	if port <= 0 {
		port = DefaultPort
	}
	if port > 65535 {
		return "", eris.Errorf("fetch: port %d out of range", port)
	}
	if !strings.Contains(caster, "://") {
		caster = "http://" + caster
	}

	u, err := url.Parse(caster)
	if err != nil {
		return "", eris.Wrapf(err, "fetch: parse caster %q", caster)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", eris.Errorf("fetch: caster %q has no host", caster)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}
