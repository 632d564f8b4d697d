package sshvfs

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sshvfs/sshvfs/pkg/sferr"
)

// Address is a parsed ssh://, sshfs:// or sftp:// address: scheme,
// optional principal, hostname, optional port, and a path given either
// SCP-style ("host:path", carried through exactly as given, home-relative
// unless it itself starts with "/") or slash-style ("host/path", which
// strips the leading slash to yield a home-relative path). Resolving an
// SSH-config alias or a secret-manager reference inside the principal or
// host is out of scope; Address carries them through unresolved.
type Address struct {
	Scheme         string
	Principal      string
	Hostname       string
	Port           int // 0 when unspecified; caller applies the endpoint default
	Path           string
	PathIsAbsolute bool
}

var addressPattern = regexp.MustCompile(
	`^(?P<scheme>ssh|sshfs|sftp)://` +
		`(?:(?P<principal>[^@/:]+)@)?` +
		`(?P<host>[^:/@]+)` +
		`(?::(?P<port>\d+))?` +
		`(?P<sep>[:/])` +
		`(?P<path>.*)$`)

// ParseAddress parses raw per the address syntax in spec §6. It performs
// no network or filesystem I/O and never resolves SSH-config aliases.
func ParseAddress(raw string) (Address, error) {
	m := addressPattern.FindStringSubmatch(raw)
	if m == nil {
		return Address{}, sferr.Newf(sferr.KindAddressFormat, "address %q does not match scheme://[principal@]host[:port](:path|/path)", raw)
	}
	groups := make(map[string]string)
	for i, name := range addressPattern.SubexpNames() {
		if name != "" {
			groups[name] = m[i]
		}
	}

	addr := Address{
		Scheme:    groups["scheme"],
		Principal: groups["principal"],
		Hostname:  groups["host"],
	}
	if addr.Hostname == "" {
		return Address{}, sferr.Newf(sferr.KindAddressFormat, "address %q is missing a hostname", raw)
	}
	if portStr := groups["port"]; portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return Address{}, sferr.Newf(sferr.KindAddressFormat, "address %q has an invalid port", raw)
		}
		addr.Port = port
	}

	// sep == ":" (SCP-style): path is carried through exactly as it appears
	// after the colon, home-relative unless it itself starts with "/".
	// sep == "/": the regex already consumed the leading slash as the
	// separator, so path is the remainder as-is, always home-relative.
	path := groups["path"]
	addr.Path = path
	if groups["sep"] == ":" {
		addr.PathIsAbsolute = strings.HasPrefix(path, "/")
	} else {
		addr.PathIsAbsolute = false
	}
	if addr.Path == "" {
		return Address{}, sferr.Newf(sferr.KindAddressFormat, "address %q is missing a path", raw)
	}
	return addr, nil
}

// Endpoint builds the Endpoint this address resolves to, applying
// defaultPort when the address did not specify one.
func (a Address) Endpoint(defaultPort int) Endpoint {
	port := a.Port
	if port == 0 {
		port = defaultPort
	}
	return Endpoint{Principal: a.Principal, Hostname: a.Hostname, Port: port}
}
