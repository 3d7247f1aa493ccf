package prober

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/url"
	"strings"
)

// entityIDLen is the number of hex characters kept from the digest.
const entityIDLen = 16

// EntityID derives a stable identifier from a URL. Equivalent spellings of
// the same URL (scheme and host case, default port, empty path, fragment)
// share an ID. Collisions are tolerable: the ID is a dedup key, not a
// security boundary.
func EntityID(rawURL string) string {
	sum := sha256.Sum256([]byte(Normalize(rawURL)))
	return hex.EncodeToString(sum[:])[:entityIDLen]
}

// Normalize canonicalises rawURL for hashing. Unparseable input is returned
// trimmed but otherwise unchanged.
func Normalize(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}
	u.Host = host

	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
