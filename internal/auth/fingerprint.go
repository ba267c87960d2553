package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/netip"
	"strings"

	pkghttp "github.com/JPdumas08/WebDev1.2-sub001/pkg/http"
)

// FingerprintConfig selects the request attributes a session is bound to
type FingerprintConfig struct {
	Headers         []string // defaults to User-Agent
	IncludeIPSubnet bool     // bind to the client's /24 (IPv4) or /64 (IPv6)
	IPConfig        *pkghttp.IPConfig
}

// Fingerprinter derives the client fingerprint a session is bound to at login
type Fingerprinter struct {
	headers         []string
	includeIPSubnet bool
	ipConfig        *pkghttp.IPConfig
}

func NewFingerprinter(config FingerprintConfig) *Fingerprinter {
	headers := make([]string, 0, len(config.Headers))
	for _, h := range config.Headers {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, http.CanonicalHeaderKey(h))
		}
	}
	if len(headers) == 0 {
		headers = []string{"User-Agent"}
	}

	return &Fingerprinter{
		headers:         headers,
		includeIPSubnet: config.IncludeIPSubnet,
		ipConfig:        config.IPConfig,
	}
}

// Compute hashes the configured attributes; the raw values are never stored
func (f *Fingerprinter) Compute(r *http.Request) string {
	components := make([]string, 0, len(f.headers)+1)
	for _, h := range f.headers {
		components = append(components, strings.ToLower(h)+":"+r.Header.Get(h))
	}

	if f.includeIPSubnet {
		components = append(components, "subnet:"+ipSubnet(pkghttp.ExtractClientIP(r, f.ipConfig)))
	}

	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:])
}

// MatchFingerprint compares fingerprints in constant time
func MatchFingerprint(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

func ipSubnet(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()

	bits := 64
	if addr.Is4() {
		bits = 24
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.String()
}
