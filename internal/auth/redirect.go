package auth

import (
	"path"
	"regexp"
	"strings"
)

const (
	// DefaultLandingTarget is where any rejected or empty redirect hint ends up
	DefaultLandingTarget = "index.php"

	// DefaultPageExtension is appended to bare route names such as "products"
	DefaultPageExtension = ".php"
)

// schemePattern matches anything a browser would treat as carrying a scheme
// ("http:", "HTTPS:", "javascript:", "http:/host" ...)
var schemePattern = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.\-]*:`)

// RedirectSanitizer turns a caller-supplied "next page" hint into a relative
// target that always resolves against the application's own origin.
type RedirectSanitizer struct {
	defaultTarget string
	extension     string
}

// NewRedirectSanitizer creates a sanitizer; empty arguments fall back to the package defaults
func NewRedirectSanitizer(defaultTarget, extension string) *RedirectSanitizer {
	if defaultTarget = strings.TrimSpace(defaultTarget); defaultTarget == "" {
		defaultTarget = DefaultLandingTarget
	}
	if extension = strings.TrimSpace(extension); extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}

	return &RedirectSanitizer{
		defaultTarget: defaultTarget,
		extension:     extension,
	}
}

// Default returns the landing target used when a hint is rejected
func (s *RedirectSanitizer) Default() string {
	return s.defaultTarget
}

// Normalize never fails: anything ambiguous collapses to the default landing target.
func (s *RedirectSanitizer) Normalize(raw string) string {
	target := strings.TrimSpace(stripControl(raw))
	if target == "" {
		return s.defaultTarget
	}

	if isAbsoluteTarget(target) {
		return s.defaultTarget
	}

	// Browsers treat "\" as "/" in paths
	target = strings.ReplaceAll(target, `\`, "/")
	if strings.HasPrefix(target, "//") {
		return s.defaultTarget
	}

	// Bare route names resolve to page files
	if s.extension != "" && !strings.ContainsAny(target, "/?&#") && path.Ext(target) == "" {
		target += s.extension
	}

	// "page&b=2" -> "page?b=2"
	if amp := strings.IndexByte(target, '&'); amp >= 0 {
		if q := strings.IndexByte(target, '?'); q < 0 || amp < q {
			target = target[:amp] + "?" + target[amp+1:]
		}
	}

	return target
}

// isAbsoluteTarget reports whether the target could leave the application's origin
func isAbsoluteTarget(target string) bool {
	if schemePattern.MatchString(target) {
		return true
	}

	if strings.Contains(target, "://") {
		return true
	}

	// Protocol-relative forms. A single leading backslash becomes "//" once a
	// slash is prepended, so it is rejected too.
	return strings.HasPrefix(target, "//") ||
		strings.HasPrefix(target, `\`) ||
		strings.HasPrefix(target, `/\`)
}

// LocalPath renders a sanitized target as an origin-relative path with exactly
// one leading slash, so no "//" or "/\" prefix can reach a Location header
func LocalPath(target string) string {
	return "/" + strings.TrimLeft(target, `/\`)
}

// stripControl drops ASCII control characters, which browsers silently remove from URLs
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
