package logger

import (
	"log/slog"
	"strings"
)

// identifierKeyPrefix is enough of a hashed identifier to correlate log lines
const identifierKeyPrefix = 16

// IdentifierKeyAttr logs a hashed login identifier in shortened form
func IdentifierKeyAttr(key string) slog.Attr {
	if len(key) > identifierKeyPrefix {
		key = key[:identifierKeyPrefix]
	}
	return slog.String("identifier_key", key)
}

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	username, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	// Keep the TLD only
	domainParts := strings.Split(domain, ".")
	for i := 0; i < len(domainParts)-1; i++ {
		domainParts[i] = strings.Repeat("*", len(domainParts[i]))
	}

	return username + "@" + strings.Join(domainParts, ".")
}

// sensitiveQueryParams appear in login forms, anti-forgery tokens and redirect hints
var sensitiveQueryParams = []string{
	"password",
	"secret",
	"token",
	"csrf",
	"identifier",
	"email",
	"username",
	"auth",
	"sid",
}

// SanitizeQueryString reports whether a query string should be redacted in its entirety
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveQueryParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
