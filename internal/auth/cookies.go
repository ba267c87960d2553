package auth

import (
	"net/http"
	"strings"
)

const DefaultSessionCookieName = "sid"

// CookieConfig holds session cookie settings
type CookieConfig struct {
	Name     string
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultSessionCookieName
	}
	return c.Name
}

// SetSessionCookie writes the session ID as a browser-session cookie
func SetSessionCookie(w http.ResponseWriter, sessionID string, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.name(),
		Value:    sessionID,
		Path:     "/",
		Domain:   config.Domain,
		HttpOnly: true, // Critical: prevents JavaScript access (XSS protection)
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.name(),
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// GetSessionCookie returns the session ID presented by the client, or "" when absent
func GetSessionCookie(r *http.Request, config CookieConfig) string {
	cookie, err := r.Cookie(config.name())
	if err != nil {
		return ""
	}
	return cookie.Value
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch strings.ToLower(sameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
