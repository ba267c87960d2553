package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/metrics"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	pkghttp "github.com/JPdumas08/WebDev1.2-sub001/pkg/http"
	pkglogger "github.com/JPdumas08/WebDev1.2-sub001/pkg/logger"
)

const DefaultLoginPath = "/login.php"

// Re-authentication reasons passed to the login page
const (
	ReasonReauth  = "reauth"
	ReasonExpired = "expired"
)

type sessionContextKey struct{}

// WithSession stores the request's session record in ctx
func WithSession(ctx context.Context, record *models.SessionRecord) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, record)
}

// SessionFromContext returns the session loaded for this request, or nil
func SessionFromContext(ctx context.Context) *models.SessionRecord {
	record, _ := ctx.Value(sessionContextKey{}).(*models.SessionRecord)
	return record
}

// SessionGuard provides the session loading and session-required middleware
type SessionGuard struct {
	manager       *SessionManager
	fingerprinter *Fingerprinter
	cookie        CookieConfig
	loginPath     string
	logger        *slog.Logger
	metrics       *metrics.Metrics
	auditLogger   *pkglogger.AuditLogger
	ipConfig      *pkghttp.IPConfig
}

func NewSessionGuard(manager *SessionManager, fingerprinter *Fingerprinter, cookie CookieConfig, loginPath string, logger *slog.Logger) *SessionGuard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}

	return &SessionGuard{
		manager:       manager,
		fingerprinter: fingerprinter,
		cookie:        cookie,
		loginPath:     loginPath,
		logger:        logger,
	}
}

// SetMetrics enables invalidation counters
func (g *SessionGuard) SetMetrics(m *metrics.Metrics) {
	g.metrics = m
}

// SetAuditLogger enables audit events for destroyed sessions
func (g *SessionGuard) SetAuditLogger(auditLogger *pkglogger.AuditLogger, ipConfig *pkghttp.IPConfig) {
	g.auditLogger = auditLogger
	g.ipConfig = ipConfig
}

// LoadSession attaches the caller's session to the request context,
// starting an anonymous session when the cookie is missing or unknown.
func (g *SessionGuard) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record, fresh, err := g.manager.Load(r.Context(), GetSessionCookie(r, g.cookie), g.fingerprinter.Compute(r))
		if err != nil {
			g.logger.Error("failed to load session", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}

		if fresh {
			SetSessionCookie(w, record.ID, g.cookie)
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), record)))
	})
}

// RequireSession admits only authenticated sessions that still match the
// presenting client and are within the idle timeout. Everything else is
// redirected to the login page; destroyed sessions are replaced first.
func (g *SessionGuard) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record := SessionFromContext(r.Context())
		if record == nil {
			g.logger.Error("session required but none loaded", slog.String("path", r.URL.Path))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}

		fingerprint := g.fingerprinter.Compute(r)
		err := g.manager.Validate(r.Context(), record, fingerprint)

		var reason, eventType string
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
			return
		case errors.Is(err, models.ErrUnauthorized):
			http.Redirect(w, r, g.loginURL(url.Values{"next": {strings.TrimPrefix(r.URL.RequestURI(), "/")}}), http.StatusSeeOther)
			return
		case errors.Is(err, models.ErrHijackSuspected):
			reason, eventType = ReasonReauth, pkglogger.EventSessionHijack
		case errors.Is(err, models.ErrSessionExpired):
			reason, eventType = ReasonExpired, pkglogger.EventSessionExpired
		default:
			g.logger.Error("session validation failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}

		g.metrics.SessionInvalidated(reason)
		if g.auditLogger != nil {
			g.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
				EventType: eventType,
				AccountID: record.AccountID,
				IPAddress: pkghttp.ExtractClientIP(r, g.ipConfig),
				UserAgent: r.UserAgent(),
			})
		}

		// The old record is already gone; hand the client a clean anonymous session
		fresh, err := g.manager.Start(r.Context(), fingerprint)
		if err != nil {
			g.logger.Error("failed to start replacement session", slog.Any("error", err))
			ClearSessionCookie(w, g.cookie)
		} else {
			SetSessionCookie(w, fresh.ID, g.cookie)
		}

		http.Redirect(w, r, g.loginURL(url.Values{"reason": {reason}}), http.StatusSeeOther)
	})
}

func (g *SessionGuard) loginURL(query url.Values) string {
	if len(query) == 0 {
		return g.loginPath
	}
	return g.loginPath + "?" + query.Encode()
}
