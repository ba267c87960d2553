package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/auth"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/handlers"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/metrics"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/middleware"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/repositories"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/routes"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/services"
	pkgauth "github.com/JPdumas08/WebDev1.2-sub001/pkg/auth"
	pkglogger "github.com/JPdumas08/WebDev1.2-sub001/pkg/logger"
)

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

const testUserAgent = "Mozilla/5.0 (test)"

func newTestRouter(t *testing.T, health routes.HealthChecker) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hash, err := pkgauth.HashPassword("correct-horse", bcrypt.MinCost)
	require.NoError(t, err)
	account := services.NewTestAccount("acct-1", "alice@example.com", "alice", hash)

	accounts := &services.MockAccountRepository{
		FindByIdentifierFunc: func(_ context.Context, identifier string) (*models.Account, error) {
			if strings.EqualFold(identifier, "alice") || strings.EqualFold(identifier, "alice@example.com") {
				return account, nil
			}
			return nil, models.ErrNotFound
		},
	}

	manager := auth.NewSessionManager(repositories.NewMemorySessionStore(), auth.SessionConfig{}, logger)
	fingerprinter := auth.NewFingerprinter(auth.FingerprintConfig{})
	cookie := auth.CookieConfig{}
	auditLogger := pkglogger.NewAuditLogger(logger)
	m := metrics.New()

	service := services.NewAuthService(
		services.NewCredentialVerifier(accounts, services.VerifierConfig{HashCost: bcrypt.MinCost}, logger),
		auth.NewThrottle(auth.DefaultThrottleConfig(), logger),
		nil,
		manager,
		auth.NewRedirectSanitizer("index.php", ".php"),
		auth.NewCSRFTokenManager("routes-test-secret-0123456789", 0),
		logger,
		auditLogger,
	)
	service.SetMetrics(m)

	guard := auth.NewSessionGuard(manager, fingerprinter, cookie, "/login.php", logger)
	guard.SetMetrics(m)
	guard.SetAuditLogger(auditLogger, nil)

	router := chi.NewRouter()
	routes.RegisterRoutes(router,
		handlers.NewAuthHandler(service, fingerprinter, cookie, nil, logger),
		guard,
		middleware.RateLimitConfig{},
		health,
		m,
	)
	return router
}

func serve(router http.Handler, req *http.Request, sid string) *httptest.ResponseRecorder {
	req.Header.Set("User-Agent", testUserAgent)
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: auth.DefaultSessionCookieName, Value: sid})
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.DefaultSessionCookieName {
			return c.Value
		}
	}
	t.Fatal("response did not set a session cookie")
	return ""
}

func TestRoutes_LoginSessionLogout(t *testing.T) {
	router := newTestRouter(t, stubHealth{})

	// Anonymous visit: session started, token issued
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/csrf-token", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	anonymousID := sessionCookie(t, rec)

	var tokenResp handlers.CSRFTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tokenResp))
	require.NotEmpty(t, tokenResp.CSRFToken)

	// Protected page bounces anonymous callers to the login page
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/session", nil), anonymousID)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login.php?next="))

	body := `{"identifier":"Alice","password":"correct-horse","csrf_token":"` + tokenResp.CSRFToken + `","next":"orders.php"}`
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = serve(router, req, anonymousID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var loginResp handlers.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&loginResp))
	assert.True(t, loginResp.Success)
	assert.Equal(t, "orders.php", loginResp.RedirectTarget)

	authenticatedID := sessionCookie(t, rec)
	assert.NotEqual(t, anonymousID, authenticatedID, "session ID must rotate on login")

	// The pre-login ID no longer grants anything
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/session", nil), anonymousID)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/session", nil), authenticatedID)
	require.Equal(t, http.StatusOK, rec.Code)

	var sessionResp handlers.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sessionResp))
	assert.Equal(t, "acct-1", sessionResp.AccountID)
	assert.Equal(t, "alice", sessionResp.Username)

	// Logout from a members-only page falls back to the default target
	req = httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.Header.Set("Referer", "https://shop.example.com/account.php")
	rec = serve(router, req, authenticatedID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/index.php?"+services.CacheBusterParam+"="))
	assert.NotEqual(t, authenticatedID, sessionCookie(t, rec))

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/session", nil), authenticatedID)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestRoutes_LoginRejectsMissingToken(t *testing.T) {
	router := newTestRouter(t, stubHealth{})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"identifier":"alice","password":"correct-horse"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(router, req, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp handlers.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	fields := make([]string, 0, len(resp.Errors))
	for _, v := range resp.Errors {
		fields = append(fields, v.Field)
	}
	assert.Contains(t, fields, "csrf_token")
}

func TestRoutes_LoginMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, stubHealth{})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/login", nil), "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRoutes_Health(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"healthy", nil, http.StatusOK, `"status":"healthy"`},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable, `"database":"down"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, stubHealth{err: tt.err})
			rec := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil), "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestRoutes_Metrics(t *testing.T) {
	router := newTestRouter(t, stubHealth{})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
