package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/auth"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/metrics"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	pkglogger "github.com/JPdumas08/WebDev1.2-sub001/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCookie = auth.CookieConfig{Name: "sid", Secure: true, SameSite: "lax"}

type guardHarness struct {
	*sessionHarness
	fingerprinter *auth.Fingerprinter
	guard         *auth.SessionGuard
}

func newGuardHarness() *guardHarness {
	h := newSessionHarness()
	fingerprinter := auth.NewFingerprinter(auth.FingerprintConfig{})

	guard := auth.NewSessionGuard(h.manager, fingerprinter, testCookie, "", discardLogger())
	guard.SetMetrics(metrics.New())
	guard.SetAuditLogger(pkglogger.NewAuditLogger(discardLogger()), nil)

	return &guardHarness{sessionHarness: h, fingerprinter: fingerprinter, guard: guard}
}

func (h *guardHarness) request(target, userAgent, sid string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("User-Agent", userAgent)
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: testCookie.Name, Value: sid})
	}
	return req
}

// serveGuarded runs req through LoadSession and RequireSession and reports
// whether the protected handler ran
func (h *guardHarness) serveGuarded(req *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	protected := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	h.guard.LoadSession(h.guard.RequireSession(protected)).ServeHTTP(rec, req)
	return rec, reached
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionGuard_LoadSessionStartsAnonymousSession(t *testing.T) {
	h := newGuardHarness()

	var loaded *models.SessionRecord
	handler := h.guard.LoadSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loaded = auth.SessionFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, h.request("/", "UA", ""))

	require.NotNil(t, loaded)
	assert.False(t, loaded.Authenticated())

	cookie := findCookie(rec, "sid")
	require.NotNil(t, cookie)
	assert.Equal(t, loaded.ID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)

	// A known ID is reused without a new cookie
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, h.request("/", "UA", cookie.Value))
	assert.Equal(t, cookie.Value, loaded.ID)
	assert.Nil(t, findCookie(rec, "sid"))
}

func TestSessionGuard_LoadSessionStoreFault(t *testing.T) {
	manager := auth.NewSessionManager(brokenSessionStore{}, auth.SessionConfig{}, discardLogger())
	guard := auth.NewSessionGuard(manager, auth.NewFingerprinter(auth.FingerprintConfig{}), testCookie, "", discardLogger())

	called := false
	rec := httptest.NewRecorder()
	guard.LoadSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSessionGuard_RequireSessionRedirectsAnonymous(t *testing.T) {
	h := newGuardHarness()

	rec, reached := h.serveGuarded(h.request("/orders.php?page=2", "UA", ""))

	assert.False(t, reached)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultLoginPath, location.Path)
	assert.Equal(t, "orders.php?page=2", location.Query().Get("next"))
}

func TestSessionGuard_RequireSessionAdmitsAuthenticated(t *testing.T) {
	h := newGuardHarness()
	req := h.request("/orders.php", "UA", "")
	record := h.login(t, h.fingerprinter.Compute(req))

	rec, reached := h.serveGuarded(h.request("/orders.php", "UA", record.ID))

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionGuard_RequireSessionInvalidates(t *testing.T) {
	tests := []struct {
		name       string
		userAgent  string
		advance    time.Duration
		wantReason string
	}{
		{"fingerprint mismatch", "Other UA", 0, auth.ReasonReauth},
		{"idle timeout", "UA", 7201 * time.Second, auth.ReasonExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newGuardHarness()
			record := h.login(t, h.fingerprinter.Compute(h.request("/", "UA", "")))
			h.clock.Advance(tt.advance)

			rec, reached := h.serveGuarded(h.request("/orders.php", tt.userAgent, record.ID))

			assert.False(t, reached)
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, auth.DefaultLoginPath+"?reason="+tt.wantReason, rec.Header().Get("Location"))

			_, err := h.store.Get(context.Background(), record.ID)
			assert.ErrorIs(t, err, models.ErrSessionNotFound)

			// The client is handed a new anonymous session
			cookie := findCookie(rec, "sid")
			require.NotNil(t, cookie)
			assert.NotEqual(t, record.ID, cookie.Value)
			fresh, err := h.store.Get(context.Background(), cookie.Value)
			require.NoError(t, err)
			assert.False(t, fresh.Authenticated())
		})
	}
}

func TestSessionGuard_RequireSessionWithoutLoad(t *testing.T) {
	h := newGuardHarness()

	rec := httptest.NewRecorder()
	h.guard.RequireSession(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("protected handler must not run")
	})).ServeHTTP(rec, h.request("/", "UA", ""))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
