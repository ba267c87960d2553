package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/auth"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/services"
	pkghttp "github.com/JPdumas08/WebDev1.2-sub001/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewFormRequest creates a urlencoded form submission for testing
func NewFormRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// WithSessionContext attaches a session record to the request as LoadSession would
func WithSessionContext(req *http.Request, session *models.SessionRecord) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), session))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc          func(ctx context.Context, session *models.SessionRecord, input services.LoginInput) (*services.LoginResult, error)
	LogoutFunc         func(ctx context.Context, session *models.SessionRecord, input services.LogoutInput) (*services.LogoutResult, error)
	IssueCSRFTokenFunc func(session *models.SessionRecord) (string, error)
}

func (m *MockAuthService) Login(ctx context.Context, session *models.SessionRecord, input services.LoginInput) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, session, input)
}

func (m *MockAuthService) Logout(ctx context.Context, session *models.SessionRecord, input services.LogoutInput) (*services.LogoutResult, error) {
	if m.LogoutFunc == nil {
		return &services.LogoutResult{
			Session:        &models.SessionRecord{ID: "fresh-session"},
			RedirectTarget: "index.php",
		}, nil
	}
	return m.LogoutFunc(ctx, session, input)
}

func (m *MockAuthService) IssueCSRFToken(session *models.SessionRecord) (string, error) {
	if m.IssueCSRFTokenFunc == nil {
		return "test-csrf-token", nil
	}
	return m.IssueCSRFTokenFunc(session)
}
