package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/auth"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/services"
	pkghttp "github.com/JPdumas08/WebDev1.2-sub001/pkg/http"
)

const (
	maxLoginBodyBytes = 64 << 10

	CSRFHeader = "X-CSRF-Token"
)

// AuthServiceInterface defines the interface for login/logout business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, session *models.SessionRecord, input services.LoginInput) (*services.LoginResult, error)
	Logout(ctx context.Context, session *models.SessionRecord, input services.LogoutInput) (*services.LogoutResult, error)
	IssueCSRFToken(session *models.SessionRecord) (string, error)
}

// AuthHandler handles session authentication HTTP requests
type AuthHandler struct {
	service       AuthServiceInterface
	fingerprinter *auth.Fingerprinter
	cookie        auth.CookieConfig
	ipConfig      *pkghttp.IPConfig
	logger        *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, fingerprinter *auth.Fingerprinter, cookie auth.CookieConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	if fingerprinter == nil {
		fingerprinter = auth.NewFingerprinter(auth.FingerprintConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		service:       service,
		fingerprinter: fingerprinter,
		cookie:        cookie,
		ipConfig:      ipConfig,
		logger:        logger,
	}
}

// Request DTOs

// LoginRequest is the login form. Email and Username are accepted as
// aliases for Identifier so existing login forms keep working.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password"`
	CSRFToken  string `json:"csrf_token"`
	Next       string `json:"next,omitempty"`
}

func (req LoginRequest) identifier() string {
	for _, v := range []string{req.Identifier, req.Email, req.Username} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Response DTOs

// LoginResponse is the body of every /login response
type LoginResponse struct {
	Success        bool                 `json:"success"`
	Message        string               `json:"message"`
	RedirectTarget string               `json:"redirect_target,omitempty"`
	Errors         []services.Violation `json:"errors,omitempty"`
}

type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// SessionResponse summarizes an authenticated session
type SessionResponse struct {
	AccountID      string    `json:"account_id"`
	Email          string    `json:"email,omitempty"`
	Username       string    `json:"username,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Login handles a login submission (form or JSON)
// @Summary Session login
// @Accept json,x-www-form-urlencoded
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} LoginResponse
// @Failure 401 {object} LoginResponse
// @Failure 405 {object} ErrorResponse
// @Failure 429 {object} LoginResponse
// @Failure 500 {object} LoginResponse
// @Router /login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		pkghttp.WriteMethodNotAllowed(w, http.MethodPost)
		return
	}

	session := auth.SessionFromContext(r.Context())
	if session == nil {
		h.logger.Error("login reached without a loaded session")
		writeLoginResponse(w, http.StatusInternalServerError, LoginResponse{Message: "Internal server error"})
		return
	}

	req, err := decodeLoginRequest(w, r)
	if err != nil {
		writeLoginResponse(w, http.StatusBadRequest, LoginResponse{Message: "Invalid request body"})
		return
	}

	result, err := h.service.Login(r.Context(), session, services.LoginInput{
		Identifier:  req.identifier(),
		Secret:      req.Password,
		CSRFToken:   req.CSRFToken,
		Next:        req.Next,
		Fingerprint: h.fingerprinter.Compute(r),
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		var inputErr *services.InputError
		switch {
		case errors.As(err, &inputErr):
			writeLoginResponse(w, http.StatusBadRequest, LoginResponse{
				Message: "Please correct the errors below",
				Errors:  inputErr.Violations,
			})
		case errors.Is(err, models.ErrRateLimited):
			writeLoginResponse(w, http.StatusTooManyRequests, LoginResponse{Message: "Too many failed login attempts. Please try again later."})
		case errors.Is(err, models.ErrUnauthorized):
			// One message for unknown accounts and wrong passwords
			writeLoginResponse(w, http.StatusUnauthorized, LoginResponse{Message: "Invalid username or password"})
		default:
			writeLoginResponse(w, http.StatusInternalServerError, LoginResponse{Message: "Internal server error"})
		}
		return
	}

	auth.SetSessionCookie(w, result.Session.ID, h.cookie)
	writeLoginResponse(w, http.StatusOK, LoginResponse{
		Success:        true,
		Message:        "Login successful",
		RedirectTarget: result.RedirectTarget,
	})
}

// Logout ends the caller's session and redirects away
// @Summary Session logout
// @Param next query string false "Page to return to"
// @Success 303
// @Failure 405 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /logout [get]
// @Router /logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		pkghttp.WriteMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}

	result, err := h.service.Logout(r.Context(), auth.SessionFromContext(r.Context()), services.LogoutInput{
		Next:        r.FormValue("next"),
		Referer:     r.Referer(),
		Fingerprint: h.fingerprinter.Compute(r),
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetSessionCookie(w, result.Session.ID, h.cookie)
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, auth.LocalPath(result.RedirectTarget), http.StatusSeeOther)
}

// CSRFToken returns an anti-forgery token for the caller's session
// @Summary Anti-forgery token
// @Produce json
// @Success 200 {object} CSRFTokenResponse
// @Failure 500 {object} ErrorResponse
// @Router /csrf-token [get]
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.IssueCSRFToken(auth.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("failed to issue anti-forgery token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}

// Session describes the authenticated session; mounted behind RequireSession
// @Summary Current session
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Router /session [get]
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if !session.Authenticated() {
		pkghttp.WriteUnauthorized(w, "Not logged in")
		return
	}

	resp := SessionResponse{
		AccountID:      session.AccountID,
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
	}
	if session.Account != nil {
		resp.Email = session.Account.Email
		resp.Username = session.Account.Username
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

func writeLoginResponse(w http.ResponseWriter, status int, resp LoginResponse) {
	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, status, resp)
}

// decodeLoginRequest reads a JSON body or a urlencoded form.
// The anti-forgery token may also arrive in the X-CSRF-Token header.
func decodeLoginRequest(w http.ResponseWriter, r *http.Request) (LoginRequest, error) {
	var req LoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req = LoginRequest{
			Identifier: r.PostFormValue("identifier"),
			Email:      r.PostFormValue("email"),
			Username:   r.PostFormValue("username"),
			Password:   r.PostFormValue("password"),
			CSRFToken:  r.PostFormValue("csrf_token"),
			Next:       r.PostFormValue("next"),
		}
	}

	if req.CSRFToken == "" {
		req.CSRFToken = r.Header.Get(CSRFHeader)
	}
	if req.Next == "" {
		req.Next = r.URL.Query().Get("next")
	}
	return req, nil
}
