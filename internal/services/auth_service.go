package services

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/auth"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/metrics"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	pkglogger "github.com/JPdumas08/WebDev1.2-sub001/pkg/logger"
)

// CacheBusterParam is appended to every post-logout redirect so cached
// authenticated pages are not replayed from the browser cache
const CacheBusterParam = "logged_out"

// DefaultLogoutDenylist lists pages that only make sense while logged in.
// Entries ending in "/" match a whole directory.
var DefaultLogoutDenylist = []string{
	"account.php",
	"orders.php",
	"checkout.php",
	"profile.php",
	"admin/",
}

// CredentialChecker verifies an identifier/secret pair
type CredentialChecker interface {
	Verify(ctx context.Context, identifier, secret string) (Verification, error)
}

// AntiForgeryValidator checks a submitted anti-forgery token against the caller's session
type AntiForgeryValidator interface {
	Verify(token string, session *models.SessionRecord) bool
}

// AntiForgeryIssuer issues anti-forgery tokens for a session
type AntiForgeryIssuer interface {
	GenerateToken(session *models.SessionRecord) (string, error)
}

type AntiForgery interface {
	AntiForgeryValidator
	AntiForgeryIssuer
}

// AttemptStoreResolver picks where throttle counters for a request live
type AttemptStoreResolver func(session *models.SessionRecord) auth.AttemptStore

// SessionScopedAttempts keeps counters inside the caller's own session
func SessionScopedAttempts(session *models.SessionRecord) auth.AttemptStore {
	return auth.NewSessionAttemptStore(session)
}

// GlobalAttempts shares one server-side store across all sessions
func GlobalAttempts(store auth.AttemptStore) AttemptStoreResolver {
	return func(*models.SessionRecord) auth.AttemptStore {
		return store
	}
}

// LoginInput is a login submission
type LoginInput struct {
	Identifier string `json:"identifier" validate:"required,max=254,identifier"`
	Secret     string `json:"password" validate:"required,max=1024"`
	CSRFToken  string `json:"csrf_token" validate:"required"`
	Next       string `json:"next" validate:"max=2048"`

	Fingerprint string `json:"-" validate:"-"`
	IPAddress   string `json:"-" validate:"-"`
	UserAgent   string `json:"-" validate:"-"`
}

type LoginResult struct {
	Session        *models.SessionRecord
	Account        *models.Account
	RedirectTarget string
}

type LogoutInput struct {
	Next        string
	Referer     string
	Fingerprint string
	IPAddress   string
	UserAgent   string
}

type LogoutResult struct {
	Session        *models.SessionRecord
	RedirectTarget string
}

// AuthService orchestrates login and logout over the throttle, the
// credential verifier and the session lifecycle
type AuthService struct {
	verifier       CredentialChecker
	throttle       *auth.Throttle
	attempts       AttemptStoreResolver
	sessions       *auth.SessionManager
	sanitizer      *auth.RedirectSanitizer
	csrf           AntiForgery
	logger         *slog.Logger
	auditLogger    *pkglogger.AuditLogger
	metrics        *metrics.Metrics
	failureDelay   *auth.FailureDelay
	logoutDenylist []string
	now            func() time.Time
}

func NewAuthService(
	verifier CredentialChecker,
	throttle *auth.Throttle,
	attempts AttemptStoreResolver,
	sessions *auth.SessionManager,
	sanitizer *auth.RedirectSanitizer,
	csrf AntiForgery,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	if attempts == nil {
		attempts = SessionScopedAttempts
	}

	return &AuthService{
		verifier:       verifier,
		throttle:       throttle,
		attempts:       attempts,
		sessions:       sessions,
		sanitizer:      sanitizer,
		csrf:           csrf,
		logger:         logger,
		auditLogger:    auditLogger,
		logoutDenylist: DefaultLogoutDenylist,
		now:            time.Now,
	}
}

func (s *AuthService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetFailureDelay pads every rejected login to a minimum duration
func (s *AuthService) SetFailureDelay(d *auth.FailureDelay) {
	s.failureDelay = d
}

func (s *AuthService) SetLogoutDenylist(pages []string) {
	normalized := make([]string, 0, len(pages))
	for _, p := range pages {
		if p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "/")); p != "" {
			normalized = append(normalized, p)
		}
	}
	s.logoutDenylist = normalized
}

// SetClock replaces the time source (for testing)
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// IssueCSRFToken returns an anti-forgery token bound to session
func (s *AuthService) IssueCSRFToken(session *models.SessionRecord) (string, error) {
	return s.csrf.GenerateToken(session)
}

// Login authenticates the caller's session. Outcomes are reported as errors:
// *InputError (models.ErrInputInvalid), models.ErrRateLimited,
// models.ErrUnauthorized, or a wrapped models.ErrTransientStore.
func (s *AuthService) Login(ctx context.Context, session *models.SessionRecord, input LoginInput) (*LoginResult, error) {
	start := time.Now()

	if session == nil {
		return nil, models.ErrInternalServer
	}

	if violations := s.checkLoginInput(session, input); len(violations) > 0 {
		s.metrics.LoginAttempt(metrics.OutcomeInvalid)
		return nil, &InputError{Violations: violations}
	}

	identifier := strings.TrimSpace(input.Identifier)
	key := auth.IdentifierKey(identifier)
	store := s.attempts(session)
	event := pkglogger.AuditEvent{
		IdentifierKey: key,
		IPAddress:     input.IPAddress,
		UserAgent:     input.UserAgent,
	}

	if !s.throttle.Allow(ctx, store, identifier) {
		s.logger.Warn("login throttled", pkglogger.IdentifierKeyAttr(key))
		event.EventType = pkglogger.EventLoginThrottled
		event.FailureReason = "rate_limited"
		s.auditLogger.LogAuthAttempt(event)
		s.metrics.LoginAttempt(metrics.OutcomeThrottled)
		s.failureDelay.WaitFrom(ctx, start)
		return nil, models.ErrRateLimited
	}

	verification, err := s.verifier.Verify(ctx, identifier, input.Secret)
	if err != nil {
		s.logger.Error("credential verification failed", pkglogger.IdentifierKeyAttr(key), slog.Any("error", err))
	}

	if verification.Outcome != OutcomeSuccess {
		if recErr := s.throttle.RecordFailure(ctx, store, identifier); recErr != nil {
			s.logger.Error("failed to record login failure", pkglogger.IdentifierKeyAttr(key), slog.Any("error", recErr))
		}
		// Session-scoped counters live in the session record
		if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
			s.logger.Error("failed to persist session after login failure", slog.Any("error", saveErr))
		}

		event.EventType = pkglogger.EventLoginFailed
		event.FailureReason = "invalid_credentials"
		if err != nil {
			event.FailureReason = "store_fault"
		}
		s.auditLogger.LogAuthAttempt(event)
		s.metrics.LoginAttempt(metrics.OutcomeFailed)
		s.failureDelay.WaitFrom(ctx, start)
		return nil, models.ErrUnauthorized
	}

	account := verification.Account
	if err := s.throttle.Reset(ctx, store, identifier); err != nil {
		s.logger.Warn("failed to reset login failures", pkglogger.IdentifierKeyAttr(key), slog.Any("error", err))
	}

	established, err := s.sessions.Establish(ctx, session, account, identifier, input.Fingerprint)
	if err != nil {
		s.logger.Error("failed to establish session", slog.String("account_id", account.ID), slog.Any("error", err))
		s.metrics.LoginAttempt(metrics.OutcomeError)
		return nil, err
	}

	s.logger.Info("account logged in", slog.String("account_id", account.ID))
	event.EventType = pkglogger.EventLoginSuccess
	event.AccountID = account.ID
	event.Success = true
	s.auditLogger.LogAuthAttempt(event)
	s.metrics.LoginAttempt(metrics.OutcomeSuccess)

	return &LoginResult{
		Session:        established,
		Account:        account,
		RedirectTarget: s.sanitizer.Normalize(input.Next),
	}, nil
}

// checkLoginInput collects field violations and the anti-forgery check into one list
func (s *AuthService) checkLoginInput(session *models.SessionRecord, input LoginInput) []Violation {
	violations := validateStruct(input)

	if input.CSRFToken != "" && !s.csrf.Verify(input.CSRFToken, session) {
		violations = append(violations, Violation{Field: "csrf_token", Message: "is invalid or expired"})
	}
	return violations
}

// Logout destroys the caller's session and picks where to send them.
// The returned session is a fresh anonymous one.
func (s *AuthService) Logout(ctx context.Context, session *models.SessionRecord, input LogoutInput) (*LogoutResult, error) {
	target := s.logoutTarget(input.Next, input.Referer)

	fresh, err := s.sessions.Terminate(ctx, session, input.Fingerprint)
	if err != nil {
		s.logger.Error("failed to terminate session", slog.Any("error", err))
		return nil, err
	}

	if session.Authenticated() {
		s.logger.Info("account logged out", slog.String("account_id", session.AccountID))
		s.auditLogger.LogSessionEvent(pkglogger.AuditEvent{
			EventType: pkglogger.EventLogout,
			AccountID: session.AccountID,
			IPAddress: input.IPAddress,
			UserAgent: input.UserAgent,
		})
	}
	s.metrics.Logout()

	return &LogoutResult{
		Session:        fresh,
		RedirectTarget: appendCacheBuster(target, s.now()),
	}, nil
}

// logoutTarget prefers an explicit target, then the referring page unless it
// requires a login, then the default landing page. The result is always sanitized.
func (s *AuthService) logoutTarget(next, referer string) string {
	if strings.TrimSpace(next) != "" {
		return s.sanitizer.Normalize(next)
	}

	if page := refererPage(referer); page != "" && !s.denylisted(page) {
		return s.sanitizer.Normalize(page)
	}

	return s.sanitizer.Default()
}

func (s *AuthService) denylisted(page string) bool {
	p, _, _ := strings.Cut(strings.ToLower(page), "?")
	p, _, _ = strings.Cut(p, "#")

	for _, entry := range s.logoutDenylist {
		if strings.HasSuffix(entry, "/") {
			if strings.HasPrefix(p, entry) {
				return true
			}
			continue
		}
		if p == entry || path.Base(p) == entry {
			return true
		}
	}
	return false
}

// refererPage reduces a Referer header to a relative path with query
func refererPage(referer string) string {
	u, err := url.Parse(strings.TrimSpace(referer))
	if err != nil {
		return ""
	}

	page := strings.TrimPrefix(u.Path, "/")
	if page == "" {
		return ""
	}
	if u.RawQuery != "" {
		page += "?" + u.RawQuery
	}
	return page
}

// appendCacheBuster adds logged_out=<unix> ahead of any fragment
func appendCacheBuster(target string, now time.Time) string {
	base, fragment, hasFragment := strings.Cut(target, "#")

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	result := base + sep + CacheBusterParam + "=" + strconv.FormatInt(now.Unix(), 10)

	if hasFragment {
		result += "#" + fragment
	}
	return result
}
